package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/nonprofit-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "nonprofit-cli",
	Short: "Collect nonprofit revenue and executive compensation by state",
	Long: "Searches the ProPublica Nonprofit Explorer for charities in one state, resolves each " +
		"organization's latest Form 990 figures from the API or the filing PDF (AI or OCR), " +
		"filters by revenue and writes a spreadsheet.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
