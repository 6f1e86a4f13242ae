package main

import (
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/nonprofit-cli/internal/collect"
	"github.com/sells-group/nonprofit-cli/internal/config"
)

var (
	queriesState string
	queriesFile  string
)

var queriesCmd = &cobra.Command{
	Use:   "queries",
	Short: "Print the search terms a run would use",
	RunE: func(cmd *cobra.Command, args []string) error {
		pc := cfg.Pipeline
		if queriesState != "" {
			pc.State = queriesState
		}
		if queriesFile != "" {
			pc.QueryFile = queriesFile
		}

		state, ok := collect.LookupState(pc.State)
		if !ok {
			return eris.Errorf("unknown state %q", pc.State)
		}
		qs, err := resolveQueries(pc, state)
		if err != nil {
			return err
		}
		return printQueries(cmd.OutOrStdout(), state, qs)
	},
}

// resolveQueries loads the configured query file, or the default set for
// state when none is configured.
func resolveQueries(pc config.PipelineConfig, state collect.State) (collect.QuerySet, error) {
	if pc.QueryFile == "" {
		return collect.DefaultQuerySet(state, pc.IncludeAlphabetical), nil
	}
	return collect.LoadQuerySet(pc.QueryFile, state, pc.IncludeAlphabetical)
}

func printQueries(out io.Writer, state collect.State, qs collect.QuerySet) error {
	if _, err := fmt.Fprintf(out, "# %s (%s): %d terms\n", state.Name, state.Code, qs.Len()); err != nil {
		return err
	}
	for _, term := range qs.Terms() {
		if _, err := fmt.Fprintln(out, term); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	queriesCmd.Flags().StringVar(&queriesState, "state", "", "state code or name (default from config)")
	queriesCmd.Flags().StringVar(&queriesFile, "queries", "", "YAML query file")
	rootCmd.AddCommand(queriesCmd)
}
