package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/nonprofit-cli/internal/collect"
)

var statesCmd = &cobra.Command{
	Use:   "states",
	Short: "List supported states and territories",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printStates(cmd.OutOrStdout(), collect.States())
	},
}

func printStates(out io.Writer, states []collect.State) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CODE\tNAME")
	_, _ = fmt.Fprintln(w, "----\t----")
	for _, s := range states {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", s.Code, s.Name)
	}
	return w.Flush()
}

func init() {
	rootCmd.AddCommand(statesCmd)
}
