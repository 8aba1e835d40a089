package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration and the workflow graph",
	Long:  `Loads the configuration and compiles the workflow graph, reporting every problem found.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		app, err := buildApp()
		if err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		defer app.Close()

		desc := app.Engine.Inspect()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Graph is valid! ✅ (%d nodes, %d edges, start %q)\n", len(desc.Nodes), len(desc.Edges), desc.Start)
		if cfg.Offline() {
			fmt.Fprintln(out, "Note: no LLM API key set, nodes will answer offline.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
