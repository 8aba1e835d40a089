package main

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/triage/internal/presentation/graph"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the workflow graph",
	Long:  `Prints the workflow graph as a Mermaid flowchart or as JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		app, err := buildApp()
		if err != nil {
			return err
		}
		defer app.Close()

		desc := app.Engine.Inspect()
		switch format {
		case "mermaid":
			fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(desc, nil))
		case "json":
			data, err := json.MarshalIndent(desc, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
		default:
			return fmt.Errorf("unknown format %q: use mermaid or json", format)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().StringP("format", "f", "mermaid", "Output format: mermaid or json")
}
