package main

import (
	"fmt"
	"os"

	"github.com/aretw0/parley/internal/cli"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph [dir]",
	Short: "Export the flow graph visualization",
	Long:  `Loads every flow and outputs a Mermaid diagram (graph TD) with one subgraph per flow.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		opts := stateOptions(cmd)
		opts.Dir = projectDir(cmd, args)
		opts.Store, _ = cmd.Flags().GetString("store")
		opts.SessionID, _ = cmd.Flags().GetString("session")

		if err := cli.RunGraph(cmd.Context(), opts, os.Stdout); err != nil {
			fmt.Printf("Error generating graph: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)

	graphCmd.Flags().String("session", "", "Highlight the position of this session")
}
