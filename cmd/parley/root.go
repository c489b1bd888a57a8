package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Parley runs conversational flows from the terminal",
	Long: `Parley drives dialog flows (nodes, conditional edges, subflows) stored as YAML, JSON or Markdown documents.

Commands listed in a tools.yaml next to the flows become actions flow instructions can call.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("dir", ".", "Directory containing the flow documents")
	rootCmd.PersistentFlags().String("store", "loam", "Flow store backend (loam or file)")
	rootCmd.PersistentFlags().String("state", "memory", "Session state backend (memory, file or redis)")
	rootCmd.PersistentFlags().String("redis", "localhost:6379", "Redis address for the redis state backend")
	rootCmd.PersistentFlags().StringSlice("mask", nil, "State keys (regular expressions) masked before persisting")
}

// projectDir returns --dir, or the first positional argument when --dir was not given.
func projectDir(cmd *cobra.Command, args []string) string {
	dir, _ := cmd.Flags().GetString("dir")
	if !cmd.Flags().Changed("dir") && len(args) > 0 {
		dir = args[0]
	}
	return dir
}
