package main

import (
	"fmt"
	"os"

	"github.com/aretw0/parley/internal/cli"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Check the flows for consistency",
	Long:  `Loads every flow and reports structural errors (missing start nodes, duplicate ids) and dead links.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		opts := cli.ValidateOptions{Dir: projectDir(cmd, args)}
		opts.Store, _ = cmd.Flags().GetString("store")
		opts.Strict, _ = cmd.Flags().GetBool("strict")

		if err := cli.RunValidate(cmd.Context(), opts, os.Stdout); err != nil {
			fmt.Printf("Validation failed: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().Bool("strict", false, "Treat dead links and unreachable nodes as errors")
}
