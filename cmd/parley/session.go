package main

import (
	"fmt"
	"os"

	"github.com/aretw0/parley/internal/cli"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage persistent sessions",
	Long:  `Inspect and remove sessions kept by the file (.parley/sessions) or redis state backends.`,
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print the state of a session",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		opts := stateOptions(cmd)
		opts.SessionID = args[0]

		if err := cli.ShowSession(cmd.Context(), opts, os.Stdout); err != nil {
			fmt.Printf("Error loading session '%s': %v\n", args[0], err)
			os.Exit(1)
		}
	},
}

var sessionRmCmd = &cobra.Command{
	Use:   "rm <session-id>...",
	Short: "Remove one or more sessions",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := cli.ResetSessions(cmd.Context(), stateOptions(cmd), args, os.Stdout); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionRmCmd)
}

// stateOptions reads the state backend flags. Sessions default to the file backend
// since the memory backend never outlives a process.
func stateOptions(cmd *cobra.Command) cli.ChatOptions {
	opts := cli.ChatOptions{State: cli.StateFile}
	opts.Dir, _ = cmd.Flags().GetString("dir")
	if cmd.Flags().Changed("state") {
		opts.State, _ = cmd.Flags().GetString("state")
	}
	opts.RedisAddr, _ = cmd.Flags().GetString("redis")
	opts.Mask, _ = cmd.Flags().GetStringSlice("mask")
	return opts
}
