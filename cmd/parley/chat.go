package main

import (
	"fmt"
	"os"

	"github.com/aretw0/parley/internal/cli"
	"github.com/spf13/cobra"
)

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat [dir]",
	Short: "Chat with the flows in a directory",
	Long: `Starts an interactive conversation. Each line is sent as a text event; "/timeout" simulates an inactivity timeout.
Set PARLEY_STATE_KEY (64 hex characters) to encrypt persisted state.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		opts := cli.ChatOptions{Dir: projectDir(cmd, args)}
		opts.Store, _ = cmd.Flags().GetString("store")
		opts.State, _ = cmd.Flags().GetString("state")
		opts.RedisAddr, _ = cmd.Flags().GetString("redis")
		opts.Flow, _ = cmd.Flags().GetString("flow")
		opts.SessionID, _ = cmd.Flags().GetString("session")
		opts.Fresh, _ = cmd.Flags().GetBool("fresh")
		opts.Headless, _ = cmd.Flags().GetBool("headless")
		opts.Watch, _ = cmd.Flags().GetBool("watch")
		opts.Debug, _ = cmd.Flags().GetBool("debug")
		opts.Condition, _ = cmd.Flags().GetString("condition-timeout")
		opts.NoMarkdown, _ = cmd.Flags().GetBool("no-markdown")
		opts.Mask, _ = cmd.Flags().GetStringSlice("mask")

		if opts.Watch && opts.Headless {
			fmt.Println("Error: --watch and --headless cannot be used together.")
			os.Exit(1)
		}

		if err := cli.RunChat(opts, os.Stdin, os.Stdout); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().String("flow", "", "Flow new sessions start in (default: main.flow or the directory name)")
	chatCmd.Flags().String("session", "", "Session id to resume (default: a new random id)")
	chatCmd.Flags().Bool("fresh", false, "Discard any saved state for the session before starting")
	chatCmd.Flags().Bool("headless", false, "Run in headless mode (no banner, no prompts, strict IO)")
	chatCmd.Flags().BoolP("watch", "w", false, "Reload flows when their documents change")
	chatCmd.Flags().Bool("debug", false, "Log engine hooks and transitions")
	chatCmd.Flags().String("condition-timeout", "", "Maximum time to evaluate one edge condition (e.g. 50ms)")
	chatCmd.Flags().Bool("no-markdown", false, "Print messages as plain text")

	// 'chat' is the default command.
	rootCmd.Run = chatCmd.Run
	rootCmd.Flags().AddFlagSet(chatCmd.Flags())
}
