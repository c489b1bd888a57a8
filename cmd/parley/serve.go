package main

import (
	"fmt"
	"os"

	"github.com/aretw0/parley/internal/cli"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve [dir]",
	Short: "Serve the flows as an HTTP messaging channel",
	Long: `Starts an HTTP server. Clients post events to /sessions/{id}/messages and receive the reply
messages; /sessions/{id}/events streams them (SSE). Prometheus metrics are exposed at /metrics.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		opts := serveOptions(cmd, args)
		if err := cli.RunServe(opts, os.Stdout); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp [dir]",
	Short: "Serve the flows as Model Context Protocol tools",
	Long:  `Exposes send_message, send_timeout, jump_to, end_flow, get_position and list_flows to MCP clients.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		opts := serveOptions(cmd, args)
		opts.Transport, _ = cmd.Flags().GetString("transport")
		if err := cli.RunMCP(opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().String("flow", "", "Flow new sessions start in")
	serveCmd.Flags().Bool("debug", false, "Log at debug level")

	mcpCmd.Flags().IntP("port", "p", 8080, "Port to listen on (sse transport)")
	mcpCmd.Flags().String("transport", cli.TransportStdio, "Transport (stdio or sse)")
	mcpCmd.Flags().String("flow", "", "Flow new sessions start in")
	mcpCmd.Flags().Bool("debug", false, "Log at debug level")
}

func serveOptions(cmd *cobra.Command, args []string) cli.ServeOptions {
	opts := cli.ServeOptions{ChatOptions: cli.ChatOptions{Dir: projectDir(cmd, args)}}
	opts.Store, _ = cmd.Flags().GetString("store")
	opts.State, _ = cmd.Flags().GetString("state")
	opts.RedisAddr, _ = cmd.Flags().GetString("redis")
	opts.Mask, _ = cmd.Flags().GetStringSlice("mask")
	opts.Flow, _ = cmd.Flags().GetString("flow")
	opts.Debug, _ = cmd.Flags().GetBool("debug")
	opts.Port, _ = cmd.Flags().GetInt("port")
	return opts
}
