// Package cmd implements the chatrelay CLI using cobra.
package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "chatrelay",
	Short: "Multi-provider chat relay with voice call signaling",
	Long: `chatrelay relays conversational chat to OpenAI-compatible and Gemini
providers, routes short requests to intent handlers and brokers
WebRTC call signaling between users.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI with ctx as the base context of every command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.Version = version

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(blacklistCmd)
}
