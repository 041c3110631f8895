// Package cmd holds the CLI entrypoints.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "linkfm",
	Short: "LinkFM orchestrates a pool of audio streaming nodes.",
	Long: `LinkFM is a client for a pool of audio streaming nodes: it selects the
healthiest node per request, runs per-guild playback sessions with queues and
filters, and persists session state across restarts.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
