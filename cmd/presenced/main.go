// Package main provides the CLI entry point for the presence daemon.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set at build time)
var version = "dev"

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "presenced",
		Short: "Emotional presence engine for a conversational avatar",
		Long: `presenced watches how a user interacts with a chat surface and decides
which emotion the avatar shows, staging the visual, audio and haptic
responses. Clients connect over WebSocket.

Use 'presenced [command] --help' for more information.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ~/.cortexpresence/config.yaml)")

	rootCmd.AddCommand(
		newServeCmd(&configPath),
		newClassifyCmd(),
		newFlowCmd(),
		newConfigCmd(&configPath),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
