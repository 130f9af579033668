// Package cmd is guardd's cobra command tree, grounded on
// vanducng-goclaw's cmd/root.go (PersistentFlags + subcommand
// registration shape).
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:   "guardd",
	Short: "Agent Guard — runtime monitoring and evaluation service for tool-using agents",
	Long: "guardd serves the session store, agent registry, and runtime config " +
		"over HTTP/WebSocket, and evaluates ingested agent sessions for quality " +
		"and security issues.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir",
		getEnv("GUARD_CONFIG_DIR", "./deploy/config"),
		"path to the directory containing guard.yaml and .env")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(cleanupNowCmd())
	rootCmd.AddCommand(versionCmd())
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
