// Package cmd provides the CLI commands for tutord.
//
// Commands:
//   - serve: HTTP API server for the tutoring chat backend
//   - ingest: index course documents into the textbook corpus
//   - version: build information
//
// Signal handling and graceful shutdown are implemented via
// context cancellation.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/edubot/tutord/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "tutord",
	Short: "tutord - AI tutoring chat backend",
	Long: `tutord serves the HTTP API for the AI tutoring assistant.
It answers student questions grounded in the indexed textbook corpus,
with per-user profiles and session-scoped conversation history.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the main entry point for the tutord CLI.
func Execute() error {
	// Initialize logger once at entry point
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(log.New(log.Config{Level: level, JSON: true}))

	return rootCmd.Execute()
}
