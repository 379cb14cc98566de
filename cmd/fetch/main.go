// Package main provides the CLI entry point for fetch, an autonomous
// coding agent loop: a command/reflex-driven message router in front of
// an LLM tool-use runtime, backed by a task queue that spawns sandboxed
// coding-harness executions.
//
// # Basic Usage
//
// Start a local REPL session against the configured provider:
//
//	fetch serve --config fetch.yaml
//
// Check configuration and environment health:
//
//	fetch doctor
//
// Manage the session/task SQLite schema (only relevant with --db set):
//
//	fetch migrate up
//	fetch migrate status
//
// # Environment Variables
//
//   - FETCH_CONFIG: path to the YAML configuration file (default: fetch.yaml)
//   - ANTHROPIC_API_KEY, OPENAI_API_KEY, GOOGLE_API_KEY, ...: provider credentials,
//     read by config.Load's env overlay into llm.providers.<name>.api_key
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during release builds.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	configPathFlag string
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	root := buildRootCmd()
	if err := root.Execute(); err != nil {
		slog.Error("fetch: command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "fetch - an autonomous coding agent loop",
		Long: `fetch routes chat messages through slash commands, canned reflexes,
and pending-approval interpretation before falling back to an LLM tool-use
agent loop that can spawn sandboxed coding-harness tasks.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPathFlag, "config", "c", defaultConfigPath(), "Path to YAML configuration file")

	cmd.AddCommand(
		buildServeCmd(),
		buildDoctorCmd(),
		buildMigrateCmd(),
	)
	return cmd
}

// defaultConfigPath mirrors the teacher's profile.DefaultConfigPath:
// FETCH_CONFIG env var first, then a fetch.yaml in the working directory.
func defaultConfigPath() string {
	if path := os.Getenv("FETCH_CONFIG"); path != "" {
		return path
	}
	return "fetch.yaml"
}
