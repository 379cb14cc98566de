package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fetchctl/fetch/internal/config"
	"github.com/fetchctl/fetch/internal/sessions"
	"github.com/fetchctl/fetch/internal/tasks"
)

// buildDoctorCmd is a scaled-down version of the teacher's doctor command:
// no plugin manifests, channel policies, or gateway probes to check here
// (those collaborators are out of scope, spec section 1) - just config
// validity, the sandbox root, and provider credentials.
func buildDoctorCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration and environment health",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			cfg, err := config.Load(configPathFlag)
			if err != nil {
				return fmt.Errorf("config validation failed: %w", err)
			}
			fmt.Fprintf(out, "config: ok (%s)\n", configPathFlag)

			if cfg.Workspace.Path != "" {
				if info, err := os.Stat(cfg.Workspace.Path); err != nil || !info.IsDir() {
					fmt.Fprintf(out, "workspace root: MISSING (%s)\n", cfg.Workspace.Path)
				} else {
					fmt.Fprintf(out, "workspace root: ok (%s)\n", cfg.Workspace.Path)
				}
			} else {
				fmt.Fprintln(out, "workspace root: not configured")
			}

			providerName := cfg.LLM.DefaultProvider
			if providerName == "" {
				providerName = "anthropic"
			}
			if providerCfg, ok := cfg.LLM.Providers[providerName]; ok && providerCfg.APIKey != "" {
				fmt.Fprintf(out, "llm provider %q: api key present\n", providerName)
			} else {
				fmt.Fprintf(out, "llm provider %q: NO API KEY configured (set llm.providers.%s.api_key or the provider's env var)\n", providerName, providerName)
			}

			if dbPath != "" {
				return withMigrators(dbPath, func(sessionsMigrator *sessions.Migrator, tasksMigrator *tasks.Migrator) error {
					sessionsApplied, sessionsAll, err := sessionsMigrator.Status(cmd.Context())
					if err != nil {
						return fmt.Errorf("sessions migrator: %w", err)
					}
					fmt.Fprintf(out, "sessions migrations: %d/%d applied\n", len(sessionsApplied), len(sessionsAll))

					tasksApplied, tasksAll, err := tasksMigrator.Status(cmd.Context())
					if err != nil {
						return fmt.Errorf("tasks migrator: %w", err)
					}
					fmt.Fprintf(out, "tasks migrations: %d/%d applied\n", len(tasksApplied), len(tasksAll))
					return nil
				})
			}
			fmt.Fprintln(out, "db: not configured (sessions/tasks are in-memory; pass --db to check migration status)")
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite file to also check migration status for")
	return cmd
}
