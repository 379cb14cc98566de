package main

import (
	"database/sql"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/fetchctl/fetch/internal/sessions"
	"github.com/fetchctl/fetch/internal/tasks"
)

// buildMigrateCmd mirrors the teacher's migrate command group, scaled down
// to fetch's two SQLite-backed stores instead of one CockroachDB cluster.
// Both the sessions and tasks schemas live in the same --db file (as
// openStores in serve.go assumes), but each owns an independent migrator
// and an independent applied_migrations ledger so they evolve on their own
// schedules.
func buildMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the session/task SQLite schema",
		Long: `Manage schema migrations for the SQLite file used when fetch serve
is run with --db. There is nothing to migrate for the default in-memory
store.`,
	}
	cmd.AddCommand(buildMigrateUpCmd(), buildMigrateDownCmd(), buildMigrateStatusCmd())
	return cmd
}

func buildMigrateUpCmd() *cobra.Command {
	var dbPath string
	var steps int
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrators(dbPath, func(sessionsMigrator *sessions.Migrator, tasksMigrator *tasks.Migrator) error {
				applied, err := sessionsMigrator.Up(cmd.Context(), steps)
				if err != nil {
					return fmt.Errorf("sessions migrator: %w", err)
				}
				for _, id := range applied {
					fmt.Fprintf(cmd.OutOrStdout(), "sessions: applied %s\n", id)
				}
				applied, err = tasksMigrator.Up(cmd.Context(), steps)
				if err != nil {
					return fmt.Errorf("tasks migrator: %w", err)
				}
				for _, id := range applied {
					fmt.Fprintf(cmd.OutOrStdout(), "tasks: applied %s\n", id)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "fetch.db", "SQLite file to migrate")
	cmd.Flags().IntVarP(&steps, "steps", "n", 0, "Number of migrations to apply (0 = all)")
	return cmd
}

func buildMigrateDownCmd() *cobra.Command {
	var dbPath string
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the last N migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrators(dbPath, func(sessionsMigrator *sessions.Migrator, tasksMigrator *tasks.Migrator) error {
				rolled, err := tasksMigrator.Down(cmd.Context(), steps)
				if err != nil {
					return fmt.Errorf("tasks migrator: %w", err)
				}
				for _, id := range rolled {
					fmt.Fprintf(cmd.OutOrStdout(), "tasks: rolled back %s\n", id)
				}
				rolled, err = sessionsMigrator.Down(cmd.Context(), steps)
				if err != nil {
					return fmt.Errorf("sessions migrator: %w", err)
				}
				for _, id := range rolled {
					fmt.Fprintf(cmd.OutOrStdout(), "sessions: rolled back %s\n", id)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "fetch.db", "SQLite file to migrate")
	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "Number of migrations to roll back")
	return cmd
}

func buildMigrateStatusCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrators(dbPath, func(sessionsMigrator *sessions.Migrator, tasksMigrator *tasks.Migrator) error {
				out := cmd.OutOrStdout()
				sessionsApplied, sessionsAll, err := sessionsMigrator.Status(cmd.Context())
				if err != nil {
					return fmt.Errorf("sessions migrator: %w", err)
				}
				sessionsAppliedIDs := make(map[string]bool, len(sessionsApplied))
				for _, a := range sessionsApplied {
					sessionsAppliedIDs[a.ID] = true
				}
				sessionsIDs := make([]string, len(sessionsAll))
				for i, m := range sessionsAll {
					sessionsIDs[i] = m.ID
				}
				printMigrationStatus(out, "sessions", sessionsIDs, sessionsAppliedIDs)

				tasksApplied, tasksAll, err := tasksMigrator.Status(cmd.Context())
				if err != nil {
					return fmt.Errorf("tasks migrator: %w", err)
				}
				tasksAppliedIDs := make(map[string]bool, len(tasksApplied))
				for _, a := range tasksApplied {
					tasksAppliedIDs[a.ID] = true
				}
				tasksIDs := make([]string, len(tasksAll))
				for i, m := range tasksAll {
					tasksIDs[i] = m.ID
				}
				printMigrationStatus(out, "tasks", tasksIDs, tasksAppliedIDs)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "fetch.db", "SQLite file to inspect")
	return cmd
}

func printMigrationStatus(out io.Writer, label string, ids []string, appliedIDs map[string]bool) {
	fmt.Fprintf(out, "%s:\n", label)
	for _, id := range ids {
		status := "pending"
		if appliedIDs[id] {
			status = "applied"
		}
		fmt.Fprintf(out, "  - %s [%s]\n", id, status)
	}
}

// withMigrators opens dbPath once and builds both packages' migrators
// against it, since they share one SQLite file in this CLI's layout.
func withMigrators(dbPath string, fn func(*sessions.Migrator, *tasks.Migrator) error) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", dbPath, err)
	}
	defer db.Close()

	sessionsMigrator, err := sessions.NewMigrator(db)
	if err != nil {
		return fmt.Errorf("build sessions migrator: %w", err)
	}
	tasksMigrator, err := tasks.NewMigrator(db)
	if err != nil {
		return fmt.Errorf("build tasks migrator: %w", err)
	}
	return fn(sessionsMigrator, tasksMigrator)
}
