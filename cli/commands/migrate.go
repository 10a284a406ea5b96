package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/schemaflow/schemaflow/cli/internal/ui"
	"github.com/schemaflow/schemaflow/migrate/executor"
	"github.com/schemaflow/schemaflow/migrate/generate"
	"github.com/schemaflow/schemaflow/migrate/ledger"
	"github.com/schemaflow/schemaflow/migrate/sqlgen"
)

var (
	rollbackSteps   int
	rollbackVersion string
	refreshForce    bool
	freshForce      bool
	squashTo        string
)

var migrateCmd = &cobra.Command{
	Use:   "migration:migrate",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.close()

		applied, err := e.exec.Migrate(cmd.Context())
		if err != nil {
			reportMigrateError(err)
			return err
		}
		if len(applied) == 0 {
			ui.PrintInfo("Nothing to migrate.")
			return nil
		}
		for _, v := range applied {
			ui.PrintSuccess("Migrated %s", v)
		}
		return nil
	},
}

var rollbackCmd = &cobra.Command{
	Use:   "migration:rollback",
	Short: "Roll back applied migrations",
	Long: `Roll back applied migrations in reverse chronological order.

With no flags the most recent migration is rolled back. --steps rolls back
the N most recent; --version rolls back everything down to and including
the given version.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if rollbackSteps > 0 && rollbackVersion != "" {
			return fmt.Errorf("--steps and --version are mutually exclusive")
		}
		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.close()

		rolled, err := e.exec.Rollback(cmd.Context(), executor.RollbackOptions{
			Steps:   rollbackSteps,
			Version: rollbackVersion,
		})
		if err != nil {
			return err
		}
		if len(rolled) == 0 {
			ui.PrintInfo("Nothing to roll back.")
			return nil
		}
		for _, v := range rolled {
			ui.PrintSuccess("Rolled back %s", v)
		}
		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:   "migration:refresh",
	Short: "Roll back everything and migrate again",
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, err := confirmDestructive("Refresh", refreshForce)
		if err != nil || !ok {
			return err
		}
		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.close()

		if err := e.exec.Refresh(cmd.Context(), true); err != nil {
			return err
		}
		ui.PrintSuccess("Database refreshed.")
		return nil
	},
}

var freshCmd = &cobra.Command{
	Use:   "migration:fresh",
	Short: "Drop all tables and migrate from scratch",
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, err := confirmDestructive("Fresh", freshForce)
		if err != nil || !ok {
			return err
		}
		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.close()

		if err := e.exec.Fresh(cmd.Context(), true); err != nil {
			return err
		}
		ui.PrintSuccess("Database rebuilt from scratch.")
		return nil
	},
}

var squashCmd = &cobra.Command{
	Use:   "migration:squash",
	Short: "Collapse a run of migrations into one baseline",
	RunE: func(cmd *cobra.Command, args []string) error {
		if squashTo == "" {
			return fmt.Errorf("--to is required")
		}
		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.close()

		dialect, err := sqlgen.New(e.cfg.Provider)
		if err != nil {
			return err
		}
		all, err := e.store.LoadAll()
		if err != nil {
			return err
		}
		gen := generate.NewGenerator(dialect, e.store)
		result, err := gen.Squash(all, squashTo)
		if err != nil {
			return err
		}

		// Replace the record files first, then rewrite the ledger so it
		// matches what is on disk.
		for _, v := range result.Squashed {
			if err := e.store.Delete(v); err != nil {
				return err
			}
		}
		if err := e.store.Save(result.Baseline); err != nil {
			return err
		}
		if err := rewriteSquashedLedger(cmd.Context(), e.exec.Ledger(), result); err != nil {
			return err
		}
		ui.PrintSuccess("Squashed %d migrations into baseline %s", len(result.Squashed), squashTo)
		return nil
	},
}

// rewriteSquashedLedger replaces the ledger entries of the squashed run with
// one entry for the baseline. Any executed version in the run triggers the
// rewrite; success rows must not survive for versions whose record files are
// gone.
func rewriteSquashedLedger(ctx context.Context, l *ledger.Ledger, result *generate.SquashResult) error {
	// The ledger table may not exist yet when squashing a never-run project.
	if err := l.Init(ctx); err != nil {
		return err
	}
	entries, err := l.Entries(ctx)
	if err != nil {
		return err
	}
	squashed := make(map[string]bool, len(result.Squashed))
	for _, v := range result.Squashed {
		squashed[v] = true
	}
	var latest *ledger.Entry
	for i := range entries {
		if squashed[entries[i].Version] {
			latest = &entries[i]
		}
	}
	if latest == nil {
		return nil
	}
	baseline := *latest
	baseline.Version = result.Baseline.Version
	baseline.Checksum = result.Baseline.Checksum
	return l.ReplaceRange(ctx, result.Squashed, baseline)
}

var showMigrationsCmd = &cobra.Command{
	Use:   "show:migrations",
	Short: "Show every migration and its execution state",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.close()

		entries, err := e.exec.Status(cmd.Context())
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			ui.PrintInfo("No migrations found.")
			return nil
		}

		rows := make([][]string, 0, len(entries))
		for _, s := range entries {
			status := "pending"
			executed := "-"
			if s.Applied {
				status = "failed"
				if s.Success {
					status = "applied"
				}
				executed = s.ExecutedAt.Format("2006-01-02 15:04:05")
			}
			rows = append(rows, []string{s.Version, s.Name, status, executed})
		}
		ui.PrintTable([]string{"Version", "Name", "Status", "Executed At"}, rows)
		return nil
	},
}

// reportMigrateError prints pre-check failures in a readable form before the
// error propagates to the exit code.
func reportMigrateError(err error) {
	var dep *executor.DependencyError
	var conflict *executor.ConflictError
	var tx *executor.TransactionError
	switch {
	case errors.As(err, &dep):
		ui.PrintError("Migration %s depends on %s, which is not applied.", dep.Version, dep.Missing)
	case errors.As(err, &conflict):
		ui.PrintError("Migration %s conflicts with %s. Resolve the conflict before migrating.", conflict.Version, conflict.Other)
	case errors.As(err, &tx):
		ui.PrintError("Migration %s failed at: %s", tx.Version, tx.Statement)
	default:
		ui.PrintError("%v", err)
	}
}

func init() {
	rollbackCmd.Flags().IntVar(&rollbackSteps, "steps", 0, "number of migrations to roll back")
	rollbackCmd.Flags().StringVar(&rollbackVersion, "version", "", "roll back down to and including this version")
	refreshCmd.Flags().BoolVar(&refreshForce, "force", false, "skip the confirmation prompt")
	freshCmd.Flags().BoolVar(&freshForce, "force", false, "skip the confirmation prompt")
	squashCmd.Flags().StringVar(&squashTo, "to", "", "squash everything up to and including this version")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(freshCmd)
	rootCmd.AddCommand(squashCmd)
	rootCmd.AddCommand(showMigrationsCmd)
}
