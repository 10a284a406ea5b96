package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/schemaflow/schemaflow/cli/internal/config"
	"github.com/schemaflow/schemaflow/cli/internal/ui"
	"github.com/schemaflow/schemaflow/cli/internal/watch"
	"github.com/schemaflow/schemaflow/migrate/diff"
	"github.com/schemaflow/schemaflow/migrate/generate"
	"github.com/schemaflow/schemaflow/migrate/introspect"
	"github.com/schemaflow/schemaflow/migrate/sqlgen"
	"github.com/schemaflow/schemaflow/schema/dsl"
)

var (
	makeDryRun    bool
	makeWatch     bool
	makeParallel  bool
	makeBackup    bool
	makeDependsOn []string
	makeConflicts []string
)

var makeMigrationCmd = &cobra.Command{
	Use:   "make:migration [name]",
	Short: "Generate a migration from the schema file",
	Long: `Diff the declared schema against the live database and write a new
migration record with up and down SQL.

Column renames are heuristic: each candidate must be confirmed or denied
interactively. A denied candidate becomes an explicit drop and add.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) > 0 {
			name = args[0]
		}
		if makeWatch {
			return watchMigrations(cmd, name)
		}
		return makeMigration(cmd, name, true)
	},
}

func makeMigration(cmd *cobra.Command, name string, interactive bool) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.close()

	f, err := config.AppFs.Open(e.cfg.SchemaPath)
	if err != nil {
		return fmt.Errorf("failed to open schema file: %w", err)
	}
	desired, err := dsl.Parse(e.cfg.SchemaPath, f)
	f.Close()
	if err != nil {
		return err
	}

	ins, err := introspect.New(e.db, e.cfg.Provider)
	if err != nil {
		return err
	}
	actual, err := ins.Introspect(cmd.Context())
	if err != nil {
		return err
	}

	d, err := diff.NewDiffer().Compare(desired, actual)
	if err != nil {
		return err
	}
	if d.Empty() {
		ui.PrintInfo("Schema is up to date, nothing to generate.")
		return nil
	}

	var decisions map[string]bool
	if interactive {
		decisions, err = resolveRenames(d)
		if err != nil {
			return err
		}
	} else if candidates := d.RenameCandidates(); len(candidates) > 0 {
		// Non-interactive previews must not block on a prompt. Candidates
		// stay pending and the rest of the diff is rendered without them.
		for _, op := range candidates {
			ui.PrintWarning("Pending rename decision: %s.%s -> %s (%s)",
				op.Table, op.OldName, op.NewName, op.Similarity)
		}
		d = d.WithoutRenameCandidates()
		if d.Empty() {
			return nil
		}
	}

	dialect, err := sqlgen.New(e.cfg.Provider)
	if err != nil {
		return err
	}
	gen := generate.NewGenerator(dialect, e.store)
	opts := generate.Options{
		Name:          name,
		DependsOn:     makeDependsOn,
		ConflictsWith: makeConflicts,
		Parallel:      makeParallel,
	}
	if makeBackup {
		t := true
		opts.RequiresBackup = &t
	}

	if makeDryRun {
		rec, err := gen.Generate(d, decisions, opts)
		if err != nil {
			return err
		}
		return printDryRun(rec.Version, rec.Up, rec.Down, rec.Destructive)
	}

	rec, err := gen.Create(d, decisions, opts)
	if err != nil {
		return err
	}
	if rec.Destructive {
		ui.PrintWarning("Migration %s contains destructive operations.", rec.Version)
	}
	ui.PrintSuccess("Created migration %s", rec.Version)
	return nil
}

// resolveRenames walks each candidate and asks the user to confirm or deny it.
func resolveRenames(d *diff.SchemaDiff) (map[string]bool, error) {
	candidates := d.RenameCandidates()
	if len(candidates) == 0 {
		return nil, nil
	}
	decisions := make(map[string]bool, len(candidates))
	for _, op := range candidates {
		question := fmt.Sprintf("Rename %s.%s to %s? (%s)",
			op.Table, op.OldName, op.NewName, op.Similarity)
		ok, err := ui.Confirm(question, false)
		if err != nil {
			return nil, err
		}
		decisions[generate.DecisionKey(op)] = ok
	}
	return decisions, nil
}

// printDryRun renders pending SQL as markdown without writing anything.
func printDryRun(version string, up, down []string, destructive bool) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# Migration %s (dry run)\n\n", version)
	if destructive {
		b.WriteString("**Warning: contains destructive operations.**\n\n")
	}
	b.WriteString("## Up\n\n```sql\n")
	for _, s := range up {
		b.WriteString(s)
		b.WriteString(";\n")
	}
	b.WriteString("```\n\n## Down\n\n```sql\n")
	for _, s := range down {
		b.WriteString(s)
		b.WriteString(";\n")
	}
	b.WriteString("```\n")
	return ui.PrintMarkdown(b.String())
}

// watchMigrations re-runs generation in dry-run mode whenever the schema file
// changes.
func watchMigrations(cmd *cobra.Command, name string) error {
	cfgPath := "schema.flow"
	if e, err := newEnv(); err == nil {
		cfgPath = e.cfg.SchemaPath
		e.close()
	}

	// Watch mode never writes records, each change renders a fresh dry run.
	makeDryRun = true
	w, err := watch.NewWatcher(cfgPath, func() error {
		if err := makeMigration(cmd, name, false); err != nil {
			ui.PrintError("%v", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	ui.PrintInfo("Watching %s for changes. Press Ctrl+C to stop.", cfgPath)
	w.Wait()
	return nil
}

func init() {
	makeMigrationCmd.Flags().BoolVar(&makeDryRun, "dry-run", false, "print the SQL without writing a record")
	makeMigrationCmd.Flags().BoolVar(&makeWatch, "watch", false, "watch the schema file and re-render on change")
	makeMigrationCmd.Flags().BoolVar(&makeParallel, "parallel", false, "mark the record safe for concurrent execution")
	makeMigrationCmd.Flags().BoolVar(&makeBackup, "backup", false, "force a backup before this migration runs")
	makeMigrationCmd.Flags().StringSliceVar(&makeDependsOn, "depends-on", nil, "versions this migration depends on")
	makeMigrationCmd.Flags().StringSliceVar(&makeConflicts, "conflicts-with", nil, "versions this migration conflicts with")

	rootCmd.AddCommand(makeMigrationCmd)
}
