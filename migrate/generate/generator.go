// Package generate turns schema diffs into persisted migration records.
package generate

import (
	"fmt"
	"time"

	"github.com/schemaflow/schemaflow/internal/debug"
	"github.com/schemaflow/schemaflow/migrate/diff"
	"github.com/schemaflow/schemaflow/migrate/record"
	"github.com/schemaflow/schemaflow/migrate/sqlgen"
)

// DecisionKey identifies a rename candidate in a decision map.
func DecisionKey(op diff.Operation) string {
	return fmt.Sprintf("%s.%s->%s", op.Table, op.OldName, op.NewName)
}

// Options tune a generated record. Zero values give the defaults: version from
// the current time, backup tied to destructiveness, auto-rollback on.
type Options struct {
	Name          string
	Version       string
	DependsOn     []string
	ConflictsWith []string
	Parallel      bool

	// RequiresBackup overrides the default (which follows destructiveness).
	RequiresBackup *bool
	// DisableAutoRollback turns off best-effort down on failure.
	DisableAutoRollback bool
}

// Generator produces migration records from diffs.
type Generator struct {
	dialect sqlgen.Dialect
	store   *record.Store
	now     func() time.Time
}

// NewGenerator creates a generator for one dialect and record store.
func NewGenerator(dialect sqlgen.Dialect, store *record.Store) *Generator {
	return &Generator{dialect: dialect, store: store, now: time.Now}
}

// Generate turns a diff into a migration record. Every rename candidate in the
// diff must have an entry in decisions: true applies the rename, false
// degrades it to an explicit drop+add. A candidate without a decision is an
// AmbiguityError; renames are never applied on a guess.
func (g *Generator) Generate(d *diff.SchemaDiff, decisions map[string]bool, opts Options) (*record.MigrationRecord, error) {
	ops, err := resolveCandidates(d.Operations, decisions)
	if err != nil {
		return nil, err
	}
	ops = diff.Order(ops)

	up, err := sqlgen.Statements(g.dialect, ops)
	if err != nil {
		return nil, fmt.Errorf("failed to generate up SQL: %w", err)
	}
	inverted, err := diff.InvertAll(ops)
	if err != nil {
		return nil, err
	}
	down, err := sqlgen.Statements(g.dialect, inverted)
	if err != nil {
		return nil, fmt.Errorf("failed to generate down SQL: %w", err)
	}

	version := opts.Version
	if version == "" {
		version = record.NewVersion(g.now())
	}
	destructive := (&diff.SchemaDiff{Operations: ops}).HasDestructive()
	requiresBackup := destructive
	if opts.RequiresBackup != nil {
		requiresBackup = *opts.RequiresBackup
	}

	r := &record.MigrationRecord{
		Version:        version,
		Name:           opts.Name,
		Destructive:    destructive,
		RequiresBackup: requiresBackup,
		AutoRollback:   !opts.DisableAutoRollback,
		DependsOn:      opts.DependsOn,
		ConflictsWith:  opts.ConflictsWith,
		Parallel:       opts.Parallel,
		Ops:            ops,
		Up:             up,
		Down:           down,
	}
	r.Checksum = r.ComputeChecksum()
	debug.Debug("generated migration", "version", r.Version, "operations", len(ops), "destructive", destructive)
	return r, nil
}

// Create generates a record and persists it as a durable artifact.
func (g *Generator) Create(d *diff.SchemaDiff, decisions map[string]bool, opts Options) (*record.MigrationRecord, error) {
	r, err := g.Generate(d, decisions, opts)
	if err != nil {
		return nil, err
	}
	if err := g.store.Save(r); err != nil {
		return nil, err
	}
	return r, nil
}

// resolveCandidates finalizes rename candidates against the caller's
// decisions. Confirmed candidates become renames; denied candidates become an
// explicit drop+add pair.
func resolveCandidates(ops []diff.Operation, decisions map[string]bool) ([]diff.Operation, error) {
	out := make([]diff.Operation, 0, len(ops))
	for _, op := range ops {
		if op.Type != diff.OpRenameCandidate {
			out = append(out, op)
			continue
		}
		confirmed, decided := decisions[DecisionKey(op)]
		if !decided {
			return nil, &diff.AmbiguityError{Table: op.Table, OldName: op.OldName, NewName: op.NewName}
		}
		if confirmed {
			out = append(out, diff.Operation{
				Type:      diff.OpRenameColumn,
				Table:     op.Table,
				OldName:   op.OldName,
				NewName:   op.NewName,
				OldColumn: op.OldColumn,
				NewColumn: op.NewColumn,
			})
			continue
		}
		out = append(out,
			diff.Operation{
				Type:        diff.OpDropColumn,
				Table:       op.Table,
				Column:      op.OldColumn,
				Destructive: true,
			},
			diff.Operation{
				Type:   diff.OpAddColumn,
				Table:  op.Table,
				Column: op.NewColumn,
			},
		)
	}
	return out, nil
}
