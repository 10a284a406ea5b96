package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/schemaflow/schemaflow/internal/debug"
	"github.com/schemaflow/schemaflow/migrate/ledger"
	"github.com/schemaflow/schemaflow/migrate/record"
)

var errNoBackupManager = errors.New("no backup manager configured")

// RollbackOptions select how far back to revert. Steps limits the number of
// entries reverted; Version reverts down to and including that version. At
// most one may be set; neither set means one step.
type RollbackOptions struct {
	Steps   int
	Version string
}

// Rollback reverts successful ledger entries in reverse chronological order.
// Each target's down runs in its own transaction; the ledger entry is deleted
// in that same transaction, so an interrupted rollback leaves the entry intact.
func (e *Executor) Rollback(ctx context.Context, opts RollbackOptions) ([]string, error) {
	if opts.Steps > 0 && opts.Version != "" {
		return nil, fmt.Errorf("rollback accepts steps or a target version, not both")
	}
	if err := e.ledger.Init(ctx); err != nil {
		return nil, err
	}
	successful, err := e.ledger.Successful(ctx)
	if err != nil {
		return nil, err
	}
	records, err := e.store.LoadAll()
	if err != nil {
		return nil, err
	}
	byVersion := make(map[string]*record.MigrationRecord, len(records))
	for _, r := range records {
		byVersion[r.Version] = r
	}

	targets, err := rollbackTargets(successful, opts)
	if err != nil {
		return nil, err
	}

	var reverted []string
	for _, entry := range targets {
		r, ok := byVersion[entry.Version]
		if !ok {
			return reverted, fmt.Errorf("cannot roll back %s: migration artifact not found", entry.Version)
		}
		if err := e.runDown(ctx, r); err != nil {
			return reverted, err
		}
		reverted = append(reverted, entry.Version)
	}
	return reverted, nil
}

// RollbackAll reverts every successful migration.
func (e *Executor) RollbackAll(ctx context.Context) ([]string, error) {
	return e.Rollback(ctx, RollbackOptions{Steps: -1})
}

func rollbackTargets(successful []ledger.Entry, opts RollbackOptions) ([]ledger.Entry, error) {
	// Entries arrive sorted by version ascending; walk them newest first.
	reversed := make([]ledger.Entry, 0, len(successful))
	for i := len(successful) - 1; i >= 0; i-- {
		reversed = append(reversed, successful[i])
	}

	if opts.Version != "" {
		var out []ledger.Entry
		for _, entry := range reversed {
			out = append(out, entry)
			if entry.Version == opts.Version {
				return out, nil
			}
		}
		return nil, fmt.Errorf("rollback target %s has no successful ledger entry", opts.Version)
	}

	steps := opts.Steps
	if steps == 0 {
		steps = 1
	}
	if steps < 0 || steps > len(reversed) {
		return reversed, nil
	}
	return reversed[:steps], nil
}

func (e *Executor) runDown(ctx context.Context, r *record.MigrationRecord) error {
	debug.Debug("rolling back migration", "version", r.Version, "statements", len(r.Down))
	scope, err := beginScope(ctx, e.db)
	if err != nil {
		return &TransactionError{Version: r.Version, Statement: "BEGIN", Err: err}
	}
	defer scope.Close()

	for _, stmt := range r.Down {
		if err := scope.Exec(ctx, stmt); err != nil {
			return &TransactionError{Version: r.Version, Statement: stmt, Err: err}
		}
	}
	if err := e.ledger.DeleteTx(ctx, scope.tx, r.Version); err != nil {
		return &TransactionError{Version: r.Version, Statement: "ledger delete", Err: err}
	}
	if err := scope.Commit(); err != nil {
		return &TransactionError{Version: r.Version, Statement: "COMMIT", Err: err}
	}
	return nil
}

// StatusEntry reports one known migration's state.
type StatusEntry struct {
	Version    string
	Name       string
	Applied    bool
	Success    bool
	ExecutedAt time.Time
}

// Status reports, for every known record in version order, whether it
// executed and when.
func (e *Executor) Status(ctx context.Context) ([]StatusEntry, error) {
	if err := e.ledger.Init(ctx); err != nil {
		return nil, err
	}
	records, err := e.store.LoadAll()
	if err != nil {
		return nil, err
	}
	entries, err := e.ledger.Entries(ctx)
	if err != nil {
		return nil, err
	}
	byVersion := make(map[string]ledger.Entry, len(entries))
	for _, entry := range entries {
		byVersion[entry.Version] = entry
	}

	out := make([]StatusEntry, 0, len(records))
	for _, r := range records {
		s := StatusEntry{Version: r.Version, Name: r.Name}
		if entry, ok := byVersion[r.Version]; ok {
			s.Applied = true
			s.Success = entry.Success
			s.ExecutedAt = entry.ExecutedAt
		}
		out = append(out, s)
	}
	return out, nil
}

// Refresh rolls everything back and migrates again, validating that every
// migration is cleanly reversible. It discards data, so it demands force.
func (e *Executor) Refresh(ctx context.Context, force bool) error {
	if !force {
		return &ForceRequiredError{Operation: "refresh"}
	}
	if _, err := e.RollbackAll(ctx); err != nil {
		return err
	}
	_, err := e.Migrate(ctx)
	return err
}

// Fresh drops every known table outright, bypassing diffing, then migrates
// from an empty baseline. It discards all data regardless of destructiveness
// flags, so it demands force.
func (e *Executor) Fresh(ctx context.Context, force bool) error {
	if !force {
		return &ForceRequiredError{Operation: "fresh"}
	}
	records, err := e.store.LoadAll()
	if err != nil {
		return err
	}
	tables, err := knownTables(records)
	if err != nil {
		return err
	}

	scope, err := beginScope(ctx, e.db)
	if err != nil {
		return err
	}
	defer scope.Close()
	// Reverse creation order so referencing tables drop before referenced ones.
	for i := len(tables) - 1; i >= 0; i-- {
		if err := scope.Exec(ctx, "DROP TABLE IF EXISTS "+tables[i]); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", tables[i], err)
		}
	}
	if err := scope.Exec(ctx, "DROP TABLE IF EXISTS "+ledger.TableName); err != nil {
		return fmt.Errorf("failed to drop ledger table: %w", err)
	}
	if err := scope.Commit(); err != nil {
		return err
	}

	_, err = e.Migrate(ctx)
	return err
}

// knownTables replays every record's operations to find the tables the
// migration set has ever created, in creation order.
func knownTables(records []*record.MigrationRecord) ([]string, error) {
	var tables []string
	seen := make(map[string]bool)
	for _, r := range records {
		for _, op := range r.Ops {
			if op.TableDef != nil && !seen[op.Table] {
				seen[op.Table] = true
				tables = append(tables, op.Table)
			}
		}
	}
	return tables, nil
}
