// Package ledger tracks which migration versions have executed.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TableName is the ledger table created in the target database itself.
const TableName = "_schemaflow_ledger"

// Entry is one ledger row. A version with Success true is immutable; a re-run
// of a failed version replaces its entry, never appends a second one.
type Entry struct {
	Version     string
	ExecutedAt  time.Time
	Success     bool
	Checksum    string
	ExecutionMS int64
}

// Ledger persists entries in the target database.
type Ledger struct {
	db       *sql.DB
	provider string
}

// New creates a ledger over an open database handle.
func New(db *sql.DB, provider string) *Ledger {
	return &Ledger{db: db, provider: provider}
}

// execer lets ledger writes run either on the bare handle or inside a
// migration's transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Init creates the ledger table if it does not exist.
func (l *Ledger) Init(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, l.createTableSQL()); err != nil {
		return fmt.Errorf("failed to create ledger table: %w", err)
	}
	return nil
}

// Entries returns all ledger rows ordered by version.
func (l *Ledger) Entries(ctx context.Context) ([]Entry, error) {
	query := fmt.Sprintf(`SELECT version, executed_at, success, checksum, execution_ms FROM %s ORDER BY version ASC`, TableName)
	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var success int
		if err := rows.Scan(&e.Version, &e.ExecutedAt, &success, &e.Checksum, &e.ExecutionMS); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.Success = success == 1
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Successful returns the successful entries ordered by version.
func (l *Ledger) Successful(ctx context.Context) ([]Entry, error) {
	all, err := l.Entries(ctx)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, e := range all {
		if e.Success {
			out = append(out, e)
		}
	}
	return out, nil
}

// Get returns the entry for one version, or nil if the version never ran.
func (l *Ledger) Get(ctx context.Context, version string) (*Entry, error) {
	query := fmt.Sprintf(`SELECT version, executed_at, success, checksum, execution_ms FROM %s WHERE version = %s`,
		TableName, l.placeholder(1))
	var e Entry
	var success int
	err := l.db.QueryRowContext(ctx, query, version).Scan(&e.Version, &e.ExecutedAt, &success, &e.Checksum, &e.ExecutionMS)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entry %s: %w", version, err)
	}
	e.Success = success == 1
	return &e, nil
}

// RecordTx writes an entry inside a migration's transaction, so the entry
// becomes durable only when the migration commits.
func (l *Ledger) RecordTx(ctx context.Context, tx *sql.Tx, e Entry) error {
	return l.record(ctx, tx, e)
}

// Record writes an entry on the bare handle. Used for failed runs, which must
// be recorded even though the migration's transaction rolled back.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	return l.record(ctx, l.db, e)
}

func (l *Ledger) record(ctx context.Context, ex execer, e Entry) error {
	// Replace, never append: a re-run overwrites the previous entry for the
	// same version.
	del := fmt.Sprintf(`DELETE FROM %s WHERE version = %s`, TableName, l.placeholder(1))
	if _, err := ex.ExecContext(ctx, del, e.Version); err != nil {
		return fmt.Errorf("failed to replace ledger entry %s: %w", e.Version, err)
	}
	ins := fmt.Sprintf(`INSERT INTO %s (version, executed_at, success, checksum, execution_ms) VALUES (%s, %s, %s, %s, %s)`,
		TableName, l.placeholder(1), l.placeholder(2), l.placeholder(3), l.placeholder(4), l.placeholder(5))
	success := 0
	if e.Success {
		success = 1
	}
	if _, err := ex.ExecContext(ctx, ins, e.Version, e.ExecutedAt, success, e.Checksum, e.ExecutionMS); err != nil {
		return fmt.Errorf("failed to write ledger entry %s: %w", e.Version, err)
	}
	return nil
}

// DeleteTx removes an entry inside a rollback's transaction.
func (l *Ledger) DeleteTx(ctx context.Context, tx *sql.Tx, version string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE version = %s`, TableName, l.placeholder(1))
	if _, err := tx.ExecContext(ctx, query, version); err != nil {
		return fmt.Errorf("failed to delete ledger entry %s: %w", version, err)
	}
	return nil
}

// Delete removes an entry on the bare handle.
func (l *Ledger) Delete(ctx context.Context, version string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE version = %s`, TableName, l.placeholder(1))
	if _, err := l.db.ExecContext(ctx, query, version); err != nil {
		return fmt.Errorf("failed to delete ledger entry %s: %w", version, err)
	}
	return nil
}

// ReplaceRange atomically replaces the entries for the squashed versions with
// a single entry for the baseline version.
func (l *Ledger) ReplaceRange(ctx context.Context, squashed []string, baseline Entry) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin ledger replacement: %w", err)
	}
	defer tx.Rollback()

	del := fmt.Sprintf(`DELETE FROM %s WHERE version = %s`, TableName, l.placeholder(1))
	for _, v := range squashed {
		if _, err := tx.ExecContext(ctx, del, v); err != nil {
			return fmt.Errorf("failed to remove squashed entry %s: %w", v, err)
		}
	}
	if err := l.record(ctx, tx, baseline); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ledger replacement: %w", err)
	}
	return nil
}

func (l *Ledger) createTableSQL() string {
	switch l.provider {
	case "postgresql", "postgres":
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				version VARCHAR(32) PRIMARY KEY,
				executed_at TIMESTAMP NOT NULL,
				success SMALLINT NOT NULL,
				checksum VARCHAR(64) NOT NULL DEFAULT '',
				execution_ms BIGINT NOT NULL DEFAULT 0
			)`, TableName)
	case "mysql":
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				version VARCHAR(32) PRIMARY KEY,
				executed_at TIMESTAMP NOT NULL,
				success TINYINT(1) NOT NULL,
				checksum VARCHAR(64) NOT NULL DEFAULT '',
				execution_ms BIGINT NOT NULL DEFAULT 0
			)`, TableName)
	default:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				version TEXT PRIMARY KEY,
				executed_at DATETIME NOT NULL,
				success INTEGER NOT NULL,
				checksum TEXT NOT NULL DEFAULT '',
				execution_ms INTEGER NOT NULL DEFAULT 0
			)`, TableName)
	}
}

func (l *Ledger) placeholder(n int) string {
	switch l.provider {
	case "postgresql", "postgres":
		return fmt.Sprintf("$%d", n)
	default:
		return "?"
	}
}
