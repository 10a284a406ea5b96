package executor

import (
	"context"
	"database/sql"
	"fmt"
)

// txScope wraps one database transaction and guarantees release on every exit
// path: the deferred Close rolls back anything not explicitly committed.
type txScope struct {
	tx        *sql.Tx
	committed bool
}

func beginScope(ctx context.Context, db *sql.DB) (*txScope, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &txScope{tx: tx}, nil
}

// Exec runs one statement inside the scope.
func (s *txScope) Exec(ctx context.Context, stmt string) error {
	_, err := s.tx.ExecContext(ctx, stmt)
	return err
}

// Commit makes the scope's work durable. The commit is the durability
// boundary for the migration it wraps.
func (s *txScope) Commit() error {
	if err := s.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.committed = true
	return nil
}

// Close rolls back if Commit never ran. Safe to defer unconditionally.
func (s *txScope) Close() {
	if !s.committed {
		_ = s.tx.Rollback()
	}
}
