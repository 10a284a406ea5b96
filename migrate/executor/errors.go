package executor

import "fmt"

// DependencyError reports a pending migration whose prerequisite has no
// successful ledger entry and is not scheduled earlier in the same batch.
type DependencyError struct {
	Version string
	Missing string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("migration %s depends on %s, which has not executed successfully", e.Version, e.Missing)
}

// ConflictError reports two pending migrations that exclude each other,
// directly or transitively.
type ConflictError struct {
	Version string
	Other   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("pending migrations %s and %s conflict; resolve the conflict before migrating", e.Version, e.Other)
}

// TransactionError wraps a statement the database rejected, with the migration
// version and statement for context. It is never swallowed: the executor
// handles rollback and backup restore, then re-raises it.
type TransactionError struct {
	Version   string
	Statement string
	Err       error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("migration %s failed executing %q: %v", e.Version, e.Statement, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }

// ForceRequiredError reports a destructive operation invoked without explicit
// confirmation.
type ForceRequiredError struct {
	Operation string
}

func (e *ForceRequiredError) Error() string {
	return fmt.Sprintf("%s discards data; re-run with --force to confirm", e.Operation)
}

// ChecksumError reports an applied migration whose artifact changed on disk.
type ChecksumError struct {
	Version string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("migration %s was edited after it executed; its checksum no longer matches the ledger", e.Version)
}
