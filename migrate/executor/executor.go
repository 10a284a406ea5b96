// Package executor orders, runs and rolls back migrations against the ledger.
package executor

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/schemaflow/schemaflow/internal/debug"
	"github.com/schemaflow/schemaflow/migrate/introspect"
	"github.com/schemaflow/schemaflow/migrate/ledger"
	"github.com/schemaflow/schemaflow/migrate/record"
)

// Backuper is the slice of the backup manager the executor needs: a
// point-in-time export before a destructive up, and a restore after a failed
// one.
type Backuper interface {
	Create(ctx context.Context, version string) error
	Restore(ctx context.Context, version string) error
	Exists(version string) bool
}

// Executor runs migration records against one database.
type Executor struct {
	db       *sql.DB
	provider string
	ledger   *ledger.Ledger
	store    *record.Store
	backup   Backuper

	// ledgerMu serializes ledger commits of a concurrent group so ledger
	// ordering stays well-defined.
	ledgerMu sync.Mutex
}

// New creates an executor. backup may be nil when no record requires backups.
func New(db *sql.DB, provider string, store *record.Store, backup Backuper) *Executor {
	return &Executor{
		db:       db,
		provider: provider,
		ledger:   ledger.New(db, provider),
		store:    store,
		backup:   backup,
	}
}

// Ledger exposes the executor's ledger for status reporting and tests.
func (e *Executor) Ledger() *ledger.Ledger { return e.ledger }

// Migrate validates and runs every pending migration in version order.
// Dependency and conflict violations abort before any SQL executes. A failed
// migration aborts all remaining pending work: later migrations may assume the
// failed one's effect, so execution is fail-fast.
func (e *Executor) Migrate(ctx context.Context) ([]string, error) {
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
	pending, err := e.plan(records, entries)
	if err != nil {
		return nil, err
	}

	applied := make([]string, 0, len(pending))
	done := make(map[string]bool)
	for _, en := range entries {
		if en.Success {
			done[en.Version] = true
		}
	}

	i := 0
	for i < len(pending) {
		group := e.parallelGroup(pending[i:], done)
		if len(group) <= 1 {
			r := pending[i]
			if err := e.runUp(ctx, r); err != nil {
				return applied, err
			}
			done[r.Version] = true
			applied = append(applied, r.Version)
			i++
			continue
		}

		// Concurrent group: each member on its own connection from the shared
		// pool, ledger commits serialized. Any member's failure fails the
		// whole run.
		g, gctx := errgroup.WithContext(ctx)
		for _, r := range group {
			r := r
			g.Go(func() error { return e.runUp(gctx, r) })
		}
		if err := g.Wait(); err != nil {
			return applied, err
		}
		for _, r := range group {
			done[r.Version] = true
			applied = append(applied, r.Version)
		}
		i += len(group)
	}
	return applied, nil
}

// plan computes pending records and validates dependencies and conflicts
// before anything executes.
func (e *Executor) plan(records []*record.MigrationRecord, entries []ledger.Entry) ([]*record.MigrationRecord, error) {
	successful := make(map[string]ledger.Entry)
	for _, en := range entries {
		if en.Success {
			successful[en.Version] = en
		}
	}

	// Drift guard: an applied record whose artifact changed on disk is
	// refused outright.
	for _, r := range records {
		if en, ok := successful[r.Version]; ok && en.Checksum != "" && en.Checksum != r.ComputeChecksum() {
			return nil, &ChecksumError{Version: r.Version}
		}
	}

	var pending []*record.MigrationRecord
	pendingSet := make(map[string]int)
	for _, r := range records {
		if _, ok := successful[r.Version]; !ok {
			pendingSet[r.Version] = len(pending)
			pending = append(pending, r)
		}
	}

	// A dependency must either be already successful or scheduled earlier in
	// this batch.
	for i, r := range pending {
		for _, dep := range r.DependsOn {
			if _, ok := successful[dep]; ok {
				continue
			}
			if j, ok := pendingSet[dep]; ok && j < i {
				continue
			}
			return nil, &DependencyError{Version: r.Version, Missing: dep}
		}
	}

	// Conflicts are symmetric and transitive across the pending set: if any
	// two pending records are connected through conflictsWith declarations,
	// the batch aborts.
	adj := make(map[string][]string)
	link := func(a, b string) {
		adj[a] = append(adj[a], b)
		adj[b] = append(adj[b], a)
	}
	for _, r := range pending {
		for _, c := range r.ConflictsWith {
			link(r.Version, c)
		}
	}
	for _, r := range pending {
		reached := map[string]bool{r.Version: true}
		queue := []string{r.Version}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, next := range adj[cur] {
				if reached[next] {
					continue
				}
				reached[next] = true
				queue = append(queue, next)
				if _, ok := pendingSet[next]; ok && next != r.Version {
					return nil, &ConflictError{Version: r.Version, Other: next}
				}
			}
		}
	}
	return pending, nil
}

// parallelGroup returns the maximal prefix of pending records that may run
// concurrently: every member opted in, has its dependencies satisfied before
// the group, and needs no backup (backups are exclusive operations).
func (e *Executor) parallelGroup(pending []*record.MigrationRecord, done map[string]bool) []*record.MigrationRecord {
	var group []*record.MigrationRecord
	for _, r := range pending {
		if !r.Parallel || r.RequiresBackup {
			break
		}
		ok := true
		for _, dep := range r.DependsOn {
			if !done[dep] {
				ok = false
				break
			}
		}
		if !ok {
			break
		}
		group = append(group, r)
	}
	return group
}

// runUp executes one record's up inside a transaction. The ledger entry is
// written in the same transaction, so the commit is the durability boundary
// for both.
func (e *Executor) runUp(ctx context.Context, r *record.MigrationRecord) error {
	debug.Debug("running migration", "version", r.Version, "statements", len(r.Up))

	// A record's own pre-check sees the live schema and can veto the run
	// before any statement or backup happens.
	if r.ValidateFunc != nil {
		ins, err := introspect.New(e.db, e.provider)
		if err != nil {
			return err
		}
		snap, err := ins.Introspect(ctx)
		if err != nil {
			return fmt.Errorf("pre-check of migration %s could not read the schema: %w", r.Version, err)
		}
		if err := r.ValidateFunc(snap); err != nil {
			return fmt.Errorf("migration %s pre-check rejected the schema: %w", r.Version, err)
		}
	}

	if r.RequiresBackup {
		if e.backup == nil {
			return &TransactionError{Version: r.Version, Statement: "backup", Err: errNoBackupManager}
		}
		if err := e.backup.Create(ctx, r.Version); err != nil {
			return &TransactionError{Version: r.Version, Statement: "backup", Err: err}
		}
	}

	start := time.Now()
	err := e.execUp(ctx, r, start)
	if err == nil {
		return nil
	}

	// The transaction already rolled back. Best-effort recovery per the
	// record's flags, then record the failure and re-raise.
	if r.AutoRollback {
		e.attemptDown(ctx, r)
		if e.backup != nil && e.backup.Exists(r.Version) {
			if rerr := e.backup.Restore(ctx, r.Version); rerr != nil {
				debug.Error("backup restore after failure failed", "version", r.Version, "error", rerr)
			}
		}
	}
	failed := ledger.Entry{
		Version:     r.Version,
		ExecutedAt:  time.Now(),
		Success:     false,
		Checksum:    r.ComputeChecksum(),
		ExecutionMS: time.Since(start).Milliseconds(),
	}
	if lerr := e.ledger.Record(ctx, failed); lerr != nil {
		debug.Error("failed to record failed migration", "version", r.Version, "error", lerr)
	}
	return err
}

func (e *Executor) execUp(ctx context.Context, r *record.MigrationRecord, start time.Time) error {
	scope, err := beginScope(ctx, e.db)
	if err != nil {
		return &TransactionError{Version: r.Version, Statement: "BEGIN", Err: err}
	}
	defer scope.Close()

	for _, stmt := range r.Up {
		if err := scope.Exec(ctx, stmt); err != nil {
			return &TransactionError{Version: r.Version, Statement: stmt, Err: err}
		}
	}

	entry := ledger.Entry{
		Version:     r.Version,
		ExecutedAt:  time.Now(),
		Success:     true,
		Checksum:    r.ComputeChecksum(),
		ExecutionMS: time.Since(start).Milliseconds(),
	}
	e.ledgerMu.Lock()
	defer e.ledgerMu.Unlock()
	if err := e.ledger.RecordTx(ctx, scope.tx, entry); err != nil {
		return &TransactionError{Version: r.Version, Statement: "ledger write", Err: err}
	}
	if err := scope.Commit(); err != nil {
		return &TransactionError{Version: r.Version, Statement: "COMMIT", Err: err}
	}
	return nil
}

// attemptDown runs the record's down best-effort after a failed up. The up
// transaction already rolled back, so this normally finds nothing to undo; it
// exists for records whose statements have side effects outside the
// transaction (non-transactional DDL on some providers).
func (e *Executor) attemptDown(ctx context.Context, r *record.MigrationRecord) {
	scope, err := beginScope(ctx, e.db)
	if err != nil {
		return
	}
	defer scope.Close()
	for _, stmt := range r.Down {
		if err := scope.Exec(ctx, stmt); err != nil {
			debug.Debug("best-effort down statement failed", "version", r.Version, "error", err)
			return
		}
	}
	_ = scope.Commit()
}
