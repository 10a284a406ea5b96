package commands

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemaflow/schemaflow/migrate/generate"
	"github.com/schemaflow/schemaflow/migrate/ledger"
	"github.com/schemaflow/schemaflow/migrate/record"
)

func openLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	l := ledger.New(db, "sqlite")
	require.NoError(t, l.Init(context.Background()))
	return l
}

func recordSuccess(t *testing.T, l *ledger.Ledger, version string) {
	t.Helper()
	require.NoError(t, l.Record(context.Background(), ledger.Entry{
		Version:    version,
		ExecutedAt: time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC),
		Success:    true,
		Checksum:   "old-" + version,
	}))
}

func TestRewriteSquashedLedgerReplacesRange(t *testing.T) {
	l := openLedger(t)
	ctx := context.Background()
	recordSuccess(t, l, "20240101000001")
	recordSuccess(t, l, "20240101000002")
	recordSuccess(t, l, "20240101000003")

	result := &generate.SquashResult{
		Baseline: &record.MigrationRecord{Version: "20240101000002", Checksum: "baseline-sum"},
		Squashed: []string{"20240101000001", "20240101000002"},
	}
	require.NoError(t, rewriteSquashedLedger(ctx, l, result))

	entries, err := l.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "20240101000002", entries[0].Version)
	assert.Equal(t, "baseline-sum", entries[0].Checksum)
	assert.True(t, entries[0].Success)
	assert.Equal(t, "20240101000003", entries[1].Version)
}

func TestRewriteSquashedLedgerWithoutBoundaryEntry(t *testing.T) {
	// Only an early version in the run ever executed; its entry must still be
	// replaced by the baseline, never orphaned.
	l := openLedger(t)
	ctx := context.Background()
	recordSuccess(t, l, "20240101000001")

	result := &generate.SquashResult{
		Baseline: &record.MigrationRecord{Version: "20240101000002", Checksum: "baseline-sum"},
		Squashed: []string{"20240101000001", "20240101000002"},
	}
	require.NoError(t, rewriteSquashedLedger(ctx, l, result))

	entries, err := l.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "20240101000002", entries[0].Version)
	assert.Equal(t, "baseline-sum", entries[0].Checksum)
}

func TestRewriteSquashedLedgerNoEntriesIsNoop(t *testing.T) {
	l := openLedger(t)
	ctx := context.Background()

	result := &generate.SquashResult{
		Baseline: &record.MigrationRecord{Version: "20240101000002", Checksum: "baseline-sum"},
		Squashed: []string{"20240101000001", "20240101000002"},
	}
	require.NoError(t, rewriteSquashedLedger(ctx, l, result))

	entries, err := l.Entries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
