package ledger

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	l := New(db, "sqlite")
	require.NoError(t, l.Init(context.Background()))
	return l
}

func entry(version string, success bool) Entry {
	return Entry{
		Version:     version,
		ExecutedAt:  time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		Success:     success,
		Checksum:    "abc123",
		ExecutionMS: 42,
	}
}

func TestInitIsIdempotent(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.Init(context.Background()))
}

func TestRecordAndGet(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Record(ctx, entry("20240101000000", true)))

	got, err := l.Get(ctx, "20240101000000")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Success)
	assert.Equal(t, "abc123", got.Checksum)
	assert.Equal(t, int64(42), got.ExecutionMS)

	missing, err := l.Get(ctx, "20249999999999")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRecordReplacesInsteadOfAppending(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Record(ctx, entry("20240101000000", false)))
	require.NoError(t, l.Record(ctx, entry("20240101000000", true)))

	entries, err := l.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Success)
}

func TestSuccessfulFiltersFailures(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Record(ctx, entry("20240101000000", true)))
	require.NoError(t, l.Record(ctx, entry("20240102000000", false)))
	require.NoError(t, l.Record(ctx, entry("20240103000000", true)))

	successful, err := l.Successful(ctx)
	require.NoError(t, err)
	require.Len(t, successful, 2)
	assert.Equal(t, "20240101000000", successful[0].Version)
	assert.Equal(t, "20240103000000", successful[1].Version)
}

func TestEntriesOrderedByVersion(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Record(ctx, entry("20240103000000", true)))
	require.NoError(t, l.Record(ctx, entry("20240101000000", true)))

	entries, err := l.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "20240101000000", entries[0].Version)
	assert.Equal(t, "20240103000000", entries[1].Version)
}

func TestDelete(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Record(ctx, entry("20240101000000", true)))
	require.NoError(t, l.Delete(ctx, "20240101000000"))

	entries, err := l.Entries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReplaceRange(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Record(ctx, entry("20240101000000", true)))
	require.NoError(t, l.Record(ctx, entry("20240102000000", true)))
	require.NoError(t, l.Record(ctx, entry("20240103000000", true)))

	baseline := entry("20240102000000", true)
	baseline.Checksum = "baseline-sum"
	require.NoError(t, l.ReplaceRange(ctx, []string{"20240101000000", "20240102000000"}, baseline))

	entries, err := l.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "20240102000000", entries[0].Version)
	assert.Equal(t, "baseline-sum", entries[0].Checksum)
	assert.Equal(t, "20240103000000", entries[1].Version)
}
