package backup

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec("CREATE TABLE users (id INTEGER PRIMARY KEY AUTOINCREMENT, email TEXT NOT NULL)")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO users (email) VALUES ('a@example.com'), ('b@example.com')")
	require.NoError(t, err)
	return db
}

func newTestManager(t *testing.T, db *sql.DB) *Manager {
	t.Helper()
	return NewManager(db, "sqlite", "testdb", afero.NewMemMapFs(), "backups")
}

func TestCreateAndList(t *testing.T) {
	db := openTestDB(t)
	m := newTestManager(t, db)
	ctx := context.Background()

	require.NoError(t, m.Create(ctx, "20240101000000"))

	infos, err := m.List()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	info := infos[0]
	assert.Equal(t, "20240101000000", info.Version)
	assert.Equal(t, "testdb", info.Database)
	assert.Positive(t, info.Size)
	assert.NotEmpty(t, info.Checksum)
	assert.True(t, m.Exists("20240101000000"))
	assert.False(t, m.Exists("20240102000000"))
}

func TestListOnEmptyDirectory(t *testing.T) {
	db := openTestDB(t)
	m := newTestManager(t, db)

	infos, err := m.List()
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestListMostRecentFirst(t *testing.T) {
	db := openTestDB(t)
	m := newTestManager(t, db)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }
	require.NoError(t, m.Create(ctx, "20240101000000"))
	m.now = func() time.Time { return base.Add(time.Hour) }
	require.NoError(t, m.Create(ctx, "20240102000000"))

	infos, err := m.List()
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "20240102000000", infos[0].Version)
	assert.Equal(t, "20240101000000", infos[1].Version)
}

func TestRestoreBringsDataBack(t *testing.T) {
	db := openTestDB(t)
	m := newTestManager(t, db)
	ctx := context.Background()

	require.NoError(t, m.Create(ctx, "20240101000000"))

	// Lose data after the backup.
	_, err := db.Exec("DELETE FROM users")
	require.NoError(t, err)

	require.NoError(t, m.Restore(ctx, "20240101000000"))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM users").Scan(&count))
	assert.Equal(t, 2, count)

	var email string
	require.NoError(t, db.QueryRow("SELECT email FROM users WHERE id = 1").Scan(&email))
	assert.Equal(t, "a@example.com", email)
}

func TestRestoreSurvivesSemicolonsAndNewlinesInData(t *testing.T) {
	db := openTestDB(t)
	m := newTestManager(t, db)
	ctx := context.Background()

	_, err := db.Exec("CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT NOT NULL)")
	require.NoError(t, err)
	body := "line one;\nline two; it's done"
	_, err = db.Exec("INSERT INTO notes (id, body) VALUES (1, ?)", body)
	require.NoError(t, err)

	require.NoError(t, m.Create(ctx, "20240101000000"))
	_, err = db.Exec("DELETE FROM notes")
	require.NoError(t, err)

	require.NoError(t, m.Restore(ctx, "20240101000000"))

	var got string
	require.NoError(t, db.QueryRow("SELECT body FROM notes WHERE id = 1").Scan(&got))
	assert.Equal(t, body, got)
}

func TestSplitStatementsHonorsStringLiterals(t *testing.T) {
	script := joinStatements([]string{
		"INSERT INTO notes (id, body) VALUES (1, 'a;\nb')",
		"INSERT INTO notes (id, body) VALUES (2, 'it''s; fine')",
	})
	stmts := splitStatements(script)
	require.Len(t, stmts, 2)
	assert.Equal(t, "INSERT INTO notes (id, body) VALUES (1, 'a;\nb')", stmts[0])
	assert.Equal(t, "INSERT INTO notes (id, body) VALUES (2, 'it''s; fine')", stmts[1])
}

func TestRestoreRequiresExactVersion(t *testing.T) {
	db := openTestDB(t)
	m := newTestManager(t, db)
	ctx := context.Background()

	require.NoError(t, m.Create(ctx, "20240101000000"))

	err := m.Restore(ctx, "20240101")
	require.Error(t, err)
	var notFound *NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestRestoreDetectsCorruptFile(t *testing.T) {
	db := openTestDB(t)
	fs := afero.NewMemMapFs()
	m := NewManager(db, "sqlite", "testdb", fs, "backups")
	ctx := context.Background()

	require.NoError(t, m.Create(ctx, "20240101000000"))
	infos, err := m.List()
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, infos[0].Path, []byte("tampered"), 0o644))

	err = m.Restore(ctx, "20240101000000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum")
}

func TestCleanupRetention(t *testing.T) {
	db := openTestDB(t)
	m := newTestManager(t, db)
	ctx := context.Background()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	ages := map[string]int{
		"20240101000001": 10,
		"20240101000002": 40,
		"20240101000003": 90,
	}
	for version, age := range ages {
		m.now = func() time.Time { return now.AddDate(0, 0, -age) }
		require.NoError(t, m.Create(ctx, version))
	}
	m.now = func() time.Time { return now }

	deleted, err := m.Cleanup(30)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	infos, err := m.List()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "20240101000001", infos[0].Version)
}

func TestCleanupZeroDaysDeletesEverything(t *testing.T) {
	db := openTestDB(t)
	m := newTestManager(t, db)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }
	require.NoError(t, m.Create(ctx, "20240101000001"))
	require.NoError(t, m.Create(ctx, "20240101000002"))

	m.now = func() time.Time { return base.Add(time.Minute) }
	deleted, err := m.Cleanup(0)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	infos, err := m.List()
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestCleanupLongRetentionKeepsEverything(t *testing.T) {
	db := openTestDB(t)
	m := newTestManager(t, db)
	ctx := context.Background()

	require.NoError(t, m.Create(ctx, "20240101000001"))

	deleted, err := m.Cleanup(9999)
	require.NoError(t, err)
	assert.Zero(t, deleted)
	assert.True(t, m.Exists("20240101000001"))
}

func TestTotalSize(t *testing.T) {
	db := openTestDB(t)
	m := newTestManager(t, db)
	ctx := context.Background()

	total, err := m.TotalSize()
	require.NoError(t, err)
	assert.Zero(t, total)

	require.NoError(t, m.Create(ctx, "20240101000001"))
	require.NoError(t, m.Create(ctx, "20240101000002"))

	infos, err := m.List()
	require.NoError(t, err)
	var want int64
	for _, info := range infos {
		want += info.Size
	}
	total, err = m.TotalSize()
	require.NoError(t, err)
	assert.Equal(t, want, total)
	assert.Positive(t, total)
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "1.0 KiB", FormatSize(1024))
	assert.Equal(t, "1.5 MiB", FormatSize(3*1024*1024/2))
}

func TestDumpOrdersReferencedTablesFirst(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Exec(`CREATE TABLE posts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE
	)`)
	require.NoError(t, err)

	stmts, err := dump(context.Background(), db, "sqlite")
	require.NoError(t, err)

	createUsers, createPosts := -1, -1
	for i, s := range stmts {
		if strings.HasPrefix(s, "CREATE TABLE users") {
			createUsers = i
		}
		if strings.HasPrefix(s, "CREATE TABLE posts") {
			createPosts = i
		}
	}
	require.GreaterOrEqual(t, createUsers, 0)
	require.GreaterOrEqual(t, createPosts, 0)
	assert.Less(t, createUsers, createPosts, "referenced table must be created first")
}
