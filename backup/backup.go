// Package backup creates and restores point-in-time SQL exports of the
// database, keyed by the migration version that triggered them.
package backup

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/schemaflow/schemaflow/internal/debug"
)

// NotFoundError is returned when no backup exists for the requested version.
type NotFoundError struct {
	Version string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no backup found for version %s", e.Version)
}

// Info describes one stored backup.
type Info struct {
	Version   string    `yaml:"version"`
	Database  string    `yaml:"database"`
	Path      string    `yaml:"path"`
	Size      int64     `yaml:"size"`
	Checksum  string    `yaml:"checksum"`
	CreatedAt time.Time `yaml:"created_at"`
}

// Manager stores backups as SQL scripts in a directory, one file per backup
// plus a metadata sidecar. All operations on one Manager are serialized, so a
// backup in flight blocks any concurrent backup or restore.
type Manager struct {
	db       *sql.DB
	provider string
	database string
	fs       afero.Fs
	dir      string
	now      func() time.Time

	mu sync.Mutex
}

// NewManager creates a backup manager writing under dir on fs.
func NewManager(db *sql.DB, provider, database string, fs afero.Fs, dir string) *Manager {
	return &Manager{
		db:       db,
		provider: provider,
		database: database,
		fs:       fs,
		dir:      dir,
		now:      time.Now,
	}
}

// Create exports the current database state as a backup for version.
func (m *Manager) Create(ctx context.Context, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	started := m.now()
	stmts, err := dump(ctx, m.db, m.provider)
	if err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}
	script := joinStatements(stmts)

	if err := m.fs.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}
	name := fmt.Sprintf("%s_%s_%s.sql", m.database, version, started.Format("20060102150405"))
	path := filepath.Join(m.dir, name)
	if err := afero.WriteFile(m.fs, path, []byte(script), 0o644); err != nil {
		return fmt.Errorf("failed to write backup file: %w", err)
	}

	sum := sha256.Sum256([]byte(script))
	info := Info{
		Version:   version,
		Database:  m.database,
		Path:      path,
		Size:      int64(len(script)),
		Checksum:  hex.EncodeToString(sum[:]),
		CreatedAt: started,
	}
	meta, err := yaml.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal backup metadata: %w", err)
	}
	if err := afero.WriteFile(m.fs, path+".yaml", meta, 0o644); err != nil {
		return fmt.Errorf("failed to write backup metadata: %w", err)
	}
	debug.Info("backup created", "version", version, "path", path, "size", info.Size)
	return nil
}

// List returns all backups, most recent first.
func (m *Manager) List() ([]Info, error) {
	entries, err := afero.ReadDir(m.fs, m.dir)
	if err != nil {
		if exists, _ := afero.DirExists(m.fs, m.dir); !exists {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var infos []Info
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql.yaml") {
			continue
		}
		data, err := afero.ReadFile(m.fs, filepath.Join(m.dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read backup metadata: %w", err)
		}
		var info Info
		if err := yaml.Unmarshal(data, &info); err != nil {
			return nil, fmt.Errorf("failed to parse backup metadata %s: %w", entry.Name(), err)
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})
	return infos, nil
}

// Exists reports whether a backup for the exact version is stored.
func (m *Manager) Exists(version string) bool {
	infos, err := m.List()
	if err != nil {
		return false
	}
	for _, info := range infos {
		if info.Version == version {
			return true
		}
	}
	return false
}

// Restore replays the most recent backup for the exact version given. The
// version must match what Create was called with; prefixes do not match.
func (m *Manager) Restore(ctx context.Context, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	infos, err := m.List()
	if err != nil {
		return err
	}
	var target *Info
	for i := range infos {
		if infos[i].Version == version {
			target = &infos[i]
			break
		}
	}
	if target == nil {
		return &NotFoundError{Version: version}
	}

	data, err := afero.ReadFile(m.fs, target.Path)
	if err != nil {
		return fmt.Errorf("failed to read backup file: %w", err)
	}
	sum := sha256.Sum256(data)
	if got := hex.EncodeToString(sum[:]); got != target.Checksum {
		return fmt.Errorf("backup file %s is corrupt: checksum mismatch", target.Path)
	}

	stmts := splitStatements(string(data))
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin restore transaction: %w", err)
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("restore statement failed: %s: %w", stmt, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit restore: %w", err)
	}
	debug.Info("backup restored", "version", version, "path", target.Path)
	return nil
}

// Cleanup deletes backups older than retentionDays and returns how many were
// removed. A retention of zero removes every backup.
func (m *Manager) Cleanup(retentionDays int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	infos, err := m.List()
	if err != nil {
		return 0, err
	}
	cutoff := m.now().AddDate(0, 0, -retentionDays)
	deleted := 0
	for _, info := range infos {
		if !info.CreatedAt.Before(cutoff) {
			continue
		}
		if err := m.fs.Remove(info.Path); err != nil {
			return deleted, fmt.Errorf("failed to delete backup %s: %w", info.Path, err)
		}
		if err := m.fs.Remove(info.Path + ".yaml"); err != nil {
			return deleted, fmt.Errorf("failed to delete backup metadata %s: %w", info.Path, err)
		}
		deleted++
		debug.Debug("backup deleted", "version", info.Version, "path", info.Path)
	}
	return deleted, nil
}

// TotalSize sums the sizes of all stored backups.
func (m *Manager) TotalSize() (int64, error) {
	infos, err := m.List()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, info := range infos {
		total += info.Size
	}
	return total, nil
}

// FormatSize renders a byte count for humans.
func FormatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
