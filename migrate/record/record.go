// Package record defines persisted migration artifacts and their on-disk store.
package record

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/schemaflow/schemaflow/migrate/diff"
	"github.com/schemaflow/schemaflow/schema"
)

// VersionFormat makes lexical and chronological order coincide.
const VersionFormat = "20060102150405"

// NewVersion derives a migration version from a timestamp.
func NewVersion(t time.Time) string {
	return t.UTC().Format(VersionFormat)
}

// ValidateVersion checks that a version string is well formed.
func ValidateVersion(v string) error {
	if _, err := time.Parse(VersionFormat, v); err != nil {
		return fmt.Errorf("invalid migration version %q: %w", v, err)
	}
	return nil
}

// MigrationRecord is one durable migration artifact. It is created once by the
// generator and immutable afterwards, except for being superseded by a squash.
type MigrationRecord struct {
	Version        string   `yaml:"version"`
	Name           string   `yaml:"name,omitempty"`
	Destructive    bool     `yaml:"destructive,omitempty"`
	RequiresBackup bool     `yaml:"requires_backup,omitempty"`
	AutoRollback   bool     `yaml:"auto_rollback,omitempty"`
	DependsOn      []string `yaml:"depends_on,omitempty"`
	ConflictsWith  []string `yaml:"conflicts_with,omitempty"`
	Parallel       bool     `yaml:"parallel,omitempty"`

	// Ops are the structural operations in the up direction. They allow
	// replaying the record onto a snapshot without parsing SQL.
	Ops []diff.Operation `yaml:"ops,omitempty"`

	Up   []string `yaml:"up"`
	Down []string `yaml:"down"`

	// Checksum guards against editing an already applied record on disk.
	Checksum string `yaml:"checksum,omitempty"`

	// ValidateFunc is an optional pre-execution check against the live schema,
	// set by library callers. It is never persisted; the store re-attaches it
	// when the record is loaded back within the same process.
	ValidateFunc func(*schema.SchemaSnapshot) error `yaml:"-"`
}

// DryRun returns the SQL that up would execute, without executing it.
func (r *MigrationRecord) DryRun() []string {
	return append([]string(nil), r.Up...)
}

// ComputeChecksum hashes the up SQL of the record.
func (r *MigrationRecord) ComputeChecksum() string {
	return Checksum(r.Up)
}

// Validate checks the record's contract: version, up and down are required.
func (r *MigrationRecord) Validate() error {
	if err := ValidateVersion(r.Version); err != nil {
		return err
	}
	if len(r.Up) == 0 {
		return fmt.Errorf("migration %s has no up statements", r.Version)
	}
	if len(r.Down) == 0 {
		return fmt.Errorf("migration %s has no down statements", r.Version)
	}
	for _, dep := range r.DependsOn {
		if dep == r.Version {
			return fmt.Errorf("migration %s depends on itself", r.Version)
		}
	}
	return nil
}

// Checksum hashes a statement list.
func Checksum(statements []string) string {
	hash := sha256.Sum256([]byte(strings.Join(statements, "\n")))
	return hex.EncodeToString(hash[:])
}

// Sort orders records by version ascending, in place.
func Sort(records []*MigrationRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].Version < records[j].Version
	})
}
