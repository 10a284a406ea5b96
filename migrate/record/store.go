package record

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/schemaflow/schemaflow/schema"
)

// Store persists migration records as individual versioned YAML artifacts in a
// migrations directory.
type Store struct {
	fs  afero.Fs
	dir string

	// hooks holds ValidateFuncs by version. Functions cannot be persisted, so
	// a record loaded back in the same process gets its hook re-attached here.
	hooks map[string]func(*schema.SchemaSnapshot) error
}

// NewStore creates a store rooted at dir on the given filesystem.
func NewStore(fs afero.Fs, dir string) *Store {
	return &Store{
		fs:    fs,
		dir:   dir,
		hooks: make(map[string]func(*schema.SchemaSnapshot) error),
	}
}

// Dir returns the migrations directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(r *MigrationRecord) string {
	name := r.Version
	if r.Name != "" {
		name += "_" + r.Name
	}
	return filepath.Join(s.dir, name+".yaml")
}

// Save writes a record artifact. An existing artifact for the same version is
// never overwritten; records are immutable once written.
func (s *Store) Save(r *MigrationRecord) error {
	if err := r.Validate(); err != nil {
		return err
	}
	existing, err := s.find(r.Version)
	if err != nil {
		return err
	}
	if existing != "" {
		return fmt.Errorf("migration %s already exists at %s", r.Version, existing)
	}
	if r.Checksum == "" {
		r.Checksum = r.ComputeChecksum()
	}
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal migration %s: %w", r.Version, err)
	}
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create migrations directory: %w", err)
	}
	if err := afero.WriteFile(s.fs, s.path(r), data, 0o644); err != nil {
		return fmt.Errorf("failed to write migration %s: %w", r.Version, err)
	}
	if r.ValidateFunc != nil {
		s.hooks[r.Version] = r.ValidateFunc
	}
	return nil
}

// LoadAll reads every record artifact, sorted by version ascending.
func (s *Store) LoadAll() ([]*MigrationRecord, error) {
	exists, err := afero.DirExists(s.fs, s.dir)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}
	var records []*MigrationRecord
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		r, err := s.read(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	Sort(records)
	return records, nil
}

// Load returns the record for one version.
func (s *Store) Load(version string) (*MigrationRecord, error) {
	path, err := s.find(version)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, fmt.Errorf("migration %s not found in %s", version, s.dir)
	}
	return s.read(path)
}

// Delete removes the artifact for one version. Only squash may call this;
// everywhere else records are immutable.
func (s *Store) Delete(version string) error {
	path, err := s.find(version)
	if err != nil {
		return err
	}
	if path == "" {
		return fmt.Errorf("migration %s not found in %s", version, s.dir)
	}
	delete(s.hooks, version)
	return s.fs.Remove(path)
}

func (s *Store) find(version string) (string, error) {
	exists, err := afero.DirExists(s.fs, s.dir)
	if err != nil || !exists {
		return "", err
	}
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return "", fmt.Errorf("failed to read migrations directory: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") {
			continue
		}
		base := strings.TrimSuffix(name, ".yaml")
		if base == version || strings.HasPrefix(base, version+"_") {
			return filepath.Join(s.dir, name), nil
		}
	}
	return "", nil
}

func (s *Store) read(path string) (*MigrationRecord, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration %s: %w", path, err)
	}
	var r MigrationRecord
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse migration %s: %w", path, err)
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("invalid migration %s: %w", path, err)
	}
	r.ValidateFunc = s.hooks[r.Version]
	return &r, nil
}
