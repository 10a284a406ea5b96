// Package schema defines the snapshot model for relational schemas.
package schema

import (
	"fmt"
	"sort"
	"strings"
)

// ColumnType enumerates the SQL type families a column can carry.
type ColumnType string

const (
	TypeInt       ColumnType = "int"
	TypeBigInt    ColumnType = "bigint"
	TypeSmallInt  ColumnType = "smallint"
	TypeDecimal   ColumnType = "decimal"
	TypeFloat     ColumnType = "float"
	TypeVarchar   ColumnType = "varchar"
	TypeText      ColumnType = "text"
	TypeBlob      ColumnType = "blob"
	TypeBoolean   ColumnType = "boolean"
	TypeDate      ColumnType = "date"
	TypeTime      ColumnType = "time"
	TypeDateTime  ColumnType = "datetime"
	TypeTimestamp ColumnType = "timestamp"
	TypeJSON      ColumnType = "json"
	TypeEnum      ColumnType = "enum"
)

// ForeignKeyAction is the referential action taken when the referenced row is deleted.
type ForeignKeyAction string

const (
	ActionCascade  ForeignKeyAction = "CASCADE"
	ActionSetNull  ForeignKeyAction = "SET NULL"
	ActionRestrict ForeignKeyAction = "RESTRICT"
	ActionNoAction ForeignKeyAction = "NO ACTION"
)

// Reference identifies the target of a foreign-key column.
type Reference struct {
	Table    string           `yaml:"table"`
	Column   string           `yaml:"column"`
	OnDelete ForeignKeyAction `yaml:"on_delete,omitempty"`
}

// ColumnDefinition is an immutable description of one table column.
type ColumnDefinition struct {
	Name       string     `yaml:"name"`
	Type       ColumnType `yaml:"type"`
	Size       int        `yaml:"size,omitempty"`
	Nullable   bool       `yaml:"nullable,omitempty"`
	Unique     bool       `yaml:"unique,omitempty"`
	PrimaryKey bool       `yaml:"primary_key,omitempty"`
	Default    *string    `yaml:"default,omitempty"`
	EnumValues []string   `yaml:"enum_values,omitempty"`
	Reference  *Reference `yaml:"reference,omitempty"`
}

// Equal reports structural equality of two column definitions.
func (c ColumnDefinition) Equal(other ColumnDefinition) bool {
	if c.Name != other.Name || c.Type != other.Type || c.Size != other.Size ||
		c.Nullable != other.Nullable || c.Unique != other.Unique ||
		c.PrimaryKey != other.PrimaryKey {
		return false
	}
	if (c.Default == nil) != (other.Default == nil) {
		return false
	}
	if c.Default != nil && *c.Default != *other.Default {
		return false
	}
	if !stringSlicesEqual(c.EnumValues, other.EnumValues) {
		return false
	}
	if (c.Reference == nil) != (other.Reference == nil) {
		return false
	}
	if c.Reference != nil && *c.Reference != *other.Reference {
		return false
	}
	return true
}

// IsForeignKey reports whether the column references another table.
func (c ColumnDefinition) IsForeignKey() bool {
	return c.Reference != nil
}

// Index describes a (possibly unique) index over one or more columns.
type Index struct {
	Name    string   `yaml:"name,omitempty"`
	Columns []string `yaml:"columns"`
	Unique  bool     `yaml:"unique,omitempty"`
}

// Equal compares indexes by structure, ignoring the name.
func (i Index) Equal(other Index) bool {
	return i.Unique == other.Unique && stringSlicesEqual(i.Columns, other.Columns)
}

// ForeignKey describes a table-level foreign-key constraint.
type ForeignKey struct {
	Name              string           `yaml:"name,omitempty"`
	Columns           []string         `yaml:"columns"`
	ReferencedTable   string           `yaml:"referenced_table"`
	ReferencedColumns []string         `yaml:"referenced_columns"`
	OnDelete          ForeignKeyAction `yaml:"on_delete,omitempty"`
}

// Equal compares foreign keys by structure, ignoring the constraint name.
func (f ForeignKey) Equal(other ForeignKey) bool {
	return f.ReferencedTable == other.ReferencedTable &&
		f.OnDelete == other.OnDelete &&
		stringSlicesEqual(f.Columns, other.Columns) &&
		stringSlicesEqual(f.ReferencedColumns, other.ReferencedColumns)
}

// TableSnapshot describes one table: its ordered columns, indexes and foreign keys.
type TableSnapshot struct {
	Name        string             `yaml:"name"`
	Columns     []ColumnDefinition `yaml:"columns"`
	Indexes     []Index            `yaml:"indexes,omitempty"`
	ForeignKeys []ForeignKey       `yaml:"foreign_keys,omitempty"`
}

// Column returns the definition of the named column, if present.
func (t *TableSnapshot) Column(name string) (ColumnDefinition, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDefinition{}, false
}

// ColumnPosition returns the ordinal position of the named column, or -1.
func (t *TableSnapshot) ColumnPosition(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Validate rejects malformed tables. Duplicate column names are the only
// structural defect diffing cannot absorb.
func (t *TableSnapshot) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("table has no name")
	}
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if c.Name == "" {
			return fmt.Errorf("table %q has an unnamed column", t.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("table %q has duplicate column %q", t.Name, c.Name)
		}
		seen[c.Name] = true
	}
	return nil
}

// SchemaSnapshot maps table names to their snapshots at one instant. It
// represents either the desired state (from declared entities) or the actual
// state (from live introspection).
type SchemaSnapshot struct {
	Tables map[string]*TableSnapshot `yaml:"tables"`
}

// NewSnapshot returns an empty schema snapshot.
func NewSnapshot() *SchemaSnapshot {
	return &SchemaSnapshot{Tables: make(map[string]*TableSnapshot)}
}

// Add inserts a table into the snapshot, replacing any previous definition.
func (s *SchemaSnapshot) Add(t *TableSnapshot) {
	if s.Tables == nil {
		s.Tables = make(map[string]*TableSnapshot)
	}
	s.Tables[t.Name] = t
}

// Table returns the named table snapshot, if present.
func (s *SchemaSnapshot) Table(name string) (*TableSnapshot, bool) {
	t, ok := s.Tables[name]
	return t, ok
}

// TableNames returns all table names in lexical order.
func (s *SchemaSnapshot) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks every table in the snapshot.
func (s *SchemaSnapshot) Validate() error {
	for _, name := range s.TableNames() {
		if err := s.Tables[name].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy of the snapshot.
func (s *SchemaSnapshot) Clone() *SchemaSnapshot {
	out := NewSnapshot()
	for _, t := range s.Tables {
		ct := &TableSnapshot{
			Name:        t.Name,
			Columns:     append([]ColumnDefinition(nil), t.Columns...),
			Indexes:     make([]Index, len(t.Indexes)),
			ForeignKeys: make([]ForeignKey, len(t.ForeignKeys)),
		}
		for i, idx := range t.Indexes {
			idx.Columns = append([]string(nil), idx.Columns...)
			ct.Indexes[i] = idx
		}
		for i, fk := range t.ForeignKeys {
			fk.Columns = append([]string(nil), fk.Columns...)
			fk.ReferencedColumns = append([]string(nil), fk.ReferencedColumns...)
			ct.ForeignKeys[i] = fk
		}
		out.Add(ct)
	}
	return out
}

// ParseColumnType maps a type keyword to its ColumnType, case-insensitively.
func ParseColumnType(s string) (ColumnType, error) {
	switch ColumnType(strings.ToLower(s)) {
	case TypeInt, TypeBigInt, TypeSmallInt, TypeDecimal, TypeFloat, TypeVarchar,
		TypeText, TypeBlob, TypeBoolean, TypeDate, TypeTime, TypeDateTime,
		TypeTimestamp, TypeJSON, TypeEnum:
		return ColumnType(strings.ToLower(s)), nil
	case "integer":
		return TypeInt, nil
	case "bool":
		return TypeBoolean, nil
	case "string":
		return TypeVarchar, nil
	case "numeric":
		return TypeDecimal, nil
	}
	return "", fmt.Errorf("unknown column type %q", s)
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
