// Package diff compares schema snapshots and produces ordered structural
// operations.
package diff

import (
	"fmt"
	"strings"

	"github.com/schemaflow/schemaflow/schema"
)

// OpType identifies the kind of a structural operation.
type OpType string

const (
	OpCreateTable     OpType = "CreateTable"
	OpDropTable       OpType = "DropTable"
	OpAddColumn       OpType = "AddColumn"
	OpDropColumn      OpType = "DropColumn"
	OpModifyColumn    OpType = "ModifyColumn"
	OpRenameCandidate OpType = "RenameCandidate"
	OpRenameColumn    OpType = "RenameColumn"
	OpAddIndex        OpType = "AddIndex"
	OpDropIndex       OpType = "DropIndex"
	OpAddForeignKey   OpType = "AddForeignKey"
	OpDropForeignKey  OpType = "DropForeignKey"
)

// Operation is one typed structural change. Drop and modify operations capture
// the prior definition so the exact inverse can be computed later.
type Operation struct {
	Type  OpType `yaml:"type"`
	Table string `yaml:"table"`

	// CreateTable carries the full definition; DropTable captures the
	// definition being dropped.
	TableDef *schema.TableSnapshot `yaml:"table_def,omitempty"`

	// AddColumn carries the new definition; DropColumn captures the dropped one.
	Column *schema.ColumnDefinition `yaml:"column,omitempty"`

	// ModifyColumn captures both sides.
	OldColumn *schema.ColumnDefinition `yaml:"old_column,omitempty"`
	NewColumn *schema.ColumnDefinition `yaml:"new_column,omitempty"`

	// RenameCandidate / RenameColumn.
	OldName    string `yaml:"old_name,omitempty"`
	NewName    string `yaml:"new_name,omitempty"`
	Similarity string `yaml:"similarity,omitempty"`

	Index      *schema.Index      `yaml:"index,omitempty"`
	ForeignKey *schema.ForeignKey `yaml:"foreign_key,omitempty"`

	// Destructive marks operations whose execution can discard data.
	Destructive bool `yaml:"destructive,omitempty"`
}

// String renders a short human-readable description of the operation.
func (o Operation) String() string {
	switch o.Type {
	case OpCreateTable:
		return fmt.Sprintf("create table %s", o.Table)
	case OpDropTable:
		return fmt.Sprintf("drop table %s", o.Table)
	case OpAddColumn:
		return fmt.Sprintf("add column %s.%s", o.Table, o.Column.Name)
	case OpDropColumn:
		return fmt.Sprintf("drop column %s.%s", o.Table, o.Column.Name)
	case OpModifyColumn:
		return fmt.Sprintf("modify column %s.%s", o.Table, o.NewColumn.Name)
	case OpRenameCandidate:
		return fmt.Sprintf("rename candidate %s.%s -> %s (%s)", o.Table, o.OldName, o.NewName, o.Similarity)
	case OpRenameColumn:
		return fmt.Sprintf("rename column %s.%s -> %s", o.Table, o.OldName, o.NewName)
	case OpAddIndex:
		return fmt.Sprintf("add index on %s(%s)", o.Table, strings.Join(o.Index.Columns, ", "))
	case OpDropIndex:
		return fmt.Sprintf("drop index on %s(%s)", o.Table, strings.Join(o.Index.Columns, ", "))
	case OpAddForeignKey:
		return fmt.Sprintf("add foreign key %s -> %s", o.Table, o.ForeignKey.ReferencedTable)
	case OpDropForeignKey:
		return fmt.Sprintf("drop foreign key %s -> %s", o.Table, o.ForeignKey.ReferencedTable)
	default:
		return string(o.Type)
	}
}

// SchemaDiff is an ordered list of operations turning one snapshot into another.
type SchemaDiff struct {
	Operations []Operation
}

// Empty reports whether the diff contains no operations.
func (d *SchemaDiff) Empty() bool {
	return len(d.Operations) == 0
}

// HasDestructive reports whether any operation can discard data.
func (d *SchemaDiff) HasDestructive() bool {
	for _, op := range d.Operations {
		if op.Destructive {
			return true
		}
	}
	return false
}

// RenameCandidates returns the unconfirmed rename proposals in the diff.
func (d *SchemaDiff) RenameCandidates() []Operation {
	var out []Operation
	for _, op := range d.Operations {
		if op.Type == OpRenameCandidate {
			out = append(out, op)
		}
	}
	return out
}

// WithoutRenameCandidates returns a copy of the diff with every unconfirmed
// rename proposal removed. Non-interactive previews use it to render the rest
// of the diff while the candidates stay pending.
func (d *SchemaDiff) WithoutRenameCandidates() *SchemaDiff {
	ops := make([]Operation, 0, len(d.Operations))
	for _, op := range d.Operations {
		if op.Type != OpRenameCandidate {
			ops = append(ops, op)
		}
	}
	return &SchemaDiff{Operations: ops}
}

// AmbiguityError reports a rename candidate the caller never confirmed or
// denied. Rename detection is heuristic, so finalizing SQL without an explicit
// decision is refused.
type AmbiguityError struct {
	Table   string
	OldName string
	NewName string
}

func (e *AmbiguityError) Error() string {
	return fmt.Sprintf("unresolved rename candidate %s.%s -> %s: confirm or deny it before generating SQL",
		e.Table, e.OldName, e.NewName)
}
