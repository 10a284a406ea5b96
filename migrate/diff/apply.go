package diff

import (
	"fmt"

	"github.com/schemaflow/schemaflow/schema"
)

// Apply replays operations onto a snapshot, returning the resulting snapshot.
// The input is not mutated. Squash uses this to recover boundary schemas from
// persisted records, and tests use it to check round-trip properties without a
// database.
func Apply(snap *schema.SchemaSnapshot, ops []Operation) (*schema.SchemaSnapshot, error) {
	out := snap.Clone()
	for _, op := range ops {
		if err := applyOne(out, op); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func applyOne(snap *schema.SchemaSnapshot, op Operation) error {
	switch op.Type {
	case OpCreateTable:
		if _, exists := snap.Table(op.Table); exists {
			return fmt.Errorf("cannot create table %q: already exists", op.Table)
		}
		clone := schema.NewSnapshot()
		clone.Add(op.TableDef)
		snap.Add(clone.Clone().Tables[op.Table])
		return nil

	case OpDropTable:
		if _, exists := snap.Table(op.Table); !exists {
			return fmt.Errorf("cannot drop table %q: does not exist", op.Table)
		}
		delete(snap.Tables, op.Table)
		return nil
	}

	table, exists := snap.Table(op.Table)
	if !exists {
		return fmt.Errorf("operation %q targets unknown table %q", op.Type, op.Table)
	}

	switch op.Type {
	case OpAddColumn:
		if _, exists := table.Column(op.Column.Name); exists {
			return fmt.Errorf("cannot add column %s.%s: already exists", op.Table, op.Column.Name)
		}
		table.Columns = append(table.Columns, *op.Column)

	case OpDropColumn:
		pos := table.ColumnPosition(op.Column.Name)
		if pos < 0 {
			return fmt.Errorf("cannot drop column %s.%s: does not exist", op.Table, op.Column.Name)
		}
		table.Columns = append(table.Columns[:pos], table.Columns[pos+1:]...)

	case OpModifyColumn:
		pos := table.ColumnPosition(op.NewColumn.Name)
		if pos < 0 {
			return fmt.Errorf("cannot modify column %s.%s: does not exist", op.Table, op.NewColumn.Name)
		}
		table.Columns[pos] = *op.NewColumn

	case OpRenameColumn:
		pos := table.ColumnPosition(op.OldName)
		if pos < 0 {
			return fmt.Errorf("cannot rename column %s.%s: does not exist", op.Table, op.OldName)
		}
		table.Columns[pos].Name = op.NewName

	case OpAddIndex:
		table.Indexes = append(table.Indexes, *op.Index)

	case OpDropIndex:
		for i, idx := range table.Indexes {
			if idx.Equal(*op.Index) {
				table.Indexes = append(table.Indexes[:i], table.Indexes[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("cannot drop index on %s: no structural match", op.Table)

	case OpAddForeignKey:
		table.ForeignKeys = append(table.ForeignKeys, *op.ForeignKey)

	case OpDropForeignKey:
		for i, fk := range table.ForeignKeys {
			if fk.Equal(*op.ForeignKey) {
				table.ForeignKeys = append(table.ForeignKeys[:i], table.ForeignKeys[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("cannot drop foreign key on %s: no structural match", op.Table)

	case OpRenameCandidate:
		return fmt.Errorf("rename candidate %s.%s -> %s cannot be applied without a decision",
			op.Table, op.OldName, op.NewName)

	default:
		return fmt.Errorf("unknown operation type %q", op.Type)
	}
	return nil
}
