package diff

import (
	"fmt"

	"github.com/schemaflow/schemaflow/schema"
)

// Differ compares a desired snapshot against the actual database state.
type Differ struct{}

// NewDiffer creates a schema differ.
func NewDiffer() *Differ {
	return &Differ{}
}

// Compare produces the ordered operations turning actual into desired.
// Structural mismatches never fail; the only rejected inputs are malformed
// snapshots.
func (d *Differ) Compare(desired, actual *schema.SchemaSnapshot) (*SchemaDiff, error) {
	if err := desired.Validate(); err != nil {
		return nil, fmt.Errorf("desired snapshot is malformed: %w", err)
	}
	if err := actual.Validate(); err != nil {
		return nil, fmt.Errorf("actual snapshot is malformed: %w", err)
	}

	var ops []Operation

	// Tables only in desired are created; only in actual are dropped.
	for _, name := range desired.TableNames() {
		if _, exists := actual.Table(name); !exists {
			ops = append(ops, Operation{
				Type:     OpCreateTable,
				Table:    name,
				TableDef: desired.Tables[name],
			})
		}
	}
	for _, name := range actual.TableNames() {
		if _, exists := desired.Table(name); !exists {
			ops = append(ops, Operation{
				Type:        OpDropTable,
				Table:       name,
				TableDef:    actual.Tables[name],
				Destructive: true,
			})
		}
	}

	// Tables in both are compared column by column.
	for _, name := range desired.TableNames() {
		actualTable, exists := actual.Table(name)
		if !exists {
			continue
		}
		ops = append(ops, d.compareTable(desired.Tables[name], actualTable)...)
	}

	return &SchemaDiff{Operations: Order(ops)}, nil
}

func (d *Differ) compareTable(desired, actual *schema.TableSnapshot) []Operation {
	var ops []Operation

	var added []schema.ColumnDefinition
	for _, col := range desired.Columns {
		if _, exists := actual.Column(col.Name); !exists {
			added = append(added, col)
		}
	}
	var dropped []schema.ColumnDefinition
	for _, col := range actual.Columns {
		if _, exists := desired.Column(col.Name); !exists {
			dropped = append(dropped, col)
		}
	}

	// Pair dropped and added columns that look like the same column renamed.
	// Candidates are proposals only; the generator requires an explicit
	// decision before anything is applied.
	renames, added, dropped := detectRenames(desired, actual, added, dropped)
	ops = append(ops, renames...)

	for _, col := range added {
		col := col
		ops = append(ops, Operation{Type: OpAddColumn, Table: desired.Name, Column: &col})
	}
	for _, col := range dropped {
		col := col
		ops = append(ops, Operation{
			Type:        OpDropColumn,
			Table:       desired.Name,
			Column:      &col,
			Destructive: true,
		})
	}

	// Columns in both: compare definitions, capturing old and new so the
	// reverse reconstructs the exact prior definition.
	for _, want := range desired.Columns {
		have, exists := actual.Column(want.Name)
		if !exists {
			continue
		}
		if !want.Equal(have) {
			oldCol, newCol := have, want
			ops = append(ops, Operation{
				Type:        OpModifyColumn,
				Table:       desired.Name,
				OldColumn:   &oldCol,
				NewColumn:   &newCol,
				Destructive: IsLossyChange(have, want),
			})
		}
	}

	ops = append(ops, d.compareIndexes(desired, actual)...)
	ops = append(ops, d.compareForeignKeys(desired, actual)...)
	return ops
}

// compareIndexes matches indexes by structure, not by name.
func (d *Differ) compareIndexes(desired, actual *schema.TableSnapshot) []Operation {
	var ops []Operation
	for _, want := range desired.Indexes {
		if !containsIndex(actual.Indexes, want) {
			want := want
			ops = append(ops, Operation{Type: OpAddIndex, Table: desired.Name, Index: &want})
		}
	}
	for _, have := range actual.Indexes {
		if !containsIndex(desired.Indexes, have) {
			have := have
			ops = append(ops, Operation{Type: OpDropIndex, Table: desired.Name, Index: &have})
		}
	}
	return ops
}

// compareForeignKeys matches foreign keys by structure, not by name.
func (d *Differ) compareForeignKeys(desired, actual *schema.TableSnapshot) []Operation {
	var ops []Operation
	for _, want := range desired.ForeignKeys {
		if !containsForeignKey(actual.ForeignKeys, want) {
			want := want
			ops = append(ops, Operation{Type: OpAddForeignKey, Table: desired.Name, ForeignKey: &want})
		}
	}
	for _, have := range actual.ForeignKeys {
		if !containsForeignKey(desired.ForeignKeys, have) {
			have := have
			ops = append(ops, Operation{Type: OpDropForeignKey, Table: desired.Name, ForeignKey: &have})
		}
	}
	return ops
}

// detectRenames pairs an actual-only column with a desired-only column of the
// same type and size. Paired columns are removed from the add/drop sets and a
// rename candidate is emitted instead of a blind drop+add.
func detectRenames(desired, actual *schema.TableSnapshot, added, dropped []schema.ColumnDefinition) ([]Operation, []schema.ColumnDefinition, []schema.ColumnDefinition) {
	var candidates []Operation
	usedAdd := make(map[int]bool)
	var remainingDropped []schema.ColumnDefinition

	for _, droppedCol := range dropped {
		matched := false
		for i, addedCol := range added {
			if usedAdd[i] {
				continue
			}
			if addedCol.Type != droppedCol.Type || addedCol.Size != droppedCol.Size {
				continue
			}
			basis := fmt.Sprintf("same type %s", addedCol.Type)
			if addedCol.Size > 0 {
				basis = fmt.Sprintf("same type %s(%d)", addedCol.Type, addedCol.Size)
			}
			if actual.ColumnPosition(droppedCol.Name) == desired.ColumnPosition(addedCol.Name) {
				basis += ", same position"
			}
			oldCol, newCol := droppedCol, addedCol
			candidates = append(candidates, Operation{
				Type:       OpRenameCandidate,
				Table:      desired.Name,
				OldName:    droppedCol.Name,
				NewName:    addedCol.Name,
				Similarity: basis,
				OldColumn:  &oldCol,
				NewColumn:  &newCol,
			})
			usedAdd[i] = true
			matched = true
			break
		}
		if !matched {
			remainingDropped = append(remainingDropped, droppedCol)
		}
	}

	var remainingAdded []schema.ColumnDefinition
	for i, col := range added {
		if !usedAdd[i] {
			remainingAdded = append(remainingAdded, col)
		}
	}
	return candidates, remainingAdded, remainingDropped
}

// IsLossyChange reports whether changing a column from old to new can discard
// data: a type change across families or a capacity narrowing.
func IsLossyChange(old, new schema.ColumnDefinition) bool {
	if old.Type != new.Type {
		return !isWidening(old.Type, new.Type)
	}
	if old.Size > 0 && new.Size > 0 && new.Size < old.Size {
		return true
	}
	return false
}

// isWidening reports type changes that preserve every representable value.
func isWidening(from, to schema.ColumnType) bool {
	widening := map[schema.ColumnType][]schema.ColumnType{
		schema.TypeSmallInt: {schema.TypeInt, schema.TypeBigInt, schema.TypeDecimal},
		schema.TypeInt:      {schema.TypeBigInt, schema.TypeDecimal},
		schema.TypeBigInt:   {schema.TypeDecimal},
		schema.TypeFloat:    {schema.TypeDecimal},
		schema.TypeVarchar:  {schema.TypeText},
		schema.TypeDate:     {schema.TypeDateTime, schema.TypeTimestamp},
		schema.TypeDateTime: {schema.TypeTimestamp},
	}
	for _, t := range widening[from] {
		if t == to {
			return true
		}
	}
	return false
}

func containsIndex(haystack []schema.Index, needle schema.Index) bool {
	for _, idx := range haystack {
		if idx.Equal(needle) {
			return true
		}
	}
	return false
}

func containsForeignKey(haystack []schema.ForeignKey, needle schema.ForeignKey) bool {
	for _, fk := range haystack {
		if fk.Equal(needle) {
			return true
		}
	}
	return false
}
