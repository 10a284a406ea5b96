// Package sqlgen translates structural operations into dialect-specific SQL.
package sqlgen

import (
	"fmt"
	"strings"

	"github.com/schemaflow/schemaflow/migrate/diff"
	"github.com/schemaflow/schemaflow/schema"
)

// Dialect renders schema operations as SQL for one provider.
type Dialect interface {
	Name() string
	ColumnType(col schema.ColumnDefinition) (string, error)
	CreateTable(t *schema.TableSnapshot) (string, error)
	DropTable(name string) string
	AddColumn(table string, col schema.ColumnDefinition) (string, error)
	DropColumn(table, column string) string
	ModifyColumn(table string, old, new schema.ColumnDefinition) ([]string, error)
	RenameColumn(table, oldName, newName string) string
	CreateIndex(table string, idx schema.Index) string
	DropIndex(table string, idx schema.Index) string
	AddForeignKey(table string, fk schema.ForeignKey) (string, error)
	DropForeignKey(table string, fk schema.ForeignKey) (string, error)
}

// New returns the dialect for the given provider.
func New(provider string) (Dialect, error) {
	switch provider {
	case "postgresql", "postgres":
		return &PostgresDialect{}, nil
	case "mysql":
		return &MySQLDialect{}, nil
	case "sqlite", "sqlite3":
		return &SQLiteDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

// Statements renders a list of operations to SQL in the order given. Rename
// candidates are rejected; the caller must resolve them first.
func Statements(d Dialect, ops []diff.Operation) ([]string, error) {
	var out []string
	for _, op := range ops {
		stmts, err := Statement(d, op)
		if err != nil {
			return nil, err
		}
		out = append(out, stmts...)
	}
	return out, nil
}

// Statement renders one operation. Most operations map to a single statement;
// column modifications may need several.
func Statement(d Dialect, op diff.Operation) ([]string, error) {
	switch op.Type {
	case diff.OpCreateTable:
		sql, err := d.CreateTable(op.TableDef)
		if err != nil {
			return nil, err
		}
		return []string{sql}, nil
	case diff.OpDropTable:
		return []string{d.DropTable(op.Table)}, nil
	case diff.OpAddColumn:
		sql, err := d.AddColumn(op.Table, *op.Column)
		if err != nil {
			return nil, err
		}
		return []string{sql}, nil
	case diff.OpDropColumn:
		return []string{d.DropColumn(op.Table, op.Column.Name)}, nil
	case diff.OpModifyColumn:
		return d.ModifyColumn(op.Table, *op.OldColumn, *op.NewColumn)
	case diff.OpRenameColumn:
		return []string{d.RenameColumn(op.Table, op.OldName, op.NewName)}, nil
	case diff.OpAddIndex:
		return []string{d.CreateIndex(op.Table, *op.Index)}, nil
	case diff.OpDropIndex:
		return []string{d.DropIndex(op.Table, *op.Index)}, nil
	case diff.OpAddForeignKey:
		sql, err := d.AddForeignKey(op.Table, *op.ForeignKey)
		if err != nil {
			return nil, err
		}
		return []string{sql}, nil
	case diff.OpDropForeignKey:
		sql, err := d.DropForeignKey(op.Table, *op.ForeignKey)
		if err != nil {
			return nil, err
		}
		return []string{sql}, nil
	case diff.OpRenameCandidate:
		return nil, &diff.AmbiguityError{Table: op.Table, OldName: op.OldName, NewName: op.NewName}
	default:
		return nil, fmt.Errorf("unknown operation type %q", op.Type)
	}
}

// IndexName derives the deterministic name for an index.
func IndexName(table string, idx schema.Index) string {
	suffix := "idx"
	if idx.Unique {
		suffix = "key"
	}
	return fmt.Sprintf("%s_%s_%s", table, strings.Join(idx.Columns, "_"), suffix)
}

// ForeignKeyName derives the deterministic name for a foreign-key constraint.
func ForeignKeyName(table string, fk schema.ForeignKey) string {
	return fmt.Sprintf("%s_%s_fkey", table, strings.Join(fk.Columns, "_"))
}

// quoteDefault renders a default value: numeric literals, booleans and
// function calls pass through, everything else is quoted as a string.
func quoteDefault(v string) string {
	lower := strings.ToLower(v)
	if lower == "true" || lower == "false" || lower == "null" {
		return strings.ToUpper(lower)
	}
	if isNumeric(v) {
		return v
	}
	if strings.HasSuffix(v, ")") || strings.ToUpper(v) == v && strings.Contains(v, "_") {
		// Function call or SQL keyword like CURRENT_TIMESTAMP.
		return v
	}
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	dot := false
	for i, r := range s {
		if r == '-' && i == 0 {
			continue
		}
		if r == '.' && !dot {
			dot = true
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func quoteEnumValues(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
	}
	return strings.Join(quoted, ", ")
}
