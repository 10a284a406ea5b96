package sqlgen

import (
	"fmt"
	"strings"

	"github.com/schemaflow/schemaflow/schema"
)

// PostgresDialect renders SQL for PostgreSQL.
type PostgresDialect struct{}

func (d *PostgresDialect) Name() string { return "postgres" }

// ColumnType maps a column definition to its PostgreSQL type.
func (d *PostgresDialect) ColumnType(col schema.ColumnDefinition) (string, error) {
	switch col.Type {
	case schema.TypeInt:
		if col.PrimaryKey {
			return "SERIAL", nil
		}
		return "INTEGER", nil
	case schema.TypeBigInt:
		if col.PrimaryKey {
			return "BIGSERIAL", nil
		}
		return "BIGINT", nil
	case schema.TypeSmallInt:
		return "SMALLINT", nil
	case schema.TypeDecimal:
		if col.Size > 0 {
			return fmt.Sprintf("DECIMAL(%d, 2)", col.Size), nil
		}
		return "DECIMAL", nil
	case schema.TypeFloat:
		return "DOUBLE PRECISION", nil
	case schema.TypeVarchar:
		size := col.Size
		if size == 0 {
			size = 255
		}
		return fmt.Sprintf("VARCHAR(%d)", size), nil
	case schema.TypeText:
		return "TEXT", nil
	case schema.TypeBlob:
		return "BYTEA", nil
	case schema.TypeBoolean:
		return "BOOLEAN", nil
	case schema.TypeDate:
		return "DATE", nil
	case schema.TypeTime:
		return "TIME", nil
	case schema.TypeDateTime, schema.TypeTimestamp:
		return "TIMESTAMP", nil
	case schema.TypeJSON:
		return "JSONB", nil
	case schema.TypeEnum:
		return "TEXT", nil
	default:
		return "", fmt.Errorf("postgres: unsupported column type %q", col.Type)
	}
}

func (d *PostgresDialect) columnSQL(col schema.ColumnDefinition) (string, error) {
	typ, err := d.ColumnType(col)
	if err != nil {
		return "", err
	}
	parts := []string{col.Name, typ}
	if col.PrimaryKey {
		parts = append(parts, "PRIMARY KEY")
	}
	if !col.Nullable && !col.PrimaryKey {
		parts = append(parts, "NOT NULL")
	}
	if col.Unique && !col.PrimaryKey {
		parts = append(parts, "UNIQUE")
	}
	if col.Default != nil {
		parts = append(parts, "DEFAULT "+quoteDefault(*col.Default))
	}
	if col.Type == schema.TypeEnum && len(col.EnumValues) > 0 {
		parts = append(parts, fmt.Sprintf("CHECK (%s IN (%s))", col.Name, quoteEnumValues(col.EnumValues)))
	}
	if col.Reference != nil {
		ref := fmt.Sprintf("REFERENCES %s(%s)", col.Reference.Table, col.Reference.Column)
		if col.Reference.OnDelete != "" {
			ref += " ON DELETE " + string(col.Reference.OnDelete)
		}
		parts = append(parts, ref)
	}
	return strings.Join(parts, " "), nil
}

// CreateTable renders a CREATE TABLE statement with all column constraints
// and table-level foreign keys inline.
func (d *PostgresDialect) CreateTable(t *schema.TableSnapshot) (string, error) {
	var defs []string
	for _, col := range t.Columns {
		sql, err := d.columnSQL(col)
		if err != nil {
			return "", err
		}
		defs = append(defs, sql)
	}
	for _, fk := range t.ForeignKeys {
		if isColumnLevelFK(t, fk) {
			continue
		}
		defs = append(defs, tableFKSQL(fk))
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", t.Name, strings.Join(defs, ", ")), nil
}

func (d *PostgresDialect) DropTable(name string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", name)
}

func (d *PostgresDialect) AddColumn(table string, col schema.ColumnDefinition) (string, error) {
	sql, err := d.columnSQL(col)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, sql), nil
}

func (d *PostgresDialect) DropColumn(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", table, column)
}

// ModifyColumn emits one ALTER per changed attribute so each step is
// individually reversible.
func (d *PostgresDialect) ModifyColumn(table string, old, new schema.ColumnDefinition) ([]string, error) {
	var stmts []string
	if old.Type != new.Type || old.Size != new.Size {
		typ, err := d.ColumnType(new)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s",
			table, new.Name, typ, new.Name, typ))
	}
	if old.Nullable != new.Nullable {
		if new.Nullable {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP NOT NULL", table, new.Name))
		} else {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL", table, new.Name))
		}
	}
	if !defaultsEqual(old.Default, new.Default) {
		if new.Default == nil {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT", table, new.Name))
		} else {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s",
				table, new.Name, quoteDefault(*new.Default)))
		}
	}
	if old.Unique != new.Unique {
		constraint := fmt.Sprintf("%s_%s_key", table, new.Name)
		if new.Unique {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s UNIQUE (%s)",
				table, constraint, new.Name))
		} else {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", table, constraint))
		}
	}
	return stmts, nil
}

func (d *PostgresDialect) RenameColumn(table, oldName, newName string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", table, oldName, newName)
}

func (d *PostgresDialect) CreateIndex(table string, idx schema.Index) string {
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)",
		unique, IndexName(table, idx), table, strings.Join(idx.Columns, ", "))
}

func (d *PostgresDialect) DropIndex(table string, idx schema.Index) string {
	return fmt.Sprintf("DROP INDEX IF EXISTS %s", IndexName(table, idx))
}

func (d *PostgresDialect) AddForeignKey(table string, fk schema.ForeignKey) (string, error) {
	sql := fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
		table, ForeignKeyName(table, fk), strings.Join(fk.Columns, ", "),
		fk.ReferencedTable, strings.Join(fk.ReferencedColumns, ", "))
	if fk.OnDelete != "" {
		sql += " ON DELETE " + string(fk.OnDelete)
	}
	return sql, nil
}

func (d *PostgresDialect) DropForeignKey(table string, fk schema.ForeignKey) (string, error) {
	return fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", table, ForeignKeyName(table, fk)), nil
}

// isColumnLevelFK reports whether the table-level FK duplicates a column-level
// REFERENCES clause already rendered inline.
func isColumnLevelFK(t *schema.TableSnapshot, fk schema.ForeignKey) bool {
	if len(fk.Columns) != 1 {
		return false
	}
	col, ok := t.Column(fk.Columns[0])
	return ok && col.Reference != nil
}

func tableFKSQL(fk schema.ForeignKey) string {
	sql := fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
		strings.Join(fk.Columns, ", "), fk.ReferencedTable, strings.Join(fk.ReferencedColumns, ", "))
	if fk.OnDelete != "" {
		sql += " ON DELETE " + string(fk.OnDelete)
	}
	return sql
}

func defaultsEqual(a, b *string) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}
