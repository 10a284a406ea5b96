package sqlgen

import (
	"fmt"
	"strings"

	"github.com/schemaflow/schemaflow/schema"
)

// SQLiteDialect renders SQL for SQLite. SQLite's ALTER TABLE is limited: in
// place column modification and foreign-key changes on existing tables are not
// supported and are reported as errors rather than silently emitting SQL that
// the engine would reject.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string { return "sqlite" }

// ColumnType maps a column definition to its SQLite storage type.
func (d *SQLiteDialect) ColumnType(col schema.ColumnDefinition) (string, error) {
	switch col.Type {
	case schema.TypeInt, schema.TypeBigInt, schema.TypeSmallInt:
		return "INTEGER", nil
	case schema.TypeDecimal, schema.TypeFloat:
		return "REAL", nil
	case schema.TypeVarchar:
		size := col.Size
		if size == 0 {
			size = 255
		}
		return fmt.Sprintf("VARCHAR(%d)", size), nil
	case schema.TypeText, schema.TypeJSON, schema.TypeEnum:
		return "TEXT", nil
	case schema.TypeBlob:
		return "BLOB", nil
	case schema.TypeBoolean:
		return "INTEGER", nil
	case schema.TypeDate, schema.TypeTime, schema.TypeDateTime, schema.TypeTimestamp:
		return "TEXT", nil
	default:
		return "", fmt.Errorf("sqlite: unsupported column type %q", col.Type)
	}
}

func (d *SQLiteDialect) columnSQL(col schema.ColumnDefinition) (string, error) {
	typ, err := d.ColumnType(col)
	if err != nil {
		return "", err
	}
	if col.PrimaryKey && (col.Type == schema.TypeInt || col.Type == schema.TypeBigInt || col.Type == schema.TypeSmallInt) {
		return col.Name + " INTEGER PRIMARY KEY AUTOINCREMENT", nil
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

func (d *SQLiteDialect) CreateTable(t *schema.TableSnapshot) (string, error) {
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

func (d *SQLiteDialect) DropTable(name string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", name)
}

func (d *SQLiteDialect) AddColumn(table string, col schema.ColumnDefinition) (string, error) {
	// SQLite rejects adding a NOT NULL column without default to a table that
	// may hold rows, unless a default is supplied.
	sql, err := d.columnSQL(col)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, sql), nil
}

func (d *SQLiteDialect) DropColumn(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", table, column)
}

func (d *SQLiteDialect) ModifyColumn(table string, old, new schema.ColumnDefinition) ([]string, error) {
	return nil, fmt.Errorf("sqlite: cannot modify column %s.%s in place; recreate the table instead", table, new.Name)
}

func (d *SQLiteDialect) RenameColumn(table, oldName, newName string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", table, oldName, newName)
}

func (d *SQLiteDialect) CreateIndex(table string, idx schema.Index) string {
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)",
		unique, IndexName(table, idx), table, strings.Join(idx.Columns, ", "))
}

func (d *SQLiteDialect) DropIndex(table string, idx schema.Index) string {
	return fmt.Sprintf("DROP INDEX IF EXISTS %s", IndexName(table, idx))
}

func (d *SQLiteDialect) AddForeignKey(table string, fk schema.ForeignKey) (string, error) {
	return "", fmt.Errorf("sqlite: cannot add foreign key to existing table %s", table)
}

func (d *SQLiteDialect) DropForeignKey(table string, fk schema.ForeignKey) (string, error) {
	return "", fmt.Errorf("sqlite: cannot drop foreign key from existing table %s", table)
}
