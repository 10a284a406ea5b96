package sqlgen

import (
	"fmt"
	"strings"

	"github.com/schemaflow/schemaflow/schema"
)

// MySQLDialect renders SQL for MySQL and MariaDB.
type MySQLDialect struct{}

func (d *MySQLDialect) Name() string { return "mysql" }

// ColumnType maps a column definition to its MySQL type.
func (d *MySQLDialect) ColumnType(col schema.ColumnDefinition) (string, error) {
	switch col.Type {
	case schema.TypeInt:
		return "INT", nil
	case schema.TypeBigInt:
		return "BIGINT", nil
	case schema.TypeSmallInt:
		return "SMALLINT", nil
	case schema.TypeDecimal:
		if col.Size > 0 {
			return fmt.Sprintf("DECIMAL(%d, 2)", col.Size), nil
		}
		return "DECIMAL(10, 2)", nil
	case schema.TypeFloat:
		return "DOUBLE", nil
	case schema.TypeVarchar:
		size := col.Size
		if size == 0 {
			size = 255
		}
		return fmt.Sprintf("VARCHAR(%d)", size), nil
	case schema.TypeText:
		return "TEXT", nil
	case schema.TypeBlob:
		return "BLOB", nil
	case schema.TypeBoolean:
		return "TINYINT(1)", nil
	case schema.TypeDate:
		return "DATE", nil
	case schema.TypeTime:
		return "TIME", nil
	case schema.TypeDateTime:
		return "DATETIME", nil
	case schema.TypeTimestamp:
		return "TIMESTAMP", nil
	case schema.TypeJSON:
		return "JSON", nil
	case schema.TypeEnum:
		if len(col.EnumValues) == 0 {
			return "", fmt.Errorf("mysql: enum column %q has no values", col.Name)
		}
		return fmt.Sprintf("ENUM(%s)", quoteEnumValues(col.EnumValues)), nil
	default:
		return "", fmt.Errorf("mysql: unsupported column type %q", col.Type)
	}
}

func (d *MySQLDialect) columnSQL(col schema.ColumnDefinition) (string, error) {
	typ, err := d.ColumnType(col)
	if err != nil {
		return "", err
	}
	parts := []string{col.Name, typ}
	if !col.Nullable && !col.PrimaryKey {
		parts = append(parts, "NOT NULL")
	}
	if col.PrimaryKey {
		if col.Type == schema.TypeInt || col.Type == schema.TypeBigInt {
			parts = append(parts, "AUTO_INCREMENT")
		}
		parts = append(parts, "PRIMARY KEY")
	}
	if col.Unique && !col.PrimaryKey {
		parts = append(parts, "UNIQUE")
	}
	if col.Default != nil {
		parts = append(parts, "DEFAULT "+quoteDefault(*col.Default))
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

func (d *MySQLDialect) CreateTable(t *schema.TableSnapshot) (string, error) {
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

func (d *MySQLDialect) DropTable(name string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", name)
}

func (d *MySQLDialect) AddColumn(table string, col schema.ColumnDefinition) (string, error) {
	sql, err := d.columnSQL(col)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, sql), nil
}

func (d *MySQLDialect) DropColumn(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", table, column)
}

// ModifyColumn uses MODIFY COLUMN, which redefines the whole column in one
// statement.
func (d *MySQLDialect) ModifyColumn(table string, old, new schema.ColumnDefinition) ([]string, error) {
	sql, err := d.columnSQL(new)
	if err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s", table, sql)}, nil
}

func (d *MySQLDialect) RenameColumn(table, oldName, newName string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", table, oldName, newName)
}

func (d *MySQLDialect) CreateIndex(table string, idx schema.Index) string {
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)",
		unique, IndexName(table, idx), table, strings.Join(idx.Columns, ", "))
}

func (d *MySQLDialect) DropIndex(table string, idx schema.Index) string {
	return fmt.Sprintf("DROP INDEX %s ON %s", IndexName(table, idx), table)
}

func (d *MySQLDialect) AddForeignKey(table string, fk schema.ForeignKey) (string, error) {
	sql := fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
		table, ForeignKeyName(table, fk), strings.Join(fk.Columns, ", "),
		fk.ReferencedTable, strings.Join(fk.ReferencedColumns, ", "))
	if fk.OnDelete != "" {
		sql += " ON DELETE " + string(fk.OnDelete)
	}
	return sql, nil
}

func (d *MySQLDialect) DropForeignKey(table string, fk schema.ForeignKey) (string, error) {
	return fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s", table, ForeignKeyName(table, fk)), nil
}
