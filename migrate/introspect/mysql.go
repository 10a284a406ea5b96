package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/schemaflow/schemaflow/schema"
)

// MySQLIntrospector reads the current database of a MySQL connection.
type MySQLIntrospector struct {
	db *sql.DB
}

// Introspect builds a snapshot of every base table in the connected database.
func (i *MySQLIntrospector) Introspect(ctx context.Context) (*schema.SchemaSnapshot, error) {
	snap := schema.NewSnapshot()

	names, err := i.tableNames(ctx)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		table, err := i.introspectTable(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to introspect table %s: %w", name, err)
		}
		snap.Add(table)
	}
	return snap, nil
}

func (i *MySQLIntrospector) tableNames(ctx context.Context) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = DATABASE()
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`
	rows, err := i.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		if !isInternalTable(name) {
			names = append(names, name)
		}
	}
	return names, rows.Err()
}

func (i *MySQLIntrospector) introspectTable(ctx context.Context, name string) (*schema.TableSnapshot, error) {
	table := &schema.TableSnapshot{Name: name}

	query := `
		SELECT column_name, data_type, column_type, is_nullable, column_default, column_key,
		       COALESCE(character_maximum_length, 0)
		FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name = ?
		ORDER BY ordinal_position
	`
	rows, err := i.db.QueryContext(ctx, query, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var colName, dataType, columnType, isNullable, columnKey string
		var defaultValue sql.NullString
		var maxLength int64
		if err := rows.Scan(&colName, &dataType, &columnType, &isNullable, &defaultValue, &columnKey, &maxLength); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		typ, size := normalizeType(dataType, maxLength)
		col := schema.ColumnDefinition{
			Name:       colName,
			Type:       typ,
			Size:       size,
			Nullable:   isNullable == "YES",
			PrimaryKey: columnKey == "PRI",
			Unique:     columnKey == "UNI",
		}
		if typ == schema.TypeEnum {
			col.EnumValues = parseEnumValues(columnType)
		}
		if defaultValue.Valid {
			col.Default = cleanDefault(defaultValue.String)
		}
		table.Columns = append(table.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := i.introspectIndexes(ctx, table); err != nil {
		return nil, err
	}
	if err := i.introspectForeignKeys(ctx, table); err != nil {
		return nil, err
	}
	return table, nil
}

func (i *MySQLIntrospector) introspectIndexes(ctx context.Context, table *schema.TableSnapshot) error {
	query := `
		SELECT index_name,
		       GROUP_CONCAT(column_name ORDER BY seq_in_index),
		       MAX(non_unique)
		FROM information_schema.statistics
		WHERE table_schema = DATABASE() AND table_name = ?
		  AND index_name != 'PRIMARY'
		GROUP BY index_name
		ORDER BY index_name
	`
	rows, err := i.db.QueryContext(ctx, query, table.Name)
	if err != nil {
		return fmt.Errorf("failed to query indexes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, cols string
		var nonUnique int
		if err := rows.Scan(&name, &cols, &nonUnique); err != nil {
			return fmt.Errorf("failed to scan index: %w", err)
		}
		unique := nonUnique == 0
		columns := strings.Split(cols, ",")
		// Column-level unique flags already cover single-column unique indexes.
		if unique && len(columns) == 1 {
			if pos := table.ColumnPosition(columns[0]); pos >= 0 && table.Columns[pos].Unique {
				continue
			}
		}
		table.Indexes = append(table.Indexes, schema.Index{Name: name, Columns: columns, Unique: unique})
	}
	return rows.Err()
}

func (i *MySQLIntrospector) introspectForeignKeys(ctx context.Context, table *schema.TableSnapshot) error {
	query := `
		SELECT kcu.constraint_name,
		       GROUP_CONCAT(kcu.column_name ORDER BY kcu.ordinal_position),
		       kcu.referenced_table_name,
		       GROUP_CONCAT(kcu.referenced_column_name ORDER BY kcu.ordinal_position),
		       rc.delete_rule
		FROM information_schema.key_column_usage kcu
		JOIN information_schema.referential_constraints rc
			ON rc.constraint_name = kcu.constraint_name
			AND rc.constraint_schema = kcu.table_schema
		WHERE kcu.table_schema = DATABASE()
		  AND kcu.table_name = ?
		  AND kcu.referenced_table_name IS NOT NULL
		GROUP BY kcu.constraint_name, kcu.referenced_table_name, rc.delete_rule
		ORDER BY kcu.constraint_name
	`
	rows, err := i.db.QueryContext(ctx, query, table.Name)
	if err != nil {
		return fmt.Errorf("failed to query foreign keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, cols, refTable, refCols, onDelete string
		if err := rows.Scan(&name, &cols, &refTable, &refCols, &onDelete); err != nil {
			return fmt.Errorf("failed to scan foreign key: %w", err)
		}
		fk := schema.ForeignKey{
			Name:              name,
			Columns:           strings.Split(cols, ","),
			ReferencedTable:   refTable,
			ReferencedColumns: strings.Split(refCols, ","),
			OnDelete:          normalizeAction(onDelete),
		}
		table.ForeignKeys = append(table.ForeignKeys, fk)
		if len(fk.Columns) == 1 && len(fk.ReferencedColumns) == 1 {
			if pos := table.ColumnPosition(fk.Columns[0]); pos >= 0 {
				table.Columns[pos].Reference = &schema.Reference{
					Table:    fk.ReferencedTable,
					Column:   fk.ReferencedColumns[0],
					OnDelete: fk.OnDelete,
				}
			}
		}
	}
	return rows.Err()
}

// parseEnumValues extracts values from a MySQL column type like enum('a','b').
func parseEnumValues(columnType string) []string {
	open := strings.Index(columnType, "(")
	close := strings.LastIndex(columnType, ")")
	if open < 0 || close <= open {
		return nil
	}
	parts := strings.Split(columnType[open+1:close], ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		values = append(values, strings.Trim(strings.TrimSpace(p), "'"))
	}
	return values
}
