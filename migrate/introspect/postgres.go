package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/schemaflow/schemaflow/schema"
)

// PostgresIntrospector reads the public schema of a PostgreSQL database.
type PostgresIntrospector struct {
	db *sql.DB
}

// Introspect builds a snapshot of every base table in the public schema.
func (i *PostgresIntrospector) Introspect(ctx context.Context) (*schema.SchemaSnapshot, error) {
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

func (i *PostgresIntrospector) tableNames(ctx context.Context) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public'
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

func (i *PostgresIntrospector) introspectTable(ctx context.Context, name string) (*schema.TableSnapshot, error) {
	table := &schema.TableSnapshot{Name: name}

	pkCols, err := i.primaryKeyColumns(ctx, name)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT column_name, data_type, is_nullable, column_default,
		       COALESCE(character_maximum_length, 0),
		       COALESCE(numeric_precision, 0)
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position
	`
	rows, err := i.db.QueryContext(ctx, query, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var colName, dataType, isNullable string
		var defaultValue sql.NullString
		var maxLength, precision int64
		if err := rows.Scan(&colName, &dataType, &isNullable, &defaultValue, &maxLength, &precision); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		if maxLength == 0 && strings.HasPrefix(strings.ToLower(dataType), "numeric") {
			maxLength = precision
		}
		typ, size := normalizeType(dataType, maxLength)
		col := schema.ColumnDefinition{
			Name:       colName,
			Type:       typ,
			Size:       size,
			Nullable:   isNullable == "YES",
			PrimaryKey: pkCols[colName],
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

func (i *PostgresIntrospector) primaryKeyColumns(ctx context.Context, table string) (map[string]bool, error) {
	query := `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = 'public'
		  AND tc.table_name = $1
	`
	rows, err := i.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query primary key: %w", err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

func (i *PostgresIntrospector) introspectIndexes(ctx context.Context, table *schema.TableSnapshot) error {
	query := `
		SELECT i.relname,
		       array_to_string(array_agg(a.attname ORDER BY array_position(ix.indkey, a.attnum)), ','),
		       ix.indisunique
		FROM pg_class t
		JOIN pg_index ix ON t.oid = ix.indrelid
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
		JOIN pg_namespace n ON n.oid = t.relnamespace
		WHERE n.nspname = 'public'
		  AND t.relname = $1
		  AND NOT ix.indisprimary
		GROUP BY i.relname, ix.indisunique
		ORDER BY i.relname
	`
	rows, err := i.db.QueryContext(ctx, query, table.Name)
	if err != nil {
		return fmt.Errorf("failed to query indexes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, cols string
		var unique bool
		if err := rows.Scan(&name, &cols, &unique); err != nil {
			return fmt.Errorf("failed to scan index: %w", err)
		}
		columns := strings.Split(cols, ",")
		// Single-column unique indexes surface as the column's unique flag,
		// matching how declared schemas model them.
		if unique && len(columns) == 1 {
			if pos := table.ColumnPosition(columns[0]); pos >= 0 {
				table.Columns[pos].Unique = true
				continue
			}
		}
		table.Indexes = append(table.Indexes, schema.Index{Name: name, Columns: columns, Unique: unique})
	}
	return rows.Err()
}

func (i *PostgresIntrospector) introspectForeignKeys(ctx context.Context, table *schema.TableSnapshot) error {
	query := `
		SELECT tc.constraint_name,
		       array_to_string(array_agg(DISTINCT kcu.column_name), ','),
		       ccu.table_name,
		       array_to_string(array_agg(DISTINCT ccu.column_name), ','),
		       rc.delete_rule
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON ccu.constraint_name = tc.constraint_name
			AND ccu.table_schema = tc.table_schema
		JOIN information_schema.referential_constraints rc
			ON rc.constraint_name = tc.constraint_name
			AND rc.constraint_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema = 'public'
		  AND tc.table_name = $1
		GROUP BY tc.constraint_name, ccu.table_name, rc.delete_rule
		ORDER BY tc.constraint_name
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
		// Mirror single-column constraints onto the column definition.
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
