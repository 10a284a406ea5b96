package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/schemaflow/schemaflow/schema"
)

// SQLiteIntrospector reads a SQLite database through its PRAGMA interface.
type SQLiteIntrospector struct {
	db *sql.DB
}

// Introspect builds a snapshot of every user table in the database.
func (i *SQLiteIntrospector) Introspect(ctx context.Context) (*schema.SchemaSnapshot, error) {
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

func (i *SQLiteIntrospector) tableNames(ctx context.Context) ([]string, error) {
	query := `
		SELECT name FROM sqlite_master
		WHERE type = 'table'
		ORDER BY name
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

func (i *SQLiteIntrospector) introspectTable(ctx context.Context, name string) (*schema.TableSnapshot, error) {
	table := &schema.TableSnapshot{Name: name}

	rows, err := i.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", name))
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var colName, declType string
		var notNull, pk int
		var defaultValue sql.NullString
		if err := rows.Scan(&cid, &colName, &declType, &notNull, &defaultValue, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		typ, size := normalizeType(declType, sizeFromDecl(declType))
		col := schema.ColumnDefinition{
			Name:       colName,
			Type:       typ,
			Size:       size,
			Nullable:   notNull == 0 && pk == 0,
			PrimaryKey: pk > 0,
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

func (i *SQLiteIntrospector) introspectIndexes(ctx context.Context, table *schema.TableSnapshot) error {
	rows, err := i.db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_list(%q)", table.Name))
	if err != nil {
		return fmt.Errorf("failed to query indexes: %w", err)
	}

	type indexInfo struct {
		name   string
		unique bool
	}
	var indexes []indexInfo
	for rows.Next() {
		var seq int
		var name, origin string
		var unique, partial int
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan index: %w", err)
		}
		// Skip indexes backing primary keys and ones sqlite created itself
		// for column-level UNIQUE, those are mirrored onto columns below.
		if origin == "pk" {
			continue
		}
		indexes = append(indexes, indexInfo{name: name, unique: unique == 1})
	}
	if err := rows.Close(); err != nil {
		return err
	}

	for _, idx := range indexes {
		cols, err := i.indexColumns(ctx, idx.name)
		if err != nil {
			return err
		}
		if idx.unique && len(cols) == 1 {
			if pos := table.ColumnPosition(cols[0]); pos >= 0 && strings.HasPrefix(idx.name, "sqlite_autoindex_") {
				table.Columns[pos].Unique = true
				continue
			}
		}
		if strings.HasPrefix(idx.name, "sqlite_autoindex_") {
			continue
		}
		table.Indexes = append(table.Indexes, schema.Index{Name: idx.name, Columns: cols, Unique: idx.unique})
	}
	return nil
}

func (i *SQLiteIntrospector) indexColumns(ctx context.Context, index string) ([]string, error) {
	rows, err := i.db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_info(%q)", index))
	if err != nil {
		return nil, fmt.Errorf("failed to query index columns: %w", err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var seqno, cid int
		var name sql.NullString
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, err
		}
		if name.Valid {
			cols = append(cols, name.String)
		}
	}
	return cols, rows.Err()
}

func (i *SQLiteIntrospector) introspectForeignKeys(ctx context.Context, table *schema.TableSnapshot) error {
	rows, err := i.db.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%q)", table.Name))
	if err != nil {
		return fmt.Errorf("failed to query foreign keys: %w", err)
	}
	defer rows.Close()

	// Rows with the same id belong to one composite constraint.
	byID := make(map[int]*schema.ForeignKey)
	var order []int
	for rows.Next() {
		var id, seq int
		var refTable, from, to, onUpdate, onDelete, match string
		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return fmt.Errorf("failed to scan foreign key: %w", err)
		}
		fk, ok := byID[id]
		if !ok {
			fk = &schema.ForeignKey{
				ReferencedTable: refTable,
				OnDelete:        normalizeAction(onDelete),
			}
			byID[id] = fk
			order = append(order, id)
		}
		fk.Columns = append(fk.Columns, from)
		fk.ReferencedColumns = append(fk.ReferencedColumns, to)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range order {
		fk := byID[id]
		// sqlite does not report constraint names, synthesize the same
		// name the generator would have used.
		fk.Name = fmt.Sprintf("%s_%s_fkey", table.Name, strings.Join(fk.Columns, "_"))
		table.ForeignKeys = append(table.ForeignKeys, *fk)
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
	return nil
}

// sizeFromDecl pulls a length out of declarations like VARCHAR(120).
func sizeFromDecl(decl string) int64 {
	return int64(parseParenSize(strings.ToLower(decl)))
}
