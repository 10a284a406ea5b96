package backup

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/schemaflow/schemaflow/migrate/introspect"
	"github.com/schemaflow/schemaflow/migrate/sqlgen"
	"github.com/schemaflow/schemaflow/schema"
)

// dump exports the schema and data of every user table as executable SQL.
// Tables are emitted referenced-first so the statements replay cleanly with
// foreign keys enforced.
func dump(ctx context.Context, db *sql.DB, provider string) ([]string, error) {
	ins, err := introspect.New(db, provider)
	if err != nil {
		return nil, err
	}
	snap, err := ins.Introspect(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to introspect schema: %w", err)
	}
	dialect, err := sqlgen.New(provider)
	if err != nil {
		return nil, err
	}

	ordered := orderByReferences(snap)

	var stmts []string
	// Drop in dependent-first order so a restore starts from a clean slate.
	for i := len(ordered) - 1; i >= 0; i-- {
		stmts = append(stmts, fmt.Sprintf("DROP TABLE IF EXISTS %s", ordered[i].Name))
	}
	for _, table := range ordered {
		create, err := dialect.CreateTable(table)
		if err != nil {
			return nil, fmt.Errorf("failed to render table %s: %w", table.Name, err)
		}
		stmts = append(stmts, create)
		for _, idx := range table.Indexes {
			stmts = append(stmts, dialect.CreateIndex(table.Name, idx))
		}
	}
	for _, table := range ordered {
		rows, err := dumpRows(ctx, db, table)
		if err != nil {
			return nil, fmt.Errorf("failed to dump rows of %s: %w", table.Name, err)
		}
		stmts = append(stmts, rows...)
	}
	return stmts, nil
}

// orderByReferences sorts tables so every table comes after the tables it
// references. Cycles fall back to name order.
func orderByReferences(snap *schema.SchemaSnapshot) []*schema.TableSnapshot {
	names := snap.TableNames()
	placed := make(map[string]bool, len(names))
	var ordered []*schema.TableSnapshot

	var place func(name string, seen map[string]bool)
	place = func(name string, seen map[string]bool) {
		if placed[name] || seen[name] {
			return
		}
		seen[name] = true
		table, ok := snap.Table(name)
		if !ok {
			return
		}
		for _, fk := range table.ForeignKeys {
			if fk.ReferencedTable != name {
				place(fk.ReferencedTable, seen)
			}
		}
		for _, col := range table.Columns {
			if col.Reference != nil && col.Reference.Table != name {
				place(col.Reference.Table, seen)
			}
		}
		placed[name] = true
		ordered = append(ordered, table)
	}
	for _, name := range names {
		place(name, map[string]bool{})
	}
	return ordered
}

func dumpRows(ctx context.Context, db *sql.DB, table *schema.TableSnapshot) ([]string, error) {
	cols := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		cols[i] = c.Name
	}
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), table.Name))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stmts []string
	for rows.Next() {
		values := make([]any, len(cols))
		for i := range values {
			values[i] = new(any)
		}
		if err := rows.Scan(values...); err != nil {
			return nil, err
		}
		literals := make([]string, len(values))
		for i, v := range values {
			literals[i] = sqlLiteral(*(v.(*any)))
		}
		stmts = append(stmts, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			table.Name, strings.Join(cols, ", "), strings.Join(literals, ", ")))
	}
	return stmts, rows.Err()
}

// sqlLiteral renders a scanned value as a SQL literal.
func sqlLiteral(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case int64:
		return fmt.Sprintf("%d", val)
	case float64:
		return fmt.Sprintf("%g", val)
	case time.Time:
		return "'" + val.UTC().Format("2006-01-02 15:04:05") + "'"
	case []byte:
		return "'" + strings.ReplaceAll(string(val), "'", "''") + "'"
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	default:
		return "'" + strings.ReplaceAll(fmt.Sprintf("%v", val), "'", "''") + "'"
	}
}

// joinStatements renders a dump as a single SQL script.
func joinStatements(stmts []string) string {
	var b strings.Builder
	for _, s := range stmts {
		b.WriteString(s)
		b.WriteString(";\n")
	}
	return b.String()
}

// splitStatements splits a SQL script back into statements. Statement
// boundaries are semicolons outside string literals; dumped data may contain
// any bytes, so the scanner tracks quoting instead of splitting on a pattern.
// Dumps only ever quote with single quotes and '' escaping, which is the one
// form the scanner has to understand.
func splitStatements(script string) []string {
	var stmts []string
	var b strings.Builder
	inString := false
	for i := 0; i < len(script); i++ {
		c := script[i]
		switch {
		case c == '\'':
			// A doubled quote toggles out and straight back in, which
			// keeps the escape inside the literal.
			inString = !inString
			b.WriteByte(c)
		case c == ';' && !inString:
			if stmt := strings.TrimSpace(b.String()); stmt != "" {
				stmts = append(stmts, stmt)
			}
			b.Reset()
		default:
			b.WriteByte(c)
		}
	}
	if stmt := strings.TrimSpace(b.String()); stmt != "" {
		stmts = append(stmts, stmt)
	}
	return stmts
}
