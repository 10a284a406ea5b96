// Package introspect reads a live database schema into a snapshot.
package introspect

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/schemaflow/schemaflow/migrate/ledger"
	"github.com/schemaflow/schemaflow/schema"
)

// ErrUnsupportedProvider is returned for providers with no introspector.
var ErrUnsupportedProvider = errors.New("unsupported database provider")

// Introspector reads the actual schema state from a live database. The ledger
// table is infrastructure and never appears in the snapshot.
type Introspector interface {
	Introspect(ctx context.Context) (*schema.SchemaSnapshot, error)
}

// New creates an introspector for the given provider.
func New(db *sql.DB, provider string) (Introspector, error) {
	switch provider {
	case "postgresql", "postgres":
		return &PostgresIntrospector{db: db}, nil
	case "mysql":
		return &MySQLIntrospector{db: db}, nil
	case "sqlite", "sqlite3":
		return &SQLiteIntrospector{db: db}, nil
	default:
		return nil, ErrUnsupportedProvider
	}
}

// isInternalTable filters infrastructure tables out of snapshots.
func isInternalTable(name string) bool {
	return name == ledger.TableName || strings.HasPrefix(name, "sqlite_")
}

// normalizeType maps a provider-reported type to the snapshot type model.
func normalizeType(dbType string, maxLength int64) (schema.ColumnType, int) {
	t := strings.ToLower(strings.TrimSpace(dbType))
	switch {
	case t == "integer" || t == "int" || t == "int4" || t == "serial" || t == "mediumint":
		return schema.TypeInt, 0
	case t == "bigint" || t == "int8" || t == "bigserial":
		return schema.TypeBigInt, 0
	case t == "smallint" || t == "int2" || t == "tinyint":
		return schema.TypeSmallInt, 0
	case t == "tinyint(1)":
		return schema.TypeBoolean, 0
	case strings.HasPrefix(t, "numeric") || strings.HasPrefix(t, "decimal"):
		return schema.TypeDecimal, int(maxLength)
	case t == "double precision" || t == "real" || t == "float" || t == "double" || t == "float8":
		return schema.TypeFloat, 0
	case strings.HasPrefix(t, "character varying") || strings.HasPrefix(t, "varchar"):
		size := int(maxLength)
		if size == 0 {
			size = parseParenSize(t)
		}
		return schema.TypeVarchar, size
	case t == "text" || t == "character" || strings.HasPrefix(t, "char"):
		return schema.TypeText, 0
	case t == "bytea" || t == "blob" || strings.HasPrefix(t, "binary") || t == "longblob":
		return schema.TypeBlob, 0
	case t == "boolean" || t == "bool":
		return schema.TypeBoolean, 0
	case t == "date":
		return schema.TypeDate, 0
	case strings.HasPrefix(t, "timestamp"):
		return schema.TypeTimestamp, 0
	case strings.HasPrefix(t, "datetime"):
		return schema.TypeDateTime, 0
	case strings.HasPrefix(t, "time"):
		return schema.TypeTime, 0
	case t == "json" || t == "jsonb":
		return schema.TypeJSON, 0
	case strings.HasPrefix(t, "enum"):
		return schema.TypeEnum, 0
	default:
		return schema.TypeText, 0
	}
}

// parseParenSize extracts N from forms like varchar(255).
func parseParenSize(t string) int {
	open := strings.IndexByte(t, '(')
	close := strings.IndexByte(t, ')')
	if open < 0 || close <= open {
		return 0
	}
	n := 0
	for _, r := range t[open+1 : close] {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// normalizeAction maps a reported referential action.
func normalizeAction(s string) schema.ForeignKeyAction {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CASCADE":
		return schema.ActionCascade
	case "SET NULL":
		return schema.ActionSetNull
	case "RESTRICT":
		return schema.ActionRestrict
	default:
		return schema.ActionNoAction
	}
}

// cleanDefault strips provider noise from a reported default. Sequence-backed
// defaults mean auto-increment, which the snapshot models via the primary-key
// flag instead.
func cleanDefault(raw string) *string {
	if raw == "" || strings.HasPrefix(raw, "nextval(") {
		return nil
	}
	// Postgres suffixes casts like 'member'::text.
	if i := strings.Index(raw, "::"); i > 0 {
		raw = raw[:i]
	}
	raw = strings.Trim(raw, "'")
	if raw == "" {
		return nil
	}
	return &raw
}
