package sqlgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemaflow/schemaflow/migrate/diff"
	"github.com/schemaflow/schemaflow/schema"
)

func TestNewDialectByProvider(t *testing.T) {
	for _, provider := range []string{"postgresql", "postgres", "mysql", "sqlite", "sqlite3"} {
		d, err := New(provider)
		require.NoError(t, err, provider)
		require.NotNil(t, d)
	}
	_, err := New("oracle")
	require.Error(t, err)
}

func TestPostgresAddColumn(t *testing.T) {
	d := &PostgresDialect{}
	sql, err := d.AddColumn("users", schema.ColumnDefinition{
		Name: "email",
		Type: schema.TypeVarchar,
		Size: 255,
	})
	require.NoError(t, err)
	assert.Equal(t, "ALTER TABLE users ADD COLUMN email VARCHAR(255) NOT NULL", sql)
}

func TestPostgresVarcharDefaultsTo255(t *testing.T) {
	d := &PostgresDialect{}
	typ, err := d.ColumnType(schema.ColumnDefinition{Name: "email", Type: schema.TypeVarchar})
	require.NoError(t, err)
	assert.Equal(t, "VARCHAR(255)", typ)
}

func TestPostgresCreateTable(t *testing.T) {
	d := &PostgresDialect{}
	table := schema.NewTable("users").
		ID().
		Column("email", schema.TypeVarchar).Size(255).Unique().
		Column("bio", schema.TypeText).Nullable().
		MustBuild()

	sql, err := d.CreateTable(table)
	require.NoError(t, err)
	assert.Contains(t, sql, "CREATE TABLE users (")
	assert.Contains(t, sql, "email VARCHAR(255) NOT NULL UNIQUE")
	assert.Contains(t, sql, "bio TEXT")
	assert.NotContains(t, sql, "bio TEXT NOT NULL")
}

func TestPostgresSerialPrimaryKey(t *testing.T) {
	d := &PostgresDialect{}
	typ, err := d.ColumnType(schema.ColumnDefinition{Name: "id", Type: schema.TypeBigInt, PrimaryKey: true})
	require.NoError(t, err)
	assert.Equal(t, "BIGSERIAL", typ)
}

func TestPostgresModifyColumnEmitsOneAlterPerAttribute(t *testing.T) {
	d := &PostgresDialect{}
	old := schema.ColumnDefinition{Name: "name", Type: schema.TypeVarchar, Size: 100, Nullable: true}
	new := schema.ColumnDefinition{Name: "name", Type: schema.TypeVarchar, Size: 255}

	stmts, err := d.ModifyColumn("users", old, new)
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	assert.Equal(t, "ALTER TABLE users ALTER COLUMN name TYPE VARCHAR(255) USING name::VARCHAR(255)", stmts[0])
	assert.Equal(t, "ALTER TABLE users ALTER COLUMN name SET NOT NULL", stmts[1])
}

func TestPostgresForeignKey(t *testing.T) {
	d := &PostgresDialect{}
	fk := schema.ForeignKey{
		Columns:           []string{"user_id"},
		ReferencedTable:   "users",
		ReferencedColumns: []string{"id"},
		OnDelete:          schema.ActionCascade,
	}
	sql, err := d.AddForeignKey("posts", fk)
	require.NoError(t, err)
	assert.Equal(t, "ALTER TABLE posts ADD CONSTRAINT posts_user_id_fkey FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE", sql)

	drop, err := d.DropForeignKey("posts", fk)
	require.NoError(t, err)
	assert.Equal(t, "ALTER TABLE posts DROP CONSTRAINT posts_user_id_fkey", drop)
}

func TestMySQLEnumColumn(t *testing.T) {
	d := &MySQLDialect{}
	typ, err := d.ColumnType(schema.ColumnDefinition{
		Name:       "role",
		Type:       schema.TypeEnum,
		EnumValues: []string{"admin", "member"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ENUM('admin', 'member')", typ)
}

func TestSQLiteRejectsModifyColumn(t *testing.T) {
	d := &SQLiteDialect{}
	_, err := d.ModifyColumn("users",
		schema.ColumnDefinition{Name: "name", Type: schema.TypeVarchar, Size: 100},
		schema.ColumnDefinition{Name: "name", Type: schema.TypeVarchar, Size: 255},
	)
	require.Error(t, err)
}

func TestIndexNaming(t *testing.T) {
	assert.Equal(t, "users_email_key", IndexName("users", schema.Index{Columns: []string{"email"}, Unique: true}))
	assert.Equal(t, "users_a_b_idx", IndexName("users", schema.Index{Columns: []string{"a", "b"}}))
}

func TestStatementsRejectUnresolvedRenameCandidate(t *testing.T) {
	d := &PostgresDialect{}
	_, err := Statements(d, []diff.Operation{{
		Type:    diff.OpRenameCandidate,
		Table:   "users",
		OldName: "name",
		NewName: "full_name",
	}})
	require.Error(t, err)
	var ambiguity *diff.AmbiguityError
	assert.ErrorAs(t, err, &ambiguity)
}

func TestQuoteDefault(t *testing.T) {
	assert.Equal(t, "0", quoteDefault("0"))
	assert.Equal(t, "TRUE", quoteDefault("true"))
	assert.Equal(t, "CURRENT_TIMESTAMP", quoteDefault("CURRENT_TIMESTAMP"))
	assert.Equal(t, "'member'", quoteDefault("member"))
	assert.Equal(t, "'it''s'", quoteDefault("it's"))
}
