package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemaflow/schemaflow/schema"
)

const sampleSchema = `
# Accounts and their teams.
table teams {
    id bigint pk
    name varchar(100) unique
}

table users {
    id bigint pk
    email varchar(255) unique
    name varchar(100) nullable
    role enum(admin, member) default "member"
    team_id bigint references teams(id) on_delete cascade

    index (name)
    unique (team_id, email)
}
`

func TestParseSampleSchema(t *testing.T) {
	snap, err := ParseString("schema.flow", sampleSchema)
	require.NoError(t, err)
	assert.Equal(t, []string{"teams", "users"}, snap.TableNames())

	users, ok := snap.Table("users")
	require.True(t, ok)
	require.Len(t, users.Columns, 5)

	id, ok := users.Column("id")
	require.True(t, ok)
	assert.Equal(t, schema.TypeBigInt, id.Type)
	assert.True(t, id.PrimaryKey)

	email, ok := users.Column("email")
	require.True(t, ok)
	assert.Equal(t, schema.TypeVarchar, email.Type)
	assert.Equal(t, 255, email.Size)
	assert.True(t, email.Unique)
	assert.False(t, email.Nullable)

	name, ok := users.Column("name")
	require.True(t, ok)
	assert.True(t, name.Nullable)

	role, ok := users.Column("role")
	require.True(t, ok)
	assert.Equal(t, schema.TypeEnum, role.Type)
	assert.Equal(t, []string{"admin", "member"}, role.EnumValues)
	require.NotNil(t, role.Default)
	assert.Equal(t, "member", *role.Default)

	teamID, ok := users.Column("team_id")
	require.True(t, ok)
	require.NotNil(t, teamID.Reference)
	assert.Equal(t, "teams", teamID.Reference.Table)
	assert.Equal(t, "id", teamID.Reference.Column)
	assert.Equal(t, schema.ActionCascade, teamID.Reference.OnDelete)

	require.Len(t, users.Indexes, 2)
	assert.Equal(t, []string{"name"}, users.Indexes[0].Columns)
	assert.False(t, users.Indexes[0].Unique)
	assert.Equal(t, []string{"team_id", "email"}, users.Indexes[1].Columns)
	assert.True(t, users.Indexes[1].Unique)

	require.Len(t, users.ForeignKeys, 1)
	assert.Equal(t, "teams", users.ForeignKeys[0].ReferencedTable)
}

func TestParseRejectsDuplicateTable(t *testing.T) {
	_, err := ParseString("schema.flow", `
table users { id bigint pk }
table users { id bigint pk }
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declared twice")
}

func TestParseRejectsDuplicateColumn(t *testing.T) {
	_, err := ParseString("schema.flow", `
table users {
    id bigint pk
    id bigint
}
`)
	require.Error(t, err)
}

func TestParseRejectsEnumWithoutValues(t *testing.T) {
	_, err := ParseString("schema.flow", `
table users {
    role enum
}
`)
	require.Error(t, err)
}

func TestParseRejectsUnknownType(t *testing.T) {
	_, err := ParseString("schema.flow", `
table users {
    id uuid pk
}
`)
	require.Error(t, err)
}

func TestParseTypeAliases(t *testing.T) {
	snap, err := ParseString("schema.flow", `
table t {
    a integer
    b bool
    c string(40)
    d numeric(10)
}
`)
	require.NoError(t, err)
	tab, _ := snap.Table("t")

	a, _ := tab.Column("a")
	assert.Equal(t, schema.TypeInt, a.Type)
	b, _ := tab.Column("b")
	assert.Equal(t, schema.TypeBoolean, b.Type)
	c, _ := tab.Column("c")
	assert.Equal(t, schema.TypeVarchar, c.Type)
	assert.Equal(t, 40, c.Size)
	d, _ := tab.Column("d")
	assert.Equal(t, schema.TypeDecimal, d.Type)
}
