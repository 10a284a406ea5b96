package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableValidateRejectsDuplicateColumn(t *testing.T) {
	tbl := &TableSnapshot{
		Name: "users",
		Columns: []ColumnDefinition{
			{Name: "id", Type: TypeInt},
			{Name: "id", Type: TypeBigInt},
		},
	}
	err := tbl.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate column")
}

func TestTableValidateRejectsUnnamedColumn(t *testing.T) {
	tbl := &TableSnapshot{
		Name:    "users",
		Columns: []ColumnDefinition{{Type: TypeInt}},
	}
	require.Error(t, tbl.Validate())
}

func TestTableValidateRejectsMissingName(t *testing.T) {
	require.Error(t, (&TableSnapshot{}).Validate())
}

func TestSnapshotValidateWalksAllTables(t *testing.T) {
	s := NewSnapshot()
	s.Add(NewTable("teams").ID().MustBuild())
	s.Add(&TableSnapshot{
		Name: "users",
		Columns: []ColumnDefinition{
			{Name: "id", Type: TypeInt},
			{Name: "id", Type: TypeInt},
		},
	})

	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `table "users"`)
}

func TestColumnPosition(t *testing.T) {
	tbl := NewTable("users").ID().
		Column("name", TypeVarchar).Size(100).
		Column("email", TypeVarchar).Size(255).
		MustBuild()

	assert.Equal(t, 0, tbl.ColumnPosition("id"))
	assert.Equal(t, 2, tbl.ColumnPosition("email"))
	assert.Equal(t, -1, tbl.ColumnPosition("missing"))

	col, ok := tbl.Column("name")
	require.True(t, ok)
	assert.Equal(t, 100, col.Size)

	_, ok = tbl.Column("missing")
	assert.False(t, ok)
}

func TestCloneIsIndependent(t *testing.T) {
	orig := NewSnapshot()
	orig.Add(NewTable("users").ID().
		Column("email", TypeVarchar).Size(255).Unique().
		Index("email").
		MustBuild())

	clone := orig.Clone()
	clone.Tables["users"].Columns[1].Name = "mail"
	clone.Tables["users"].Indexes[0].Columns[0] = "mail"
	clone.Add(NewTable("teams").ID().MustBuild())

	users := orig.Tables["users"]
	assert.Equal(t, "email", users.Columns[1].Name)
	assert.Equal(t, []string{"email"}, users.Indexes[0].Columns)
	_, ok := orig.Table("teams")
	assert.False(t, ok, "adding to the clone must not touch the original")
}

func TestTableNamesSorted(t *testing.T) {
	s := NewSnapshot()
	s.Add(NewTable("posts").ID().MustBuild())
	s.Add(NewTable("accounts").ID().MustBuild())
	s.Add(NewTable("users").ID().MustBuild())

	assert.Equal(t, []string{"accounts", "posts", "users"}, s.TableNames())
}

func TestColumnEqual(t *testing.T) {
	def := "member"
	base := ColumnDefinition{Name: "role", Type: TypeEnum, EnumValues: []string{"admin", "member"}, Default: &def}

	same := base
	sameDef := "member"
	same.Default = &sameDef
	same.EnumValues = []string{"admin", "member"}
	assert.True(t, base.Equal(same))

	otherDef := "admin"
	changed := base
	changed.Default = &otherDef
	assert.False(t, base.Equal(changed))

	noDefault := base
	noDefault.Default = nil
	assert.False(t, base.Equal(noDefault))

	reordered := base
	reordered.EnumValues = []string{"member", "admin"}
	assert.False(t, base.Equal(reordered), "enum value order is significant")
}

func TestColumnEqualReference(t *testing.T) {
	a := ColumnDefinition{
		Name: "team_id", Type: TypeInt,
		Reference: &Reference{Table: "teams", Column: "id", OnDelete: ActionCascade},
	}
	b := ColumnDefinition{
		Name: "team_id", Type: TypeInt,
		Reference: &Reference{Table: "teams", Column: "id", OnDelete: ActionCascade},
	}
	assert.True(t, a.Equal(b))
	assert.True(t, a.IsForeignKey())

	b.Reference.OnDelete = ActionSetNull
	assert.False(t, a.Equal(b))

	b.Reference = nil
	assert.False(t, a.Equal(b))
	assert.False(t, b.IsForeignKey())
}

func TestIndexEqualIgnoresName(t *testing.T) {
	a := Index{Name: "users_email_key", Columns: []string{"email"}, Unique: true}
	b := Index{Name: "idx_email_unique", Columns: []string{"email"}, Unique: true}
	assert.True(t, a.Equal(b))

	b.Unique = false
	assert.False(t, a.Equal(b))

	c := Index{Columns: []string{"email", "name"}}
	assert.False(t, a.Equal(c))
}

func TestForeignKeyEqualIgnoresName(t *testing.T) {
	a := ForeignKey{
		Name:              "posts_user_id_fkey",
		Columns:           []string{"user_id"},
		ReferencedTable:   "users",
		ReferencedColumns: []string{"id"},
		OnDelete:          ActionCascade,
	}
	b := a
	b.Name = "fk_posts_users"
	assert.True(t, a.Equal(b))

	b.OnDelete = ActionRestrict
	assert.False(t, a.Equal(b))
}

func TestParseColumnType(t *testing.T) {
	cases := []struct {
		in   string
		want ColumnType
	}{
		{"varchar", TypeVarchar},
		{"VARCHAR", TypeVarchar},
		{"string", TypeVarchar},
		{"integer", TypeInt},
		{"bool", TypeBoolean},
		{"numeric", TypeDecimal},
		{"Timestamp", TypeTimestamp},
		{"enum", TypeEnum},
	}
	for _, tc := range cases {
		got, err := ParseColumnType(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, err := ParseColumnType("uuid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown column type")
}

func TestBuilderWiresColumnFlags(t *testing.T) {
	tbl := NewTable("users").ID().
		Column("email", TypeVarchar).Size(255).Unique().
		Column("role", TypeEnum).Values("admin", "member").Default("member").
		Column("team_id", TypeInt).Nullable().References("teams", "id", ActionSetNull).
		UniqueIndex("team_id", "email").
		MustBuild()

	require.NoError(t, tbl.Validate())

	id, _ := tbl.Column("id")
	assert.True(t, id.PrimaryKey)

	email, _ := tbl.Column("email")
	assert.True(t, email.Unique)
	assert.Equal(t, 255, email.Size)

	role, _ := tbl.Column("role")
	assert.Equal(t, []string{"admin", "member"}, role.EnumValues)
	require.NotNil(t, role.Default)
	assert.Equal(t, "member", *role.Default)

	teamID, _ := tbl.Column("team_id")
	assert.True(t, teamID.Nullable)
	require.NotNil(t, teamID.Reference)
	assert.Equal(t, "teams", teamID.Reference.Table)

	require.Len(t, tbl.Indexes, 1)
	assert.True(t, tbl.Indexes[0].Unique)
	assert.Equal(t, []string{"team_id", "email"}, tbl.Indexes[0].Columns)
}

func TestBuilderMirrorsReferenceAsForeignKey(t *testing.T) {
	tbl := NewTable("posts").ID().
		Column("user_id", TypeBigInt).References("users", "id", ActionCascade).
		MustBuild()

	// Introspection reports every reference as a table-level constraint, so
	// declared tables must carry the same shape.
	require.Len(t, tbl.ForeignKeys, 1)
	fk := tbl.ForeignKeys[0]
	assert.Equal(t, []string{"user_id"}, fk.Columns)
	assert.Equal(t, "users", fk.ReferencedTable)
	assert.Equal(t, []string{"id"}, fk.ReferencedColumns)
	assert.Equal(t, ActionCascade, fk.OnDelete)
}
