package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemaflow/schemaflow/schema"
)

func usersTable(extra ...func(*schema.TableSnapshot)) *schema.TableSnapshot {
	t := schema.NewTable("users").
		ID().
		Column("name", schema.TypeVarchar).Size(100).
		MustBuild()
	for _, f := range extra {
		f(t)
	}
	return t
}

func snapshotOf(tables ...*schema.TableSnapshot) *schema.SchemaSnapshot {
	snap := schema.NewSnapshot()
	for _, t := range tables {
		snap.Add(t)
	}
	return snap
}

func TestCompareIdenticalSnapshotsIsEmpty(t *testing.T) {
	desired := snapshotOf(usersTable())
	actual := snapshotOf(usersTable())

	d, err := NewDiffer().Compare(desired, actual)
	require.NoError(t, err)
	assert.True(t, d.Empty())
}

func TestWithoutRenameCandidates(t *testing.T) {
	d := &SchemaDiff{Operations: []Operation{
		{Type: OpAddColumn, Table: "users", Column: &schema.ColumnDefinition{Name: "email", Type: schema.TypeVarchar}},
		{Type: OpRenameCandidate, Table: "users", OldName: "name", NewName: "full_name"},
	}}

	got := d.WithoutRenameCandidates()
	require.Len(t, got.Operations, 1)
	assert.Equal(t, OpAddColumn, got.Operations[0].Type)
	assert.Len(t, d.Operations, 2, "the original diff is untouched")

	onlyCandidate := &SchemaDiff{Operations: []Operation{
		{Type: OpRenameCandidate, Table: "users", OldName: "name", NewName: "full_name"},
	}}
	assert.True(t, onlyCandidate.WithoutRenameCandidates().Empty())
}

func TestCompareBuilderTableAgainstIntrospectedShapeIsEmpty(t *testing.T) {
	desired := snapshotOf(
		usersTable(),
		schema.NewTable("posts").ID().
			Column("user_id", schema.TypeBigInt).References("users", "id", schema.ActionCascade).
			MustBuild(),
	)
	// The shape an introspector reports: the reference shows up on the column
	// and as a named table-level constraint.
	actual := snapshotOf(
		usersTable(),
		&schema.TableSnapshot{
			Name: "posts",
			Columns: []schema.ColumnDefinition{
				{Name: "id", Type: schema.TypeBigInt, PrimaryKey: true},
				{
					Name: "user_id",
					Type: schema.TypeBigInt,
					Reference: &schema.Reference{
						Table: "users", Column: "id", OnDelete: schema.ActionCascade,
					},
				},
			},
			ForeignKeys: []schema.ForeignKey{{
				Name:              "posts_user_id_fkey",
				Columns:           []string{"user_id"},
				ReferencedTable:   "users",
				ReferencedColumns: []string{"id"},
				OnDelete:          schema.ActionCascade,
			}},
		},
	)

	d, err := NewDiffer().Compare(desired, actual)
	require.NoError(t, err)
	assert.True(t, d.Empty(), "operations: %v", d.Operations)
}

func TestCompareDetectsAddedColumn(t *testing.T) {
	desired := snapshotOf(schema.NewTable("users").
		ID().
		Column("name", schema.TypeVarchar).Size(100).
		Column("email", schema.TypeVarchar).Size(255).
		MustBuild())
	actual := snapshotOf(usersTable())

	d, err := NewDiffer().Compare(desired, actual)
	require.NoError(t, err)
	require.Len(t, d.Operations, 1)

	op := d.Operations[0]
	assert.Equal(t, OpAddColumn, op.Type)
	assert.Equal(t, "users", op.Table)
	assert.Equal(t, "email", op.Column.Name)
	assert.False(t, op.Destructive)
	assert.False(t, d.HasDestructive())
}

func TestCompareDetectsDroppedColumnAsDestructive(t *testing.T) {
	desired := snapshotOf(usersTable())
	actual := snapshotOf(schema.NewTable("users").
		ID().
		Column("name", schema.TypeVarchar).Size(100).
		Column("legacy", schema.TypeText).
		MustBuild())

	d, err := NewDiffer().Compare(desired, actual)
	require.NoError(t, err)
	require.Len(t, d.Operations, 1)
	assert.Equal(t, OpDropColumn, d.Operations[0].Type)
	assert.True(t, d.HasDestructive())
}

func TestCompareDetectsNewAndDroppedTables(t *testing.T) {
	desired := snapshotOf(
		usersTable(),
		schema.NewTable("posts").ID().Column("title", schema.TypeVarchar).MustBuild(),
	)
	actual := snapshotOf(
		usersTable(),
		schema.NewTable("audit_log").ID().MustBuild(),
	)

	d, err := NewDiffer().Compare(desired, actual)
	require.NoError(t, err)
	require.Len(t, d.Operations, 2)

	// Creates order before drops.
	assert.Equal(t, OpCreateTable, d.Operations[0].Type)
	assert.Equal(t, "posts", d.Operations[0].Table)
	assert.Equal(t, OpDropTable, d.Operations[1].Type)
	assert.Equal(t, "audit_log", d.Operations[1].Table)
	assert.True(t, d.Operations[1].Destructive)
}

func TestCompareProposesRenameCandidate(t *testing.T) {
	desired := snapshotOf(schema.NewTable("users").
		ID().
		Column("full_name", schema.TypeVarchar).Size(100).
		MustBuild())
	actual := snapshotOf(schema.NewTable("users").
		ID().
		Column("name", schema.TypeVarchar).Size(100).
		MustBuild())

	d, err := NewDiffer().Compare(desired, actual)
	require.NoError(t, err)

	candidates := d.RenameCandidates()
	require.Len(t, candidates, 1)
	c := candidates[0]
	assert.Equal(t, "name", c.OldName)
	assert.Equal(t, "full_name", c.NewName)
	assert.Contains(t, c.Similarity, "same type")
	assert.Contains(t, c.Similarity, "same position")
	require.NotNil(t, c.OldColumn)
	require.NotNil(t, c.NewColumn)

	// The candidate replaces the drop+add pair, nothing else is emitted.
	require.Len(t, d.Operations, 1)
}

func TestCompareSkipsRenameWhenTypesDiffer(t *testing.T) {
	desired := snapshotOf(schema.NewTable("users").
		ID().
		Column("age", schema.TypeInt).
		MustBuild())
	actual := snapshotOf(schema.NewTable("users").
		ID().
		Column("name", schema.TypeVarchar).Size(100).
		MustBuild())

	d, err := NewDiffer().Compare(desired, actual)
	require.NoError(t, err)
	assert.Empty(t, d.RenameCandidates())
	require.Len(t, d.Operations, 2)
	assert.Equal(t, OpAddColumn, d.Operations[0].Type)
	assert.Equal(t, OpDropColumn, d.Operations[1].Type)
}

func TestCompareDetectsModifiedColumn(t *testing.T) {
	desired := snapshotOf(schema.NewTable("users").
		ID().
		Column("name", schema.TypeVarchar).Size(200).
		MustBuild())
	actual := snapshotOf(usersTable())

	d, err := NewDiffer().Compare(desired, actual)
	require.NoError(t, err)
	require.Len(t, d.Operations, 1)

	op := d.Operations[0]
	assert.Equal(t, OpModifyColumn, op.Type)
	assert.Equal(t, 100, op.OldColumn.Size)
	assert.Equal(t, 200, op.NewColumn.Size)
	// Widening a varchar loses nothing.
	assert.False(t, op.Destructive)
}

func TestCompareFlagsNarrowingAsDestructive(t *testing.T) {
	desired := snapshotOf(schema.NewTable("users").
		ID().
		Column("name", schema.TypeVarchar).Size(50).
		MustBuild())
	actual := snapshotOf(usersTable())

	d, err := NewDiffer().Compare(desired, actual)
	require.NoError(t, err)
	require.Len(t, d.Operations, 1)
	assert.True(t, d.Operations[0].Destructive)
}

func TestCompareMatchesIndexesByStructure(t *testing.T) {
	desired := snapshotOf(schema.NewTable("users").
		ID().
		Column("name", schema.TypeVarchar).Size(100).
		Index("name").
		MustBuild())
	// Same index under a different name: not a change.
	withRenamed := usersTable(func(t *schema.TableSnapshot) {
		t.Indexes = append(t.Indexes, schema.Index{Name: "idx_users_on_name", Columns: []string{"name"}})
	})
	actual := snapshotOf(withRenamed)

	d, err := NewDiffer().Compare(desired, actual)
	require.NoError(t, err)
	assert.True(t, d.Empty())
}

func TestIsLossyChange(t *testing.T) {
	cases := []struct {
		name  string
		old   schema.ColumnDefinition
		new   schema.ColumnDefinition
		lossy bool
	}{
		{"int widens to bigint", schema.ColumnDefinition{Type: schema.TypeInt}, schema.ColumnDefinition{Type: schema.TypeBigInt}, false},
		{"bigint narrows to int", schema.ColumnDefinition{Type: schema.TypeBigInt}, schema.ColumnDefinition{Type: schema.TypeInt}, true},
		{"varchar widens to text", schema.ColumnDefinition{Type: schema.TypeVarchar, Size: 255}, schema.ColumnDefinition{Type: schema.TypeText}, false},
		{"varchar grows", schema.ColumnDefinition{Type: schema.TypeVarchar, Size: 100}, schema.ColumnDefinition{Type: schema.TypeVarchar, Size: 255}, false},
		{"varchar shrinks", schema.ColumnDefinition{Type: schema.TypeVarchar, Size: 255}, schema.ColumnDefinition{Type: schema.TypeVarchar, Size: 100}, true},
		{"text to int", schema.ColumnDefinition{Type: schema.TypeText}, schema.ColumnDefinition{Type: schema.TypeInt}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.lossy, IsLossyChange(tc.old, tc.new))
		})
	}
}

func TestOrderPutsDropsLast(t *testing.T) {
	col := schema.ColumnDefinition{Name: "c", Type: schema.TypeInt}
	ops := []Operation{
		{Type: OpDropTable, Table: "old"},
		{Type: OpDropColumn, Table: "users", Column: &col},
		{Type: OpAddColumn, Table: "users", Column: &col},
		{Type: OpCreateTable, Table: "new", TableDef: schema.NewTable("new").ID().MustBuild()},
		{Type: OpAddIndex, Table: "users", Index: &schema.Index{Columns: []string{"c"}}},
	}

	ordered := Order(ops)
	types := make([]OpType, len(ordered))
	for i, op := range ordered {
		types[i] = op.Type
	}
	assert.Equal(t, []OpType{OpCreateTable, OpAddColumn, OpAddIndex, OpDropColumn, OpDropTable}, types)
}

func TestInvertRoundTrip(t *testing.T) {
	desired := snapshotOf(
		schema.NewTable("users").
			ID().
			Column("email", schema.TypeVarchar).Size(255).Unique().
			MustBuild(),
		schema.NewTable("posts").
			ID().
			Column("user_id", schema.TypeBigInt).References("users", "id", schema.ActionCascade).
			MustBuild(),
	)
	empty := schema.NewSnapshot()

	d, err := NewDiffer().Compare(desired, empty)
	require.NoError(t, err)

	// Apply forward onto empty, then the inverse, and land back at empty.
	after, err := Apply(empty, d.Operations)
	require.NoError(t, err)
	assert.ElementsMatch(t, desired.TableNames(), after.TableNames())

	inverse, err := InvertAll(d.Operations)
	require.NoError(t, err)
	back, err := Apply(after, inverse)
	require.NoError(t, err)
	assert.Empty(t, back.TableNames())
}

func TestApplyRejectsRenameCandidate(t *testing.T) {
	snap := snapshotOf(usersTable())
	_, err := Apply(snap, []Operation{{
		Type:    OpRenameCandidate,
		Table:   "users",
		OldName: "name",
		NewName: "full_name",
	}})
	require.Error(t, err)
}

func TestAmbiguityErrorMessage(t *testing.T) {
	err := &AmbiguityError{Table: "users", OldName: "name", NewName: "full_name"}
	assert.Contains(t, err.Error(), "users")
	assert.Contains(t, err.Error(), "name")
	assert.Contains(t, err.Error(), "full_name")
}
