package schema

// TableBuilder declares a table definition statically, without reflection.
// Call order fixes column order, which the diff engine uses for rename
// candidate detection.
type TableBuilder struct {
	table *TableSnapshot
}

// NewTable starts a table declaration.
func NewTable(name string) *TableBuilder {
	return &TableBuilder{table: &TableSnapshot{Name: name}}
}

// Column appends a column and returns a builder scoped to it.
func (b *TableBuilder) Column(name string, typ ColumnType) *ColumnBuilder {
	b.table.Columns = append(b.table.Columns, ColumnDefinition{Name: name, Type: typ})
	return &ColumnBuilder{parent: b, idx: len(b.table.Columns) - 1}
}

// ID appends the conventional auto-increment integer primary key.
func (b *TableBuilder) ID() *TableBuilder {
	b.table.Columns = append(b.table.Columns, ColumnDefinition{
		Name:       "id",
		Type:       TypeBigInt,
		PrimaryKey: true,
	})
	return b
}

// Index declares a non-unique index over the given columns.
func (b *TableBuilder) Index(columns ...string) *TableBuilder {
	b.table.Indexes = append(b.table.Indexes, Index{Columns: columns})
	return b
}

// UniqueIndex declares a unique index over the given columns.
func (b *TableBuilder) UniqueIndex(columns ...string) *TableBuilder {
	b.table.Indexes = append(b.table.Indexes, Index{Columns: columns, Unique: true})
	return b
}

// ForeignKey declares a table-level foreign-key constraint.
func (b *TableBuilder) ForeignKey(column, refTable, refColumn string, onDelete ForeignKeyAction) *TableBuilder {
	b.table.ForeignKeys = append(b.table.ForeignKeys, ForeignKey{
		Columns:           []string{column},
		ReferencedTable:   refTable,
		ReferencedColumns: []string{refColumn},
		OnDelete:          onDelete,
	})
	return b
}

// Build validates and returns the table snapshot.
func (b *TableBuilder) Build() (*TableSnapshot, error) {
	if err := b.table.Validate(); err != nil {
		return nil, err
	}
	return b.table, nil
}

// MustBuild is Build for statically declared tables, panicking on defects.
func (b *TableBuilder) MustBuild() *TableSnapshot {
	t, err := b.Build()
	if err != nil {
		panic(err)
	}
	return t
}

// ColumnBuilder refines the most recently declared column.
type ColumnBuilder struct {
	parent *TableBuilder
	idx    int
}

func (c *ColumnBuilder) col() *ColumnDefinition {
	return &c.parent.table.Columns[c.idx]
}

// Size sets the column size (varchar length, decimal precision).
func (c *ColumnBuilder) Size(n int) *ColumnBuilder {
	c.col().Size = n
	return c
}

// Nullable marks the column as accepting NULL.
func (c *ColumnBuilder) Nullable() *ColumnBuilder {
	c.col().Nullable = true
	return c
}

// Unique marks the column as unique.
func (c *ColumnBuilder) Unique() *ColumnBuilder {
	c.col().Unique = true
	return c
}

// PrimaryKey marks the column as the primary key.
func (c *ColumnBuilder) PrimaryKey() *ColumnBuilder {
	c.col().PrimaryKey = true
	return c
}

// Default sets the column's default value expression.
func (c *ColumnBuilder) Default(v string) *ColumnBuilder {
	c.col().Default = &v
	return c
}

// Values sets the permitted values of an enum column.
func (c *ColumnBuilder) Values(vals ...string) *ColumnBuilder {
	c.col().EnumValues = vals
	return c
}

// References marks the column as a foreign key to table.column. The reference
// is mirrored as a table-level constraint, matching what introspection reports.
func (c *ColumnBuilder) References(table, column string, onDelete ForeignKeyAction) *ColumnBuilder {
	col := c.col()
	col.Reference = &Reference{Table: table, Column: column, OnDelete: onDelete}
	c.parent.table.ForeignKeys = append(c.parent.table.ForeignKeys, ForeignKey{
		Columns:           []string{col.Name},
		ReferencedTable:   table,
		ReferencedColumns: []string{column},
		OnDelete:          onDelete,
	})
	return c
}

// Column continues the table declaration with a new column.
func (c *ColumnBuilder) Column(name string, typ ColumnType) *ColumnBuilder {
	return c.parent.Column(name, typ)
}

// Index delegates to the table builder.
func (c *ColumnBuilder) Index(columns ...string) *TableBuilder {
	return c.parent.Index(columns...)
}

// UniqueIndex delegates to the table builder.
func (c *ColumnBuilder) UniqueIndex(columns ...string) *TableBuilder {
	return c.parent.UniqueIndex(columns...)
}

// ForeignKey delegates to the table builder.
func (c *ColumnBuilder) ForeignKey(column, refTable, refColumn string, onDelete ForeignKeyAction) *TableBuilder {
	return c.parent.ForeignKey(column, refTable, refColumn, onDelete)
}

// Build finishes the table declaration.
func (c *ColumnBuilder) Build() (*TableSnapshot, error) {
	return c.parent.Build()
}

// MustBuild finishes the table declaration, panicking on defects.
func (c *ColumnBuilder) MustBuild() *TableSnapshot {
	return c.parent.MustBuild()
}
