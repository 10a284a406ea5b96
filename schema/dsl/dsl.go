// Package dsl parses declarative schema files into schema snapshots.
//
// A schema file declares the desired state of the database, one table block
// per entity:
//
//	table users {
//	    id bigint pk
//	    email varchar(255) unique
//	    name varchar(100) nullable
//	    role enum(admin, member) default "member"
//	    team_id bigint references teams(id) on_delete cascade
//
//	    index (name)
//	    unique (team_id, email)
//	}
package dsl

import (
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/schemaflow/schemaflow/schema"
)

var schemaLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Keyword", Pattern: `\b(table|index|unique|pk|nullable|default|references|on_delete|cascade|set_null|restrict|no_action)\b`},
	{Name: "LBrace", Pattern: `\{`},
	{Name: "RBrace", Pattern: `\}`},
	{Name: "LParen", Pattern: `\(`},
	{Name: "RParen", Pattern: `\)`},
	{Name: "Comma", Pattern: `,`},
	{Name: "String", Pattern: `"(?:\\.|[^"\\])*"`},
	{Name: "Number", Pattern: `\d+`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Comment", Pattern: `#[^\n]*`},
	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
})

// rawFile is the raw parse tree matching the grammar.
type rawFile struct {
	Tables []*rawTable `@@*`
}

type rawTable struct {
	Pos     lexer.Position
	Name    string      `"table" @Ident`
	Entries []*rawEntry `"{" @@* "}"`
}

type rawEntry struct {
	Index  *rawIndex  `@@`
	Column *rawColumn `| @@`
}

type rawIndex struct {
	Unique  bool     `(@"unique" | "index")`
	Columns []string `"(" @Ident ("," @Ident)* ")"`
}

type rawColumn struct {
	Pos   lexer.Position
	Name  string     `@Ident`
	Type  string     `@Ident`
	Size  int        `( "(" ( @Number`
	Enum  []string   `        | @Ident ("," @Ident)* ) ")" )?`
	Flags []*rawFlag `@@*`
}

type rawFlag struct {
	PK       bool    `  @"pk"`
	Nullable bool    `| @"nullable"`
	Unique   bool    `| @"unique"`
	Default  *string `| "default" @(String | Number | Ident)`
	Ref      *rawRef `| @@`
}

type rawRef struct {
	Table    string `"references" @Ident`
	Column   string `"(" @Ident ")"`
	OnDelete string `("on_delete" @("cascade" | "set_null" | "restrict" | "no_action"))?`
}

var parser = participle.MustBuild[rawFile](
	participle.Lexer(schemaLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.Unquote("String"),
	participle.UseLookahead(4),
)

// Parse reads a schema file and returns the desired snapshot.
func Parse(filename string, r io.Reader) (*schema.SchemaSnapshot, error) {
	raw, err := parser.Parse(filename, r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema file: %w", err)
	}
	return convert(raw)
}

// ParseString parses a schema declaration from a string.
func ParseString(filename, input string) (*schema.SchemaSnapshot, error) {
	return Parse(filename, strings.NewReader(input))
}

func convert(raw *rawFile) (*schema.SchemaSnapshot, error) {
	snap := schema.NewSnapshot()
	for _, rt := range raw.Tables {
		if _, exists := snap.Table(rt.Name); exists {
			return nil, fmt.Errorf("%s: table %q declared twice", rt.Pos, rt.Name)
		}
		table := &schema.TableSnapshot{Name: rt.Name}
		for _, entry := range rt.Entries {
			switch {
			case entry.Index != nil:
				table.Indexes = append(table.Indexes, schema.Index{
					Columns: entry.Index.Columns,
					Unique:  entry.Index.Unique,
				})
			case entry.Column != nil:
				col, err := convertColumn(entry.Column)
				if err != nil {
					return nil, err
				}
				table.Columns = append(table.Columns, col)
				if col.Reference != nil {
					table.ForeignKeys = append(table.ForeignKeys, schema.ForeignKey{
						Columns:           []string{col.Name},
						ReferencedTable:   col.Reference.Table,
						ReferencedColumns: []string{col.Reference.Column},
						OnDelete:          col.Reference.OnDelete,
					})
				}
			}
		}
		if err := table.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", rt.Pos, err)
		}
		snap.Add(table)
	}
	return snap, nil
}

func convertColumn(rc *rawColumn) (schema.ColumnDefinition, error) {
	typ, err := schema.ParseColumnType(rc.Type)
	if err != nil {
		return schema.ColumnDefinition{}, fmt.Errorf("%s: column %q: %w", rc.Pos, rc.Name, err)
	}
	col := schema.ColumnDefinition{
		Name:       rc.Name,
		Type:       typ,
		Size:       rc.Size,
		EnumValues: rc.Enum,
	}
	if typ == schema.TypeEnum && len(col.EnumValues) == 0 {
		return schema.ColumnDefinition{}, fmt.Errorf("%s: enum column %q has no values", rc.Pos, rc.Name)
	}
	for _, f := range rc.Flags {
		switch {
		case f.PK:
			col.PrimaryKey = true
		case f.Nullable:
			col.Nullable = true
		case f.Unique:
			col.Unique = true
		case f.Default != nil:
			col.Default = f.Default
		case f.Ref != nil:
			col.Reference = &schema.Reference{
				Table:    f.Ref.Table,
				Column:   f.Ref.Column,
				OnDelete: convertAction(f.Ref.OnDelete),
			}
		}
	}
	return col, nil
}

func convertAction(s string) schema.ForeignKeyAction {
	switch s {
	case "cascade":
		return schema.ActionCascade
	case "set_null":
		return schema.ActionSetNull
	case "restrict":
		return schema.ActionRestrict
	case "no_action":
		return schema.ActionNoAction
	default:
		return schema.ActionNoAction
	}
}
