package schema

import (
	"sort"
	"time"
)

// Catalog is an immutable snapshot of a database's table structure.
// It is built once per connection by Load and never mutated afterwards,
// so it is safe to share across concurrent readers.
type Catalog struct {
	Tables  map[string]*Table // key: "schema.table"
	Schemas []string
	BuiltAt time.Time
}

// TableByName returns a table by unqualified name, defaulting to the public
// schema. Falls back to scanning all schemas if not found in public.
// Returns nil if no table matches.
func (c *Catalog) TableByName(name string) *Table {
	if t, ok := c.Tables["public."+name]; ok {
		return t
	}
	for _, t := range c.Tables {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// TableList returns all tables sorted by qualified name.
func (c *Catalog) TableList() []*Table {
	tables := make([]*Table, 0, len(c.Tables))
	for _, t := range c.Tables {
		tables = append(tables, t)
	}
	sort.Slice(tables, func(i, j int) bool {
		return tables[i].QualifiedName() < tables[j].QualifiedName()
	})
	return tables
}

// Table describes one database table.
type Table struct {
	Schema      string
	Name        string
	Columns     []*Column // in declaration order
	PrimaryKey  []string  // column names, in constraint order
	ForeignKeys []*ForeignKey
}

// QualifiedName returns "schema.name".
func (t *Table) QualifiedName() string {
	return t.Schema + "." + t.Name
}

// ColumnByName returns a column by name, or nil if not found.
func (t *Table) ColumnByName(name string) *Column {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// HasPrimaryKey reports whether the table has at least one primary key column.
func (t *Table) HasPrimaryKey() bool {
	return len(t.PrimaryKey) > 0
}

// Column describes one table column.
type Column struct {
	Name         string
	Position     int
	TypeName     string // as reported by format_type(), e.g. "character varying(255)"
	Kind         Kind
	IsNullable   bool
	IsPrimaryKey bool
}

// ForeignKey describes a foreign key constraint. The fixture core never
// follows foreign keys; they are recorded so the clone utility knows what
// to omit and so full cleans can delete referencing tables first.
type ForeignKey struct {
	ConstraintName    string
	Columns           []string
	ReferencedSchema  string
	ReferencedTable   string
	ReferencedColumns []string
}
