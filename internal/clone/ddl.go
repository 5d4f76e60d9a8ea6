package clone

import (
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/cleanslate/csl/schema"
)

// CreateTableDDL renders a CREATE TABLE statement for the given table.
// Only the column shapes, nullability, and the primary key are carried
// over. Foreign keys, defaults, check constraints, and secondary indexes
// are intentionally left behind: the copy exists to receive synthetic
// rows, and default values or cross-table constraints would fight the
// fixture's own row management.
func CreateTableDDL(t *schema.Table) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(pgx.Identifier{t.Schema, t.Name}.Sanitize())
	b.WriteString(" (\n")

	for i, col := range t.Columns {
		if i > 0 {
			b.WriteString(",\n")
		}
		b.WriteString("    ")
		b.WriteString(pgx.Identifier{col.Name}.Sanitize())
		b.WriteString(" ")
		b.WriteString(col.TypeName)
		if !col.IsNullable {
			b.WriteString(" NOT NULL")
		}
	}

	if len(t.PrimaryKey) > 0 {
		b.WriteString(",\n    PRIMARY KEY (")
		for i, name := range t.PrimaryKey {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(pgx.Identifier{name}.Sanitize())
		}
		b.WriteString(")")
	}

	b.WriteString("\n)")
	return b.String()
}
