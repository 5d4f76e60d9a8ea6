package schema

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// excludedSchemas are system schemas that are never introspected.
var excludedSchemas = []string{"information_schema", "pg_catalog", "pg_toast"}

// Load introspects the connected database and returns a complete Catalog.
// Only real tables are loaded (no views): the fixture inserts and deletes
// rows, which only makes sense against base tables.
func Load(ctx context.Context, pool *pgxpool.Pool) (*Catalog, error) {
	tables, schemas, err := loadTablesAndColumns(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("introspecting schema: %w", err)
	}

	if err := loadPrimaryKeys(ctx, pool, tables); err != nil {
		return nil, fmt.Errorf("introspecting schema: %w", err)
	}

	if err := loadForeignKeys(ctx, pool, tables); err != nil {
		return nil, fmt.Errorf("introspecting schema: %w", err)
	}

	return &Catalog{
		Tables:  tables,
		Schemas: schemas,
		BuiltAt: time.Now(),
	}, nil
}

// schemaFilter returns SQL clauses and args for excluding system schemas.
// paramOffset is the starting $N parameter number.
func schemaFilter(alias string, paramOffset int) (clause string, args []any) {
	conditions := make([]string, 0, len(excludedSchemas)+1)
	for i, s := range excludedSchemas {
		conditions = append(conditions, fmt.Sprintf("%s.nspname != $%d", alias, paramOffset+i))
		args = append(args, s)
	}
	conditions = append(conditions, fmt.Sprintf("%s.nspname NOT LIKE $%d", alias, paramOffset+len(excludedSchemas)))
	args = append(args, "pg_%")
	return strings.Join(conditions, " AND "), args
}

func loadTablesAndColumns(ctx context.Context, pool *pgxpool.Pool) (map[string]*Table, []string, error) {
	filter, args := schemaFilter("n", 1)

	query := fmt.Sprintf(`
		SELECT n.nspname                            AS table_schema,
		       c.relname                            AS table_name,
		       a.attname                            AS column_name,
		       a.attnum                             AS column_position,
		       format_type(a.atttypid, a.atttypmod) AS column_type,
		       NOT a.attnotnull                     AS is_nullable
		FROM pg_attribute a
		  JOIN pg_class c ON c.oid = a.attrelid
		  JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE c.relkind IN ('r', 'p')
		  AND a.attnum > 0
		  AND NOT a.attisdropped
		  AND %s
		ORDER BY n.nspname, c.relname, a.attnum`, filter)

	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("querying tables and columns: %w", err)
	}
	defer rows.Close()

	tables := make(map[string]*Table)
	schemaSet := make(map[string]bool)

	for rows.Next() {
		var (
			tableSchema, tableName string
			colName, colType       string
			colPosition            int
			isNullable             bool
		)

		if err := rows.Scan(
			&tableSchema, &tableName,
			&colName, &colPosition, &colType, &isNullable,
		); err != nil {
			return nil, nil, fmt.Errorf("scanning column: %w", err)
		}

		key := tableSchema + "." + tableName
		schemaSet[tableSchema] = true

		tbl, ok := tables[key]
		if !ok {
			tbl = &Table{
				Schema: tableSchema,
				Name:   tableName,
			}
			tables[key] = tbl
		}

		tbl.Columns = append(tbl.Columns, &Column{
			Name:       colName,
			Position:   colPosition,
			TypeName:   colType,
			Kind:       KindOf(colType),
			IsNullable: isNullable,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	schemas := make([]string, 0, len(schemaSet))
	for s := range schemaSet {
		schemas = append(schemas, s)
	}

	return tables, schemas, nil
}

func loadPrimaryKeys(ctx context.Context, pool *pgxpool.Pool, tables map[string]*Table) error {
	filter, args := schemaFilter("n", 1)

	query := fmt.Sprintf(`
		SELECT n.nspname, c.relname, cn.conkey
		FROM pg_constraint cn
		  JOIN pg_class c ON c.oid = cn.conrelid
		  JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE cn.contype = 'p' AND %s
		ORDER BY n.nspname, c.relname`, filter)

	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("querying primary keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var schema, name string
		var colPositions []int16
		if err := rows.Scan(&schema, &name, &colPositions); err != nil {
			return fmt.Errorf("scanning primary key: %w", err)
		}

		tbl, ok := tables[schema+"."+name]
		if !ok {
			continue
		}

		// Resolve column positions to names.
		for _, pos := range colPositions {
			for _, col := range tbl.Columns {
				if col.Position == int(pos) {
					tbl.PrimaryKey = append(tbl.PrimaryKey, col.Name)
					col.IsPrimaryKey = true
					break
				}
			}
		}
	}
	return rows.Err()
}

func loadForeignKeys(ctx context.Context, pool *pgxpool.Pool, tables map[string]*Table) error {
	filter, args := schemaFilter("n", 1)

	query := fmt.Sprintf(`
		SELECT cn.conname,
		       n.nspname, c.relname,
		       (SELECT array_agg(a.attname ORDER BY ord.n)
		        FROM unnest(cn.conkey) WITH ORDINALITY AS ord(attnum, n)
		        JOIN pg_attribute a ON a.attrelid = cn.conrelid AND a.attnum = ord.attnum
		       ),
		       tn.nspname, tc.relname,
		       (SELECT array_agg(a.attname ORDER BY ord.n)
		        FROM unnest(cn.confkey) WITH ORDINALITY AS ord(attnum, n)
		        JOIN pg_attribute a ON a.attrelid = cn.confrelid AND a.attnum = ord.attnum
		       )
		FROM pg_constraint cn
		  JOIN pg_class c ON c.oid = cn.conrelid
		  JOIN pg_namespace n ON n.oid = c.relnamespace
		  JOIN pg_class tc ON tc.oid = cn.confrelid
		  JOIN pg_namespace tn ON tn.oid = tc.relnamespace
		WHERE cn.contype = 'f' AND %s
		ORDER BY n.nspname, c.relname, cn.conname`, filter)

	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("querying foreign keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			constraintName      string
			schema, name        string
			columns             []string
			refSchema, refTable string
			refColumns          []string
		)
		if err := rows.Scan(
			&constraintName,
			&schema, &name, &columns,
			&refSchema, &refTable, &refColumns,
		); err != nil {
			return fmt.Errorf("scanning foreign key: %w", err)
		}

		tbl, ok := tables[schema+"."+name]
		if !ok {
			continue
		}

		tbl.ForeignKeys = append(tbl.ForeignKeys, &ForeignKey{
			ConstraintName:    constraintName,
			Columns:           columns,
			ReferencedSchema:  refSchema,
			ReferencedTable:   refTable,
			ReferencedColumns: refColumns,
		})
	}
	return rows.Err()
}
