package fixture

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cleanslate/csl/schema"
)

// AddRow inserts one row into table and commits immediately. Columns absent
// from values are filled with synthesized defaults; primary key columns
// must always be supplied. The returned Row is the complete set of column
// values actually stored. Rows added this way survive until the session
// ends; use a Tracker for rows scoped to a single test.
func (s *Session) AddRow(ctx context.Context, table string, values Row) (Row, error) {
	tbl := s.catalog.TableByName(table)
	if tbl == nil {
		return nil, fmt.Errorf("%w: %q is not a valid table name", ErrUnknownTable, table)
	}

	row, err := completeRow(tbl, values)
	if err != nil {
		return nil, err
	}

	cols := make([]string, 0, len(tbl.Columns))
	placeholders := make([]string, 0, len(tbl.Columns))
	args := make([]any, 0, len(tbl.Columns))
	for _, col := range tbl.Columns {
		cols = append(cols, pgx.Identifier{col.Name}.Sanitize())
		args = append(args, row[col.Name])
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		tableIdent(tbl), strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	if _, err := s.pool.DB().Exec(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("inserting into %s: %w", tbl.QualifiedName(), err)
	}

	s.logger.Debug("row inserted", "table", tbl.QualifiedName())
	return row, nil
}

// completeRow validates caller-supplied values against tbl and fills every
// omitted non-primary-key column with a synthesized default.
func completeRow(tbl *schema.Table, values Row) (Row, error) {
	row := make(Row, len(tbl.Columns))
	for name, v := range values {
		if tbl.ColumnByName(name) == nil {
			return nil, fmt.Errorf("%w: there is no column %q in table %q", ErrUnknownColumn, name, tbl.Name)
		}
		row[name] = v
	}

	var missing []string
	for _, col := range tbl.Columns {
		if _, ok := row[col.Name]; !ok && col.IsPrimaryKey {
			missing = append(missing, col.Name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("%w: table %q requires values for: %s",
			ErrMissingPrimaryKey, tbl.Name, strings.Join(missing, ", "))
	}

	for _, col := range tbl.Columns {
		if v, ok := row[col.Name]; ok {
			if err := checkValue(tbl, col, v); err != nil {
				return nil, err
			}
			continue
		}
		v, err := Synthesize(col)
		if err != nil {
			return nil, err
		}
		row[col.Name] = v
	}
	return row, nil
}

// checkValue verifies that v can be stored in col. Explicit nils pass
// through untouched; NOT NULL enforcement is left to the database.
func checkValue(tbl *schema.Table, col *schema.Column, v any) error {
	if v == nil {
		return nil
	}

	ok := true
	switch col.Kind {
	case schema.KindInteger:
		switch v.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		default:
			ok = false
		}
	case schema.KindFloat:
		switch v.(type) {
		case float32, float64, int, int32, int64:
		default:
			ok = false
		}
	case schema.KindText:
		_, ok = v.(string)
	case schema.KindBoolean:
		_, ok = v.(bool)
	case schema.KindDate, schema.KindTimestamp, schema.KindTime:
		switch v.(type) {
		case time.Time, string:
		default:
			ok = false
		}
	case schema.KindUUID:
		switch v.(type) {
		case uuid.UUID, [16]byte, string:
		default:
			ok = false
		}
	case schema.KindBytes:
		switch v.(type) {
		case []byte, string:
		default:
			ok = false
		}
	case schema.KindJSON, schema.KindUnknown:
		// Passed through to the driver as-is.
	}

	if !ok {
		return fmt.Errorf("%w: %v (%T) is not valid for column %q of table %q (type %s)",
			ErrInvalidColumnValue, v, v, col.Name, tbl.Name, col.TypeName)
	}
	return nil
}

// tableIdent returns the quoted, schema-qualified table identifier.
func tableIdent(tbl *schema.Table) string {
	return pgx.Identifier{tbl.Schema, tbl.Name}.Sanitize()
}
