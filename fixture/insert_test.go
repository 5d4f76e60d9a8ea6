package fixture

import (
	"testing"
	"time"

	"github.com/cleanslate/csl/internal/testutil"
	"github.com/cleanslate/csl/schema"
)

// bookTable mirrors the kind of table these tests insert into: a composite
// primary key plus one column of every common kind.
func bookTable() *schema.Table {
	cols := []struct {
		name     string
		typeName string
		pk       bool
	}{
		{"id", "integer", true},
		{"shelf_id", "integer", true},
		{"title", "text", false},
		{"pages", "integer", false},
		{"price", "double precision", false},
		{"in_print", "boolean", false},
		{"published", "date", false},
		{"updated_at", "timestamp without time zone", false},
	}

	tbl := &schema.Table{Schema: "public", Name: "book"}
	for i, c := range cols {
		tbl.Columns = append(tbl.Columns, &schema.Column{
			Name:         c.name,
			Position:     i + 1,
			TypeName:     c.typeName,
			Kind:         schema.KindOf(c.typeName),
			IsPrimaryKey: c.pk,
		})
		if c.pk {
			tbl.PrimaryKey = append(tbl.PrimaryKey, c.name)
		}
	}
	return tbl
}

func TestCompleteRowFillsOmittedColumns(t *testing.T) {
	row, err := completeRow(bookTable(), Row{"id": 1, "shelf_id": 2})
	testutil.NoError(t, err)

	testutil.MapLen(t, row, 8)
	testutil.Equal(t, row["id"], any(1))
	testutil.Equal(t, row["shelf_id"], any(2))
	testutil.Equal(t, row["title"], any(""))
	testutil.Equal(t, row["pages"], any(int64(0)))
	testutil.Equal(t, row["price"], any(float64(0)))
	testutil.Equal(t, row["in_print"], any(false))
	testutil.True(t, row["published"].(time.Time).Equal(Epoch), "published defaults to epoch")
	testutil.True(t, row["updated_at"].(time.Time).Equal(Epoch), "updated_at defaults to epoch")
}

func TestCompleteRowKeepsSuppliedValues(t *testing.T) {
	row, err := completeRow(bookTable(), Row{
		"id":       1,
		"shelf_id": 2,
		"title":    "The Go Programming Language",
		"pages":    380,
	})
	testutil.NoError(t, err)
	testutil.Equal(t, row["title"], any("The Go Programming Language"))
	testutil.Equal(t, row["pages"], any(380))
}

func TestCompleteRowExplicitNilPassesThrough(t *testing.T) {
	// An explicit nil is stored verbatim, never replaced by a default.
	row, err := completeRow(bookTable(), Row{"id": 1, "shelf_id": 2, "title": nil})
	testutil.NoError(t, err)
	v, ok := row["title"]
	testutil.True(t, ok, "title key present")
	testutil.True(t, v == nil, "title stays nil")
}

func TestCompleteRowUnknownColumn(t *testing.T) {
	_, err := completeRow(bookTable(), Row{"id": 1, "shelf_id": 2, "subtitle": "x"})
	testutil.ErrorIs(t, err, ErrUnknownColumn)
	testutil.ErrorContains(t, err, "subtitle")
	testutil.ErrorContains(t, err, "book")
}

func TestCompleteRowMissingPrimaryKeys(t *testing.T) {
	t.Run("one missing", func(t *testing.T) {
		_, err := completeRow(bookTable(), Row{"id": 1})
		testutil.ErrorIs(t, err, ErrMissingPrimaryKey)
		testutil.ErrorContains(t, err, "shelf_id")
	})

	t.Run("all missing, listed sorted", func(t *testing.T) {
		_, err := completeRow(bookTable(), Row{"title": "x"})
		testutil.ErrorIs(t, err, ErrMissingPrimaryKey)
		testutil.ErrorContains(t, err, "id, shelf_id")
	})
}

func TestCompleteRowInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		values Row
	}{
		{"string for integer", Row{"id": 1, "shelf_id": 2, "pages": "many"}},
		{"bool for text", Row{"id": 1, "shelf_id": 2, "title": true}},
		{"int for boolean", Row{"id": 1, "shelf_id": 2, "in_print": 1}},
		{"int for date", Row{"id": 1, "shelf_id": 2, "published": 20240101}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := completeRow(bookTable(), tt.values)
			testutil.ErrorIs(t, err, ErrInvalidColumnValue)
		})
	}
}

func TestCompleteRowAcceptedValues(t *testing.T) {
	tests := []struct {
		name   string
		values Row
	}{
		{"int64 for integer", Row{"id": int64(1), "shelf_id": 2}},
		{"int for float", Row{"id": 1, "shelf_id": 2, "price": 15}},
		{"time for date", Row{"id": 1, "shelf_id": 2, "published": time.Now()}},
		{"string for timestamp", Row{"id": 1, "shelf_id": 2, "updated_at": "2018-04-24 12:00:00"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := completeRow(bookTable(), tt.values)
			testutil.NoError(t, err)
		})
	}
}

func TestCompleteRowUnsupportedOmittedColumn(t *testing.T) {
	tbl := &schema.Table{
		Schema: "public",
		Name:   "place",
		Columns: []*schema.Column{
			{Name: "id", Position: 1, TypeName: "integer", Kind: schema.KindInteger, IsPrimaryKey: true},
			{Name: "loc", Position: 2, TypeName: "point", Kind: schema.KindUnknown},
		},
		PrimaryKey: []string{"id"},
	}

	// Omitted: no default can be synthesized.
	_, err := completeRow(tbl, Row{"id": 1})
	testutil.ErrorIs(t, err, ErrUnsupportedColumnType)

	// Supplied: passed through to the driver untouched.
	_, err = completeRow(tbl, Row{"id": 1, "loc": "(1,2)"})
	testutil.NoError(t, err)
}
