package fixture

import "context"

// TrackedRow records the identity of one inserted row so teardown can
// delete it again.
type TrackedRow struct {
	Table string
	Keys  Row // primary key column values
}

// rowStore is the subset of Session behavior a Tracker depends on.
type rowStore interface {
	AddRow(ctx context.Context, table string, values Row) (Row, error)
	deleteRow(ctx context.Context, table string, keys Row) error
	primaryKey(table string) ([]string, error)
}

// Tracker wraps the session's row inserter and records every row it
// inserts, so the owning scope can delete them all when it ends. A session
// may hand out any number of independent trackers; each owns only the rows
// inserted through it.
type Tracker struct {
	store rowStore
	rows  []TrackedRow
}

// Tracker returns a new, empty tracker bound to the session.
func (s *Session) Tracker() *Tracker {
	return &Tracker{store: s}
}

// Insert behaves exactly like Session.AddRow and additionally records the
// inserted row's primary key values for teardown. Tables without a primary
// key are rejected before anything is inserted.
func (tr *Tracker) Insert(ctx context.Context, table string, values Row) (Row, error) {
	pk, err := tr.store.primaryKey(table)
	if err != nil {
		return nil, err
	}

	row, err := tr.store.AddRow(ctx, table, values)
	if err != nil {
		return nil, err
	}

	keys := make(Row, len(pk))
	for _, name := range pk {
		keys[name] = row[name]
	}
	tr.rows = append(tr.rows, TrackedRow{Table: table, Keys: keys})
	return row, nil
}

// Len reports how many rows the tracker currently holds.
func (tr *Tracker) Len() int {
	return len(tr.rows)
}

// Teardown deletes every tracked row in reverse insertion order: rows
// inserted later may reference earlier ones through foreign keys, so the
// last row in is the first row out. Teardown is idempotent; a second call
// is a no-op, and rows that are already gone do not fail it. A delete
// failure does not stop the remaining deletes; the first error is
// returned.
func (tr *Tracker) Teardown(ctx context.Context) error {
	rows := tr.rows
	tr.rows = nil

	var firstErr error
	for i := len(rows) - 1; i >= 0; i-- {
		if err := tr.store.deleteRow(ctx, rows[i].Table, rows[i].Keys); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// TB is the subset of *testing.T the fixture needs to bind a teardown to a
// test's lifetime.
type TB interface {
	Helper()
	Cleanup(func())
	Errorf(format string, args ...any)
}

// TmpRow returns a function-scoped insert bound to tb: every row inserted
// through it is tracked and deleted again, in reverse insertion order,
// when the test finishes. Rows added with Session.AddRow are not affected.
func (s *Session) TmpRow(tb TB) func(ctx context.Context, table string, values Row) (Row, error) {
	return bindTracker(tb, s.Tracker())
}

func bindTracker(tb TB, tr *Tracker) func(ctx context.Context, table string, values Row) (Row, error) {
	tb.Helper()
	tb.Cleanup(func() {
		if err := tr.Teardown(context.Background()); err != nil {
			tb.Errorf("tearing down tracked rows: %v", err)
		}
	})
	return tr.Insert
}
