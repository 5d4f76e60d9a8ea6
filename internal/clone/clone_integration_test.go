//go:build integration

package clone_test

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cleanslate/csl/fixture"
	"github.com/cleanslate/csl/internal/clone"
	"github.com/cleanslate/csl/internal/testutil"
)

var sharedPG *testutil.PGContainer

func TestMain(m *testing.M) {
	ctx := context.Background()
	pg, cleanup := testutil.StartPostgresForTestMain(ctx)
	sharedPG = pg
	code := m.Run()
	cleanup()
	os.Exit(code)
}

// seedSource builds a source schema with data, defaults, foreign keys, and
// a view. None of those should survive the clone except the table shapes.
func seedSource(t *testing.T, ctx context.Context) {
	t.Helper()

	sqls := []string{
		"DROP SCHEMA public CASCADE",
		"CREATE SCHEMA public",
		"DROP SCHEMA IF EXISTS shop CASCADE",
		"CREATE SCHEMA shop",
		`CREATE TABLE genre (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL DEFAULT 'unknown'
		)`,
		`CREATE TABLE book (
			id INTEGER PRIMARY KEY,
			genre_id INTEGER REFERENCES genre(id),
			title TEXT NOT NULL
		)`,
		`CREATE TABLE shop.sale (
			book_id INTEGER NOT NULL,
			sold_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (book_id, sold_at)
		)`,
		"CREATE VIEW book_titles AS SELECT title FROM book",
		"INSERT INTO genre (id, name) VALUES (1, 'novel')",
		"INSERT INTO book (id, genre_id, title) VALUES (1, 1, 'Dune')",
	}
	for _, sql := range sqls {
		if _, err := sharedPG.Pool.Exec(ctx, sql); err != nil {
			t.Fatalf("seeding source schema: %v", err)
		}
	}
}

func targetURL(t *testing.T, dbName string) string {
	t.Helper()
	u, err := url.Parse(sharedPG.ConnString)
	testutil.NoError(t, err)
	u.Path = "/" + dbName
	t.Cleanup(func() {
		ctx := context.Background()
		conn, err := pgx.Connect(ctx, sharedPG.ConnString)
		if err != nil {
			return
		}
		defer conn.Close(ctx)
		ident := pgx.Identifier{dbName}.Sanitize()
		conn.Exec(ctx, "DROP DATABASE IF EXISTS "+ident+" WITH (FORCE)")
	})
	return u.String()
}

func TestRunClonesShapesOnly(t *testing.T) {
	ctx := context.Background()
	seedSource(t, ctx)

	dbName := fmt.Sprintf("clone__TEST__%d", time.Now().UnixNano())
	tgtURL := targetURL(t, dbName)

	res, err := clone.Run(ctx, clone.Options{
		SourceURL: sharedPG.ConnString,
		TargetURL: tgtURL,
		Logger:    testutil.DiscardLogger(),
	})
	testutil.NoError(t, err)
	testutil.Equal(t, res.TargetDB, dbName)
	testutil.Equal(t, res.Tables, 3)

	conn, err := pgx.Connect(ctx, tgtURL)
	testutil.NoError(t, err)
	defer conn.Close(ctx)

	// Tables exist and are empty.
	for _, table := range []string{"genre", "book", "shop.sale"} {
		var count int
		err := conn.QueryRow(ctx, "SELECT count(*) FROM "+table).Scan(&count)
		testutil.NoError(t, err)
		testutil.Equal(t, count, 0)
	}

	// The view did not come along.
	var views int
	err = conn.QueryRow(ctx,
		"SELECT count(*) FROM pg_views WHERE schemaname = 'public'").Scan(&views)
	testutil.NoError(t, err)
	testutil.Equal(t, views, 0)

	// No foreign keys in the copy: a book with a dangling genre_id inserts fine.
	_, err = conn.Exec(ctx, "INSERT INTO book (id, genre_id, title) VALUES (1, 999, 'x')")
	testutil.NoError(t, err)

	// No defaults in the copy: omitting a defaulted NOT NULL column fails.
	_, err = conn.Exec(ctx, "INSERT INTO genre (id) VALUES (1)")
	testutil.ErrorContains(t, err, "null value")
}

func TestRunRefusesExistingTarget(t *testing.T) {
	ctx := context.Background()
	seedSource(t, ctx)

	dbName := fmt.Sprintf("clone__TEST__%d", time.Now().UnixNano())
	tgtURL := targetURL(t, dbName)

	opts := clone.Options{
		SourceURL: sharedPG.ConnString,
		TargetURL: tgtURL,
		Logger:    testutil.DiscardLogger(),
	}

	_, err := clone.Run(ctx, opts)
	testutil.NoError(t, err)

	_, err = clone.Run(ctx, opts)
	testutil.ErrorIs(t, err, clone.ErrTargetExists)

	opts.Force = true
	_, err = clone.Run(ctx, opts)
	testutil.NoError(t, err)
}

func TestRunRefusesUnsafeTarget(t *testing.T) {
	ctx := context.Background()

	_, err := clone.Run(ctx, clone.Options{
		SourceURL: sharedPG.ConnString,
		TargetURL: "postgresql://u:p@localhost:5432/production",
		Logger:    testutil.DiscardLogger(),
	})
	testutil.ErrorIs(t, err, fixture.ErrUnsafeTarget)
}

func TestRunRequiresSourceURL(t *testing.T) {
	ctx := context.Background()

	_, err := clone.Run(ctx, clone.Options{
		TargetURL: "postgresql://u:p@localhost:5432/x__TEST__",
		Logger:    testutil.DiscardLogger(),
	})
	testutil.ErrorIs(t, err, fixture.ErrNoDatabaseURL)
}
