//go:build integration

package testutil

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cleanslate/csl/internal/pgembed"
)

// PGContainer holds a connection pool to a temporary test database.
// The database name carries the __TEST__ safety marker so fixture
// sessions accept it as a target.
type PGContainer struct {
	Pool       *pgxpool.Pool
	ConnString string
	baseURL    string
	dbName     string
	embedded   *pgembed.Server
}

// Cleanup closes the pool, drops the temporary database, and stops the
// embedded server if one was started.
func (pg *PGContainer) Cleanup() {
	pg.Pool.Close()
	cp, err := pgxpool.New(context.Background(), pg.baseURL)
	if err == nil {
		cp.Exec(context.Background(), `DROP DATABASE IF EXISTS "`+pg.dbName+`" WITH (FORCE)`)
		cp.Close()
	}
	if pg.embedded != nil {
		_ = pg.embedded.Stop()
	}
}

// StartPostgresForTestMain provides a pool connected to a throwaway test
// database. It connects to TEST_DATABASE_URL when set; otherwise it starts
// an embedded PostgreSQL server. Panics on failure since TestMain has no
// *testing.T.
func StartPostgresForTestMain(ctx context.Context) (*PGContainer, func()) {
	baseURL := os.Getenv("TEST_DATABASE_URL")

	var embedded *pgembed.Server
	if baseURL == "" {
		embedded = pgembed.New(pgembed.Config{
			Port:    15439,
			DataDir: os.TempDir() + "/csl-pgembed-test",
			Logger:  DiscardLogger(),
		})
		u, err := embedded.Start(ctx)
		if err != nil {
			panic(fmt.Sprintf("starting embedded postgres: %v", err))
		}
		baseURL = u
	}

	// Quoted so the __TEST__ safety marker keeps its case.
	dbName := fmt.Sprintf("csl__TEST__%d", time.Now().UnixNano())

	adminPool, err := pgxpool.New(ctx, baseURL)
	if err != nil {
		panic(fmt.Sprintf("connecting to test database server: %v", err))
	}
	if _, err := adminPool.Exec(ctx, `CREATE DATABASE "`+dbName+`"`); err != nil {
		adminPool.Close()
		panic(fmt.Sprintf("creating temp database %s: %v", dbName, err))
	}
	adminPool.Close()

	tempURL, err := replaceDBInURL(baseURL, dbName)
	if err != nil {
		panic(fmt.Sprintf("building temp database URL: %v", err))
	}

	pool, err := pgxpool.New(ctx, tempURL)
	if err != nil {
		panic(fmt.Sprintf("connecting to temp database: %v", err))
	}
	if err := pool.Ping(ctx); err != nil {
		panic(fmt.Sprintf("pinging temp database: %v", err))
	}

	pg := &PGContainer{
		Pool:       pool,
		ConnString: tempURL,
		baseURL:    baseURL,
		dbName:     dbName,
		embedded:   embedded,
	}
	return pg, pg.Cleanup
}

func replaceDBInURL(connStr, newDB string) (string, error) {
	u, err := url.Parse(connStr)
	if err != nil {
		return "", err
	}
	u.Path = "/" + newDB
	return u.String(), nil
}
