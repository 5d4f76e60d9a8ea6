// Package clone copies a database's table shapes into a fresh test
// database, without any rows, foreign keys, or column defaults.
package clone

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cleanslate/csl/fixture"
	"github.com/cleanslate/csl/schema"
)

// ErrTargetExists is returned when the target database already exists
// and Force was not set.
var ErrTargetExists = errors.New("target database already exists")

// Options configures a clone run.
type Options struct {
	// SourceURL points at the database whose schema is copied.
	SourceURL string
	// TargetURL points at the database to create. Its database name must
	// carry the __TEST__ safety marker.
	TargetURL string
	// Force drops the target database first if it already exists.
	Force bool

	Logger *slog.Logger

	// Progress, when set, receives a line per completed stage.
	Progress func(format string, args ...any)
}

// Result summarizes a completed clone.
type Result struct {
	TargetDB string
	Schemas  []string
	Tables   int
}

// Run clones the source database's schema into the target database.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	progress := opts.Progress
	if progress == nil {
		progress = func(string, ...any) {}
	}

	if opts.SourceURL == "" {
		return nil, fmt.Errorf("source: %w", fixture.ErrNoDatabaseURL)
	}
	if opts.TargetURL == "" {
		return nil, fmt.Errorf("target: %w", fixture.ErrNoDatabaseURL)
	}

	targetDB, adminURL, err := splitTarget(opts.TargetURL)
	if err != nil {
		return nil, err
	}
	// Refuse unsafe targets before touching either server. The marker must
	// be in the database name itself; a marker elsewhere in the URL (say,
	// the username) does not make the database it names disposable.
	if err := fixture.ValidateTarget(targetDB); err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}

	// Read the source schema.
	src, err := pgxpool.New(ctx, opts.SourceURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to source: %w", err)
	}
	defer src.Close()

	catalog, err := schema.Load(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("reading source schema: %w", err)
	}
	tables := catalog.TableList()
	progress("read %d tables from source", len(tables))

	// Create the target database via the server's maintenance database.
	if err := createTargetDB(ctx, adminURL, targetDB, opts.Force, opts.Logger); err != nil {
		return nil, err
	}
	progress("created database %s", targetDB)

	// Replay the shapes into the target.
	tgt, err := pgx.Connect(ctx, opts.TargetURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to target: %w", err)
	}
	defer tgt.Close(ctx)

	for _, s := range catalog.Schemas {
		if s == "public" {
			continue
		}
		ident := pgx.Identifier{s}.Sanitize()
		if _, err := tgt.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+ident); err != nil {
			return nil, fmt.Errorf("creating schema %s: %w", s, err)
		}
	}

	for _, t := range tables {
		if _, err := tgt.Exec(ctx, CreateTableDDL(t)); err != nil {
			return nil, fmt.Errorf("creating table %s: %w", t.QualifiedName(), err)
		}
		opts.Logger.Debug("created table", "table", t.QualifiedName())
	}
	progress("created %d tables", len(tables))

	return &Result{
		TargetDB: targetDB,
		Schemas:  catalog.Schemas,
		Tables:   len(tables),
	}, nil
}

// splitTarget extracts the database name from the target URL and builds
// an admin URL pointing at the server's postgres maintenance database.
func splitTarget(targetURL string) (dbName, adminURL string, err error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return "", "", fmt.Errorf("parsing target URL: %w", err)
	}
	dbName = strings.TrimPrefix(u.Path, "/")
	if dbName == "" {
		return "", "", fmt.Errorf("target URL has no database name")
	}
	u.Path = "/postgres"
	return dbName, u.String(), nil
}

func createTargetDB(ctx context.Context, adminURL, dbName string, force bool, logger *slog.Logger) error {
	conn, err := pgx.Connect(ctx, adminURL)
	if err != nil {
		return fmt.Errorf("connecting to target server: %w", err)
	}
	defer conn.Close(ctx)

	var exists bool
	err = conn.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", dbName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking target database: %w", err)
	}

	ident := pgx.Identifier{dbName}.Sanitize()
	if exists {
		if !force {
			return fmt.Errorf("database %q: %w", dbName, ErrTargetExists)
		}
		logger.Warn("dropping existing target database", "database", dbName)
		if _, err := conn.Exec(ctx, "DROP DATABASE "+ident+" WITH (FORCE)"); err != nil {
			return fmt.Errorf("dropping target database: %w", err)
		}
	}

	if _, err := conn.Exec(ctx, "CREATE DATABASE "+ident); err != nil {
		return fmt.Errorf("creating target database: %w", err)
	}
	return nil
}
