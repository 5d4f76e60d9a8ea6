package fixture

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/cleanslate/csl/internal/postgres"
	"github.com/cleanslate/csl/schema"
)

// Config holds the settings for a test database session.
type Config struct {
	// URL is the connection string of the test database. It must contain
	// the SafetyMarker substring.
	URL string

	// MaxConns bounds the connection pool. Sessions are single-threaded,
	// so the default of 2 is plenty.
	MaxConns int32
}

// Session is a connection to a test database with a loaded schema catalog.
// Creating a session empties every table; closing it empties them again.
// A session is not safe for concurrent use: operations are blocking,
// synchronous units of work against the database.
type Session struct {
	url     string
	pool    *postgres.Pool
	catalog *schema.Catalog
	logger  *slog.Logger
}

// New validates the target URL, connects, introspects the schema, and
// wipes every table so tests start from a clean slate. The URL check runs
// before any connection attempt.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Session, error) {
	if err := ValidateTarget(cfg.URL); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	maxConns := cfg.MaxConns
	if maxConns == 0 {
		maxConns = 2
	}

	pool, err := postgres.New(ctx, postgres.Config{
		URL:      cfg.URL,
		MaxConns: maxConns,
		MinConns: 1,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to test database: %w", err)
	}

	catalog, err := schema.Load(ctx, pool.DB())
	if err != nil {
		pool.Close()
		return nil, err
	}

	s := &Session{
		url:     cfg.URL,
		pool:    pool,
		catalog: catalog,
		logger:  logger,
	}

	if err := s.CleanAll(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("cleaning at session start: %w", err)
	}

	logger.Info("test database session ready", "tables", len(catalog.Tables))
	return s, nil
}

// URL returns the connection string of the test database.
func (s *Session) URL() string {
	return s.url
}

// Catalog returns the schema catalog loaded at session start.
func (s *Session) Catalog() *schema.Catalog {
	return s.catalog
}

// Close empties every table one last time and closes the connection. The
// connection is closed even if the final clean fails; the clean error is
// returned afterwards.
func (s *Session) Close(ctx context.Context) error {
	err := s.CleanAll(ctx)
	s.pool.Close()
	if err != nil {
		return fmt.Errorf("cleaning at session end: %w", err)
	}
	s.logger.Info("test database session closed")
	return nil
}

// FetchAll returns every current row of a table. The order of the returned
// rows is unspecified and must not be relied on.
func (s *Session) FetchAll(ctx context.Context, table string) ([]Row, error) {
	tbl := s.catalog.TableByName(table)
	if tbl == nil {
		return nil, fmt.Errorf("%w: %q is not a valid table name", ErrUnknownTable, table)
	}

	cols := make([]string, len(tbl.Columns))
	for i, col := range tbl.Columns {
		cols[i] = pgx.Identifier{col.Name}.Sanitize()
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), tableIdent(tbl))
	rows, err := s.pool.DB().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("fetching rows from %s: %w", tbl.QualifiedName(), err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("reading row from %s: %w", tbl.QualifiedName(), err)
		}
		row := make(Row, len(tbl.Columns))
		for i, col := range tbl.Columns {
			row[col.Name] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Clean deletes every row of one table and commits. Other tables are left
// untouched.
func (s *Session) Clean(ctx context.Context, table string) error {
	tbl := s.catalog.TableByName(table)
	if tbl == nil {
		return fmt.Errorf("%w: %q is not a valid table name", ErrUnknownTable, table)
	}
	if _, err := s.pool.DB().Exec(ctx, "DELETE FROM "+tableIdent(tbl)); err != nil {
		return fmt.Errorf("cleaning %s: %w", tbl.QualifiedName(), err)
	}
	s.logger.Debug("table cleaned", "table", tbl.QualifiedName())
	return nil
}

// CleanAll deletes every row from every table in the catalog inside a
// single transaction, so a failure partway leaves no partial state.
// Referencing tables are deleted before the tables they reference so
// foreign key constraints cannot fail mid-clean.
func (s *Session) CleanAll(ctx context.Context) error {
	tx, err := s.pool.DB().Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning clean transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, tbl := range deleteOrder(s.catalog) {
		if _, err := tx.Exec(ctx, "DELETE FROM "+tableIdent(tbl)); err != nil {
			return fmt.Errorf("cleaning %s: %w", tbl.QualifiedName(), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing clean: %w", err)
	}
	s.logger.Debug("all tables cleaned", "tables", len(s.catalog.Tables))
	return nil
}

// primaryKey returns the primary key column names of a table. Tables
// without a primary key cannot be tracked, since their rows have no
// identity to delete by.
func (s *Session) primaryKey(table string) ([]string, error) {
	tbl := s.catalog.TableByName(table)
	if tbl == nil {
		return nil, fmt.Errorf("%w: %q is not a valid table name", ErrUnknownTable, table)
	}
	if !tbl.HasPrimaryKey() {
		return nil, fmt.Errorf("%w: table %q has no primary key", ErrMissingPrimaryKey, table)
	}
	return tbl.PrimaryKey, nil
}

// deleteRow deletes one row identified by its primary key values.
// Deleting an already-absent row affects zero rows and is not an error.
func (s *Session) deleteRow(ctx context.Context, table string, keys Row) error {
	tbl := s.catalog.TableByName(table)
	if tbl == nil {
		return fmt.Errorf("%w: %q is not a valid table name", ErrUnknownTable, table)
	}

	conds := make([]string, 0, len(tbl.PrimaryKey))
	args := make([]any, 0, len(tbl.PrimaryKey))
	for _, name := range tbl.PrimaryKey {
		args = append(args, keys[name])
		conds = append(conds, fmt.Sprintf("%s = $%d", pgx.Identifier{name}.Sanitize(), len(args)))
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s", tableIdent(tbl), strings.Join(conds, " AND "))
	if _, err := s.pool.DB().Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("deleting tracked row from %s: %w", tbl.QualifiedName(), err)
	}
	return nil
}

// deleteOrder returns the catalog's tables ordered so that any table comes
// before the tables it references. Cycles and self-references fall back to
// name order at the end.
func deleteOrder(c *schema.Catalog) []*schema.Table {
	tables := c.TableList()

	byName := make(map[string]*schema.Table, len(tables))
	indegree := make(map[string]int, len(tables))
	refs := make(map[string][]string, len(tables))
	for _, t := range tables {
		byName[t.QualifiedName()] = t
		indegree[t.QualifiedName()] = 0
	}
	for _, t := range tables {
		name := t.QualifiedName()
		for _, fk := range t.ForeignKeys {
			ref := fk.ReferencedSchema + "." + fk.ReferencedTable
			if ref == name {
				continue
			}
			if _, ok := byName[ref]; !ok {
				continue
			}
			refs[name] = append(refs[name], ref)
			indegree[ref]++
		}
	}

	// Kahn's ordering; TableList is sorted, so ties resolve by name.
	var queue []string
	for _, t := range tables {
		if indegree[t.QualifiedName()] == 0 {
			queue = append(queue, t.QualifiedName())
		}
	}

	order := make([]*schema.Table, 0, len(tables))
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		order = append(order, byName[name])
		for _, ref := range refs[name] {
			indegree[ref]--
			if indegree[ref] == 0 {
				queue = append(queue, ref)
			}
		}
	}

	if len(order) < len(tables) {
		seen := make(map[string]bool, len(order))
		for _, t := range order {
			seen[t.QualifiedName()] = true
		}
		for _, t := range tables {
			if !seen[t.QualifiedName()] {
				order = append(order, t)
			}
		}
	}
	return order
}
