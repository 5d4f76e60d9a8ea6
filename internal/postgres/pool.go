package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool wraps a pgx connection pool. Fixture sessions are short-lived and
// single-threaded, so the pool is kept small and there is no background
// health checking.
type Pool struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Config holds database connection parameters.
type Config struct {
	URL      string
	MaxConns int32
	MinConns int32
}

// New creates a new Pool and validates the connection with a ping.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Pool, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	var version string
	if err := pool.QueryRow(ctx, "SHOW server_version").Scan(&version); err != nil {
		pool.Close()
		return nil, fmt.Errorf("querying server version: %w", err)
	}
	logger.Debug("connected to PostgreSQL", "version", version)

	return &Pool{pool: pool, logger: logger}, nil
}

// DB returns the underlying pgxpool.Pool for executing queries.
func (p *Pool) DB() *pgxpool.Pool {
	return p.pool
}

// Close shuts down the pool.
func (p *Pool) Close() {
	p.pool.Close()
	p.logger.Debug("database connection pool closed")
}
