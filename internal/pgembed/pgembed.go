// Package pgembed manages an embedded PostgreSQL child process for
// local test database provisioning.
package pgembed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/jackc/pgx/v5"
)

// Config holds settings for the embedded Postgres server.
type Config struct {
	Port        uint32 // default 15433
	DataDir     string // persistent data directory (default ~/.csl/data)
	RuntimeDir  string // ephemeral runtime directory (default ~/.csl/run)
	BinCacheDir string // binary cache directory (default ~/.csl/pg)
	Logger      *slog.Logger
}

// Server manages the lifecycle of an embedded PostgreSQL child process.
type Server struct {
	cfg     Config
	db      *embeddedpostgres.EmbeddedPostgres
	connURL string
	running bool
	logger  *slog.Logger
	pidFile string
}

const (
	dbUser = "csl"
	dbPass = "csl"

	// testDB carries the safety marker so fixture sessions accept the
	// provisioned database as a target. Created with a quoted identifier
	// because unquoted names fold to lowercase.
	testDB = "csl__TEST__"
)

// New creates a new Server. Does not start anything.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		logger: cfg.Logger,
	}
}

// Start downloads PG binaries (on first run), initializes the data directory,
// starts the PostgreSQL child process, creates the test database, and returns
// a connection URL pointing at it.
func (s *Server) Start(ctx context.Context) (string, error) {
	if s.running {
		return s.connURL, nil
	}

	home, err := cslHome()
	if err != nil {
		return "", fmt.Errorf("resolving csl home: %w", err)
	}

	dataDir := s.cfg.DataDir
	if dataDir == "" {
		dataDir = filepath.Join(home, "data")
	}
	runtimeDir := s.cfg.RuntimeDir
	if runtimeDir == "" {
		runtimeDir = filepath.Join(home, "run")
	}
	cacheDir := s.cfg.BinCacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(home, "pg")
	}

	port := s.cfg.Port
	if port == 0 {
		port = 15433
	}

	for _, dir := range []string{dataDir, runtimeDir, cacheDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	// Check for orphaned process from a previous run.
	s.pidFile = filepath.Join(home, "pg.pid")
	cleanupOrphan(s.pidFile, s.logger)

	if entries, err := os.ReadDir(cacheDir); err == nil && len(entries) == 0 {
		s.logger.Info("downloading PostgreSQL binaries (first run only)...")
	}

	s.db = embeddedpostgres.NewDatabase(embeddedpostgres.DefaultConfig().
		Port(port).
		DataPath(dataDir).
		RuntimePath(runtimeDir).
		CachePath(cacheDir).
		Version(embeddedpostgres.V16).
		Username(dbUser).
		Password(dbPass).
		Logger(newLogWriter(s.logger)).
		StartTimeout(60 * time.Second))

	if err := s.db.Start(); err != nil {
		return "", fmt.Errorf("starting embedded postgres: %w", err)
	}

	// Record the postmaster PID so a crashed run can be reaped next time.
	pgPidFile := filepath.Join(dataDir, "postmaster.pid")
	if pid, err := readPostmasterPID(pgPidFile); err == nil && pid > 0 {
		_ = writePID(s.pidFile, pid)
	}

	adminURL := fmt.Sprintf("postgresql://%s:%s@127.0.0.1:%d/postgres?sslmode=disable",
		dbUser, dbPass, port)
	if err := ensureTestDB(ctx, adminURL); err != nil {
		_ = s.db.Stop()
		return "", err
	}

	s.connURL = fmt.Sprintf("postgresql://%s:%s@127.0.0.1:%d/%s?sslmode=disable",
		dbUser, dbPass, port, testDB)
	s.running = true

	s.logger.Info("embedded postgres started",
		"port", port,
		"data", dataDir,
		"url", s.connURL,
	)
	return s.connURL, nil
}

// ensureTestDB creates the marker-named test database if it does not exist.
func ensureTestDB(ctx context.Context, adminURL string) error {
	conn, err := pgx.Connect(ctx, adminURL)
	if err != nil {
		return fmt.Errorf("connecting to embedded postgres: %w", err)
	}
	defer conn.Close(ctx)

	var exists bool
	err = conn.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", testDB).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking for test database: %w", err)
	}
	if exists {
		return nil
	}
	ident := pgx.Identifier{testDB}.Sanitize()
	if _, err := conn.Exec(ctx, "CREATE DATABASE "+ident); err != nil {
		return fmt.Errorf("creating test database: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the embedded PostgreSQL child process.
func (s *Server) Stop() error {
	if !s.running || s.db == nil {
		return nil
	}

	s.logger.Info("stopping embedded postgres")
	err := s.db.Stop()
	s.running = false

	_ = removePID(s.pidFile)

	if err != nil {
		return fmt.Errorf("stopping embedded postgres: %w", err)
	}
	s.logger.Info("embedded postgres stopped")
	return nil
}

// ConnURL returns the connection URL. Only valid after Start() succeeds.
func (s *Server) ConnURL() string {
	return s.connURL
}

// IsRunning returns true if the embedded Postgres is currently running.
func (s *Server) IsRunning() bool {
	return s.running
}

// cslHome returns ~/.csl, creating it if necessary.
func cslHome() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting user home directory: %w", err)
	}
	cslDir := filepath.Join(home, ".csl")
	if err := os.MkdirAll(cslDir, 0o755); err != nil {
		return "", fmt.Errorf("creating ~/.csl: %w", err)
	}
	return cslDir, nil
}

// --- PID file management ---

func writePID(path string, pid int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o644)
}

// readPID reads a PID from a file. Returns 0 if the file doesn't exist.
func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parsing pid file: %w", err)
	}
	return pid, nil
}

// removePID removes a PID file. No error if it doesn't exist.
func removePID(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// readPostmasterPID reads the PID from Postgres's postmaster.pid file.
// The PID is on the first line.
func readPostmasterPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	lines := strings.SplitN(string(data), "\n", 2)
	if len(lines) == 0 {
		return 0, fmt.Errorf("empty postmaster.pid")
	}
	return strconv.Atoi(strings.TrimSpace(lines[0]))
}

// cleanupOrphan checks for a stale PID file and kills the orphaned process.
func cleanupOrphan(pidPath string, logger *slog.Logger) {
	pid, err := readPID(pidPath)
	if err != nil || pid == 0 {
		return
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		_ = removePID(pidPath)
		return
	}

	// Signal 0 tests whether the process exists.
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		logger.Info("removed stale PID file", "pid", pid)
		_ = removePID(pidPath)
		return
	}

	logger.Warn("found orphaned postgres process, terminating", "pid", pid)
	_ = proc.Signal(syscall.SIGTERM)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		time.Sleep(200 * time.Millisecond)
		if err := proc.Signal(syscall.Signal(0)); err != nil {
			_ = removePID(pidPath)
			logger.Info("orphaned postgres process terminated", "pid", pid)
			return
		}
	}

	logger.Warn("force-killing orphaned postgres", "pid", pid)
	_ = proc.Signal(syscall.SIGKILL)
	_ = removePID(pidPath)
}

// --- Log writer adapter ---

// logWriter adapts *slog.Logger to io.Writer for embedded-postgres output.
type logWriter struct {
	logger *slog.Logger
}

func newLogWriter(logger *slog.Logger) *logWriter {
	return &logWriter{logger: logger}
}

func (w *logWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n\r")
	if msg != "" {
		w.logger.Debug("postgres", "output", msg)
	}
	return len(p), nil
}
