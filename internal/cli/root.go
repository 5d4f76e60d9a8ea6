// Package cli implements the csl command-line interface.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

// SetVersion is called from main to inject build-time version info.
func SetVersion(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date
}

var rootCmd = &cobra.Command{
	Use:   "csl",
	Short: "cleanslate — disposable PostgreSQL test databases",
	Long: `cleanslate (csl) manages throwaway PostgreSQL test databases for
fixture-driven tests. Database names must carry the __TEST__ safety
marker; csl refuses to touch anything else.

Clone a schema (tables only, no data, no foreign keys):
  csl clone --source-url postgresql://localhost/myapp \
            --target-url postgresql://localhost/myapp__TEST__

Or run a self-contained embedded server:
  csl provision`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(cloneCmd)
	rootCmd.AddCommand(provisionCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
