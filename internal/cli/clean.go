package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cleanslate/csl/fixture"
	"github.com/cleanslate/csl/internal/config"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete every row from every table in the test database",
	Long: `Empty all tables in the configured test database. Tables are deleted
in dependency order so foreign keys never get in the way. The database
name must contain the __TEST__ marker; anything else is refused.`,
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().String("database-url", "", "Test database connection URL")
	cleanCmd.Flags().String("config", "", "Path to csl.toml config file")
}

func runClean(cmd *cobra.Command, args []string) error {
	flags := make(map[string]string)
	if v, _ := cmd.Flags().GetString("database-url"); v != "" {
		flags["database-url"] = v
	}

	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath, flags)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg.Logging.Level, cfg.Logging.Format)

	ctx := cmd.Context()

	// Session startup already wipes every table, so Close is all that
	// remains to do.
	s, err := fixture.New(ctx, fixture.Config{
		URL:      cfg.Database.URL,
		MaxConns: int32(cfg.Database.MaxConns),
	}, logger)
	if err != nil {
		return err
	}
	if err := s.Close(ctx); err != nil {
		return err
	}

	fmt.Printf("cleaned %d tables\n", len(s.Catalog().Tables))
	return nil
}
