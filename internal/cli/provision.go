package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/cleanslate/csl/internal/config"
	"github.com/cleanslate/csl/internal/pgembed"
)

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Run an embedded PostgreSQL with a ready-made test database",
	Long: `Start an embedded PostgreSQL server and create a test database whose
name carries the __TEST__ marker. The server runs until interrupted;
point your tests at the printed connection URL.`,
	RunE: runProvision,
}

func init() {
	provisionCmd.Flags().Int("port", 0, "Port for the embedded server (default 15433)")
	provisionCmd.Flags().String("data-dir", "", "Data directory (default ~/.csl/data)")
	provisionCmd.Flags().String("config", "", "Path to csl.toml config file")
}

func runProvision(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath, nil)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if v, _ := cmd.Flags().GetInt("port"); v != 0 {
		cfg.Embedded.Port = v
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.Embedded.DataDir = v
	}

	logger := newLogger(cfg.Logging.Level, cfg.Logging.Format)

	ensureDefaultConfig(configPath, logger)

	srv := pgembed.New(pgembed.Config{
		Port:    uint32(cfg.Embedded.Port),
		DataDir: cfg.Embedded.DataDir,
		Logger:  logger,
	})
	connURL, err := srv.Start(cmd.Context())
	if err != nil {
		return fmt.Errorf("starting embedded postgres: %w", err)
	}

	bold := color.New(color.Bold).SprintFunc()
	fmt.Printf("test database ready at %s\n", bold(connURL))
	fmt.Println("press Ctrl-C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)

	return srv.Stop()
}

// ensureDefaultConfig writes a commented csl.toml on first run, so users
// have a template to edit. Skipped when an explicit config path was given
// or a csl.toml already exists.
func ensureDefaultConfig(configPath string, logger *slog.Logger) {
	if configPath != "" {
		return
	}
	if _, err := os.Stat("csl.toml"); !os.IsNotExist(err) {
		return
	}
	if err := config.GenerateDefault("csl.toml"); err != nil {
		logger.Warn("could not generate default csl.toml", "error", err)
		return
	}
	logger.Info("generated default csl.toml")
}
