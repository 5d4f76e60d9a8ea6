package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cleanslate/csl/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print resolved configuration",
	Long: `Load and print the resolved csl configuration as TOML.
Shows the result of merging defaults, csl.toml, environment variables, and flags.`,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().String("config", "", "Path to csl.toml config file")
}

func runConfig(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath, nil)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	out, err := cfg.ToTOML()
	if err != nil {
		return fmt.Errorf("serializing config: %w", err)
	}

	fmt.Print(out)
	return nil
}
