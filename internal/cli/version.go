package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print csl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("csl %s (commit: %s, built: %s)\n", buildVersion, buildCommit, buildDate)
	},
}
