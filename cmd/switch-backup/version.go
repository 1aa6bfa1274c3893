package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tastythames/switch-backup/internal/version"
)

var cmdVersion = &cobra.Command{
	Use:   "version",
	Short: "Print switch-backup version along with dependency information.",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf(
			"commit: %s\nbranch: %s\ngit summary: %s\nbuildDate: %s\nversion: %s\nGo version: %s\nx/crypto version: %s\ncron version: %s\n",
			version.GitCommit, version.GitBranch, version.GitSummary, version.BuildDate, version.AppVersion, version.GoVersion, version.SSHLibVersion, version.CronVersion)
	},
}

func init() {
	rootCmd.AddCommand(cmdVersion)
}
