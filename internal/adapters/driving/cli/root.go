// Package cli implements the drivesync command line interface.
package cli

import (
	"github.com/spf13/cobra"
)

// version is set from main at build time via SetVersion.
var version = "dev"

// configPath is the --config flag value, shared by every command.
var configPath string

var rootCmd = &cobra.Command{
	Use:   "drivesync",
	Short: "Replicate a Google Drive folder into an S3-compatible bucket",
	Long: `Drivesync keeps a one-way replica of a Google Drive folder in an
S3-compatible bucket.

It listens for Drive push notifications, periodically reconciles the
full folder listing against its own records, and moves changed content
through a durable intent queue so nothing is lost across restarts.

Configuration comes from a TOML file (--config) overridden by
environment variables; run 'drivesync serve --help' for the daemon.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion overrides the reported version.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"path to a TOML config file (environment variables win)")
}
