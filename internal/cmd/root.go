package cmd

import (
	"github.com/dendrascience/logfs/version"
	"github.com/spf13/cobra"
)

// NewRootCmd creates and returns the root cobra command for the logfs CLI.
func NewRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "logfs",
		Short: "logfs - an in-memory filesystem that records its own activity",
		Long: `logfs is an in-memory filesystem that journals every metadata operation.

Each mounted instance keeps a namespace of directories. Every registration,
mount, lookup, enumeration and creation is recorded in an activity journal,
logged, and counted in Prometheus metrics.

Use subcommands to perform different operations:
  - mount: Mount a logfs instance at a mountpoint
  - check: Verify the filesystem core against an in-process instance
  - journal: Print a saved activity journal`,
		Version:       version.GetFullVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML configuration file")

	groupUtilities := "utilities"
	groupFilesystem := "filesystem"

	rootCmd.AddGroup(&cobra.Group{
		ID:    groupFilesystem,
		Title: "Filesystem Operations",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    groupUtilities,
		Title: "Utility Commands",
	})

	mountCmd := NewMountCmd(&configPath)
	checkCmd := NewCheckCmd(&configPath)
	journalCmd := NewJournalCmd()

	mountCmd.GroupID = groupFilesystem
	checkCmd.GroupID = groupUtilities
	journalCmd.GroupID = groupUtilities

	rootCmd.AddCommand(mountCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(journalCmd)

	return rootCmd
}
