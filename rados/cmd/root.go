// Package cmd provides the command-line interface of the radOS simulator.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rados",
	Short: "radOS simulates processes competing for paged memory.",
	Long: `radOS simulates a small operating system: a process table, a ` +
		`paged memory allocator, a resource wait graph with deadlock ` +
		`detection, and a round-robin scheduler. Settings are read from ` +
		`RADOS_* environment variables and .env files; flags override them.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringSlice("env", nil,
		"Files to load settings from (default .env if present)")
	flags.Int("memory", 0, "Memory size in units")
	flags.Int("page-size", 0, "Units per page")
	flags.Duration("quantum", 0, "Time each process runs per cycle")
	flags.Bool("log", false, "Log every kernel event to stderr")
	flags.Bool("record", false, "Record kernel events into SQLite")
	flags.String("record-path", "",
		"Recording file without extension (default a unique name)")
}
