package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	logLevel   string
	logFile    string
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	g := &globalOptions{}
	cmd := &cobra.Command{
		Use:   "crawler",
		Short: "Concurrent depth-bounded web crawler",
		Long: `crawler explores the link graph reachable from a seed URL up to a given depth.

Downloads and link extraction run on separate fixed-size worker pools, and
the number of simultaneous downloads per host is bounded.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Path to YAML config file (optional)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "loglevel", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&g.logFile, "log-file", "", "Also write logs to this rotating file")

	cmd.AddCommand(NewCrawlCmd(g))
	cmd.AddCommand(NewBatchCmd(g))
	cmd.AddCommand(NewWatchCmd(g))
	cmd.AddCommand(NewValidateCmd(g))
	cmd.AddCommand(NewMCPServerCmd(g))
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
