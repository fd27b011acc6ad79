package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Sriram-PR/crawl-engine/pkg/config"
)

// NewValidateCmd creates the validate command.
func NewValidateCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the config file and print the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return doValidate(g.configPath, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

// doValidate loads and validates the config, then prints the effective
// engine settings. Pool sizes are checked the way the engine checks them.
func doValidate(configPath string, stdout, stderr io.Writer) error {
	cfg, err := loadAndValidate(configPath, stderr)
	if err != nil {
		return err
	}
	engineCfg := cfg.Engine()
	if err := engineCfg.Validate(); err != nil {
		return err
	}

	fmt.Fprintln(stdout, "Configuration OK")
	fmt.Fprintf(stdout, "  depth:                %d\n", cfg.Depth)
	fmt.Fprintf(stdout, "  downloaders:          %d\n", engineCfg.Downloaders)
	fmt.Fprintf(stdout, "  extractors:           %d\n", engineCfg.Extractors)
	fmt.Fprintf(stdout, "  per-host limit:       %d\n", engineCfg.PerHost)
	fmt.Fprintf(stdout, "  max concurrent reqs:  %d\n", config.GetEffectiveMaxConcurrentRequests(*cfg))
	fmt.Fprintf(stdout, "  shutdown timeout:     %v\n", engineCfg.ShutdownTimeout)
	fmt.Fprintf(stdout, "  link selectors:       %v\n", config.GetEffectiveLinkSelectors(*cfg))
	fmt.Fprintf(stdout, "  respect robots.txt:   %t\n", cfg.RespectRobotsTxt)
	if cfg.CacheDir != "" {
		fmt.Fprintf(stdout, "  page cache:           %s (reuse: %t)\n", cfg.CacheDir, cfg.ReuseCache)
	} else {
		fmt.Fprintln(stdout, "  page cache:           disabled")
	}
	return nil
}
