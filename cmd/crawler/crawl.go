package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Sriram-PR/crawl-engine/pkg/config"
	"github.com/Sriram-PR/crawl-engine/pkg/crawler"
	"github.com/Sriram-PR/crawl-engine/pkg/models"
	"github.com/Sriram-PR/crawl-engine/pkg/orchestrate"
	"github.com/Sriram-PR/crawl-engine/pkg/utils"
)

// crawlOptions are the flags of the crawl and batch commands that override the config file.
type crawlOptions struct {
	cacheDir      string
	reuseCache    bool
	respectRobots bool
	fetchTimeout  time.Duration
	cacheIndex    string
}

func (o *crawlOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.cacheDir, "cache-dir", "", "Directory for the persistent page cache (disabled when empty)")
	cmd.Flags().BoolVar(&o.reuseCache, "reuse-cache", false, "Keep pages cached by a previous run")
	cmd.Flags().BoolVar(&o.respectRobots, "respect-robots", false, "Skip URLs disallowed by robots.txt")
	cmd.Flags().DurationVar(&o.fetchTimeout, "fetch-timeout", 0, "Timeout for a single download (0 = none)")
	cmd.Flags().StringVar(&o.cacheIndex, "cache-index", "", "Write the list of cached URLs to this file after the crawl")
}

// apply copies explicitly set flags onto cfg.
func (o *crawlOptions) apply(cmd *cobra.Command, cfg *config.AppConfig) {
	if cmd.Flags().Changed("cache-dir") {
		cfg.CacheDir = o.cacheDir
	}
	if cmd.Flags().Changed("reuse-cache") {
		cfg.ReuseCache = o.reuseCache
	}
	if cmd.Flags().Changed("respect-robots") {
		cfg.RespectRobotsTxt = o.respectRobots
	}
	if cmd.Flags().Changed("fetch-timeout") {
		cfg.PerPageTimeout = o.fetchTimeout
	}
}

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd(g *globalOptions) *cobra.Command {
	o := &crawlOptions{}
	var reportPath string
	cmd := &cobra.Command{
		Use:   "crawl <url> [depth] [downloaders] [extractors] [perHost]",
		Short: "Crawl from a seed URL",
		Long: `Crawl explores pages reachable from <url>.

depth counts fetch levels: 1 fetches only the seed, 0 fetches nothing.
downloaders and extractors size the two worker pools, and perHost bounds
simultaneous downloads per host. Each defaults to 1, or to the config file value.`,
		Example: `  crawler crawl https://example.com
  crawler crawl https://example.com 3 8 2 2
  crawler crawl https://example.com 2 --cache-dir ./cache --report report.yaml`,
		Args: cobra.RangeArgs(1, 5),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAndValidate(g.configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			o.apply(cmd, cfg)
			if err := parseCrawlArgs(args[1:], cfg); err != nil {
				return err
			}
			seed, err := orchestrate.NormalizeSeed(args[0])
			if err != nil {
				return err
			}

			log, closer := newLogger(g, cfg, cmd.ErrOrStderr())
			defer closer.Close()
			ctx, stop := signalContext(cmd.Context(), log)
			defer stop()

			return doCrawl(ctx, cfg, seed, o.cacheIndex, reportPath, log, cmd.OutOrStdout())
		},
	}
	o.addFlags(cmd)
	cmd.Flags().StringVar(&reportPath, "report", "", "Write a YAML crawl report to this file")
	return cmd
}

// parseCrawlArgs applies the optional positional arguments
// [depth] [downloaders] [extractors] [perHost] to cfg.
func parseCrawlArgs(args []string, cfg *config.AppConfig) error {
	targets := []struct {
		name string
		dst  *int
	}{
		{"depth", &cfg.Depth},
		{"downloaders", &cfg.NumDownloaders},
		{"extractors", &cfg.NumExtractors},
		{"perHost", &cfg.MaxRequestsPerHost},
	}
	if len(args) > len(targets) {
		return fmt.Errorf("%w: too many arguments", utils.ErrConfigValidation)
	}
	for i, arg := range args {
		n, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("%w: %s must be an integer, got %q", utils.ErrConfigValidation, targets[i].name, arg)
		}
		*targets[i].dst = n
	}
	return nil
}

// doCrawl runs one crawl and prints its summary to stdout. The returned error
// is the crawl's top-level failure; per-page failures are only printed.
func doCrawl(ctx context.Context, cfg *config.AppConfig, seed, cacheIndex, reportPath string, log *logrus.Entry, stdout io.Writer) error {
	dl, err := buildDownloader(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := dl.Close(); err != nil {
			log.Warnf("Failed to close page cache: %v", err)
		}
	}()

	engine, err := crawler.NewEngine(cfg.Engine(), dl, crawler.WithLogger(log))
	if err != nil {
		return err
	}

	startedAt := time.Now()
	result, crawlErr := engine.Crawl(ctx, seed, cfg.Depth)
	duration := time.Since(startedAt)
	if closeErr := engine.Close(); closeErr != nil && crawlErr == nil {
		crawlErr = closeErr
	}

	printResult(stdout, result)

	if reportPath != "" {
		report := models.NewCrawlReport(seed, cfg.Depth, result, crawlErr, startedAt, duration)
		if err := orchestrate.WriteReport(reportPath, &report); err != nil {
			log.Errorf("Failed to write report: %v", err)
		} else {
			log.Infof("Report written to %s", reportPath)
		}
	}
	if err := dl.writeCacheIndex(context.Background(), cacheIndex); err != nil {
		log.Errorf("Failed to write cache index: %v", err)
	}
	return crawlErr
}

// printResult writes the visited count and URLs, then each failed URL with its error.
func printResult(w io.Writer, result *models.CrawlResult) {
	if result == nil {
		return
	}
	fmt.Fprintf(w, "Visited %d page(s):\n", len(result.Visited))
	for _, u := range result.Visited {
		fmt.Fprintf(w, "  %s\n", u)
	}
	failed := result.Failed()
	if len(failed) == 0 {
		return
	}
	fmt.Fprintf(w, "Failed %d page(s):\n", len(failed))
	for _, u := range failed {
		err := result.Errors[u]
		fmt.Fprintf(w, "  %s [%s]: %v\n", u, utils.CategorizeError(err), err)
	}
}
