package main

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Sriram-PR/crawl-engine/pkg/config"
	"github.com/Sriram-PR/crawl-engine/pkg/crawler"
	"github.com/Sriram-PR/crawl-engine/pkg/orchestrate"
	"github.com/Sriram-PR/crawl-engine/pkg/sitemap"
	"github.com/Sriram-PR/crawl-engine/pkg/utils"
)

type batchOptions struct {
	crawlOptions
	depth       int
	parallel    int
	downloaders int
	extractors  int
	perHost     int
	reportDir   string
	sitemaps    []string
	anyHost     bool
}

// NewBatchCmd creates the batch command.
func NewBatchCmd(g *globalOptions) *cobra.Command {
	o := &batchOptions{}
	cmd := &cobra.Command{
		Use:   "batch [url]...",
		Short: "Crawl several seeds sharing one engine",
		Long: `Batch crawls each seed URL on a single engine, so all crawls share the
worker pools and per-host limits. A failing seed does not stop the others.

Seeds may also come from sitemaps: every page listed in a --sitemap (or in
the sitemaps it indexes) is crawled as its own seed.`,
		Example: `  crawler batch https://a.example https://b.example --depth 2 --parallel 2
  crawler batch --sitemap https://docs.example/sitemap.xml --report-dir ./reports`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && len(o.sitemaps) == 0 {
				return fmt.Errorf("requires at least one seed URL or --sitemap")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAndValidate(g.configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			o.apply(cmd, cfg)
			o.applyPools(cmd, cfg)

			log, closer := newLogger(g, cfg, cmd.ErrOrStderr())
			defer closer.Close()
			ctx, stop := signalContext(cmd.Context(), log)
			defer stop()

			return doBatch(ctx, cfg, args, o, log, cmd.OutOrStdout())
		},
	}
	o.addFlags(cmd)
	cmd.Flags().IntVar(&o.depth, "depth", 1, "Crawl depth for every seed")
	cmd.Flags().IntVar(&o.parallel, "parallel", 0, "Seeds crawled at once (0 = all)")
	cmd.Flags().IntVar(&o.downloaders, "downloaders", 0, "Downloader pool size")
	cmd.Flags().IntVar(&o.extractors, "extractors", 0, "Extractor pool size")
	cmd.Flags().IntVar(&o.perHost, "per-host", 0, "Max simultaneous downloads per host")
	cmd.Flags().StringVar(&o.reportDir, "report-dir", "", "Write one YAML report per seed into this directory")
	cmd.Flags().StringSliceVar(&o.sitemaps, "sitemap", nil, "Sitemap URL whose pages are added as seeds (repeatable)")
	cmd.Flags().BoolVar(&o.anyHost, "sitemap-any-host", false, "Keep sitemap pages hosted outside the sitemap's host")
	return cmd
}

func (o *batchOptions) applyPools(cmd *cobra.Command, cfg *config.AppConfig) {
	if cmd.Flags().Changed("depth") {
		cfg.Depth = o.depth
	}
	if cmd.Flags().Changed("downloaders") {
		cfg.NumDownloaders = o.downloaders
	}
	if cmd.Flags().Changed("extractors") {
		cfg.NumExtractors = o.extractors
	}
	if cmd.Flags().Changed("per-host") {
		cfg.MaxRequestsPerHost = o.perHost
	}
}

func doBatch(ctx context.Context, cfg *config.AppConfig, args []string, o *batchOptions, log *logrus.Entry, stdout io.Writer) error {
	dl, err := buildDownloader(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := dl.Close(); err != nil {
			log.Warnf("Failed to close page cache: %v", err)
		}
	}()

	seeds, err := collectSeeds(ctx, cfg, dl.http, args, o, log)
	if err != nil {
		return err
	}

	engine, err := crawler.NewEngine(cfg.Engine(), dl, crawler.WithLogger(log))
	if err != nil {
		return err
	}
	defer engine.Close()

	orch := orchestrate.NewOrchestrator(engine, orchestrate.Options{
		Depth:     cfg.Depth,
		Parallel:  o.parallel,
		ReportDir: o.reportDir,
	}, log)
	results, runErr := orch.Run(ctx, seeds)

	failed := 0
	for _, r := range results {
		visited := 0
		if r.Result != nil {
			visited = len(r.Result.Visited)
		}
		if r.Success() {
			fmt.Fprintf(stdout, "%s: visited %d page(s)\n", r.Seed, visited)
			continue
		}
		failed++
		fmt.Fprintf(stdout, "%s: visited %d page(s), failed: %v\n", r.Seed, visited, r.Error)
	}

	if err := dl.writeCacheIndex(context.Background(), o.cacheIndex); err != nil {
		log.Errorf("Failed to write cache index: %v", err)
	}
	if runErr != nil {
		return runErr
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d seed(s) failed", failed, len(results))
	}
	return nil
}

// collectSeeds merges explicit seeds with the pages of every --sitemap and normalizes them.
func collectSeeds(ctx context.Context, cfg *config.AppConfig, f sitemap.Fetcher, args []string, o *batchOptions, log *logrus.Entry) ([]string, error) {
	raw := append([]string{}, args...)
	if len(o.sitemaps) > 0 {
		patterns, err := utils.CompileRegexPatterns(cfg.DisallowedPathPatterns)
		if err != nil {
			return nil, err
		}
		resolver := sitemap.NewResolver(f, sitemap.Options{
			Parallel:           cfg.NumDownloaders,
			AnyHost:            o.anyHost,
			DisallowedPatterns: patterns,
		}, log)
		for _, sm := range o.sitemaps {
			pages, err := resolver.Resolve(ctx, sm)
			if err != nil {
				return nil, fmt.Errorf("sitemap %s: %w", sm, err)
			}
			raw = append(raw, pages...)
		}
	}
	return orchestrate.NormalizeSeeds(raw)
}
