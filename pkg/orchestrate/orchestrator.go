package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Sriram-PR/crawl-engine/pkg/models"
	"github.com/Sriram-PR/crawl-engine/pkg/parse"
	"github.com/Sriram-PR/crawl-engine/pkg/utils"
)

// Crawler runs a single crawl. *crawler.Engine implements it; sharing one
// engine across seeds shares its worker pools and per-host queues.
type Crawler interface {
	Crawl(ctx context.Context, seed string, depth int) (*models.CrawlResult, error)
}

// Options control a batch run.
type Options struct {
	Depth     int
	Parallel  int    // Seeds crawled at once; <= 0 means all
	ReportDir string // When set, a YAML report is written per seed
}

// SeedResult contains the result of crawling a single seed
type SeedResult struct {
	Seed       string
	Result     *models.CrawlResult // Possibly partial when Error is set
	Error      error
	Duration   time.Duration
	ReportPath string
}

// Success reports whether the crawl of this seed ran to completion.
func (r SeedResult) Success() bool { return r.Error == nil }

// Orchestrator crawls several seeds against one Crawler
type Orchestrator struct {
	crawler Crawler
	opts    Options
	log     *logrus.Entry
}

// NewOrchestrator creates a new orchestrator for batch crawling
func NewOrchestrator(c Crawler, opts Options, log *logrus.Entry) *Orchestrator {
	return &Orchestrator{crawler: c, opts: opts, log: log.WithField("component", "batch")}
}

// Run crawls all seeds, at most Parallel at a time, and returns one result
// per seed in input order. A failing seed does not stop the others. The
// returned error is ctx's error when some seed was never started.
func (o *Orchestrator) Run(ctx context.Context, seeds []string) ([]SeedResult, error) {
	startTime := time.Now()
	o.log.Infof("Starting batch crawl of %d seed(s) at depth %d", len(seeds), o.opts.Depth)

	results := make([]SeedResult, len(seeds))
	g := new(errgroup.Group)
	if o.opts.Parallel > 0 {
		g.SetLimit(o.opts.Parallel)
	}

	for i, seed := range seeds {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = SeedResult{Seed: seed, Error: err}
				return err
			}
			results[i] = o.crawlSeed(ctx, seed)
			return nil
		})
	}
	err := g.Wait()

	o.logSummary(results, time.Since(startTime))
	return results, err
}

func (o *Orchestrator) crawlSeed(ctx context.Context, seed string) SeedResult {
	startTime := time.Now()
	seedLog := o.log.WithField("seed", seed)
	seedLog.Info("Starting crawl for seed")

	result, err := o.crawler.Crawl(ctx, seed, o.opts.Depth)
	res := SeedResult{Seed: seed, Result: result, Error: err, Duration: time.Since(startTime)}
	if err != nil {
		seedLog.Errorf("Crawl failed for seed: %v", err)
	} else {
		seedLog.WithField("visited", len(result.Visited)).Info("Crawl completed for seed")
	}

	if o.opts.ReportDir != "" {
		report := models.NewCrawlReport(seed, o.opts.Depth, result, err, startTime, res.Duration)
		path := filepath.Join(o.opts.ReportDir, utils.FilenameForURL(seed)+".yaml")
		if werr := WriteReport(path, &report); werr != nil {
			seedLog.Warnf("Failed to write report: %v", werr)
		} else {
			res.ReportPath = path
		}
	}
	return res
}

// logSummary logs a summary of all crawl results
func (o *Orchestrator) logSummary(results []SeedResult, totalDuration time.Duration) {
	o.log.Info("============================================")
	o.log.Infof("Batch crawl completed in %v", totalDuration)

	visited, failed, successCount := 0, 0, 0
	for _, r := range results {
		status := "SUCCESS"
		if r.Success() {
			successCount++
		} else {
			status = "FAILED"
		}
		pages := 0
		if r.Result != nil {
			pages = len(r.Result.Visited)
			visited += pages
			failed += len(r.Result.Errors)
		}
		o.log.Infof("  %s: %s - %d page(s) in %v", r.Seed, status, pages, r.Duration.Round(time.Millisecond))
		if r.Error != nil {
			o.log.Infof("    Error: %v", r.Error)
		}
	}

	o.log.Info("--------------------------------------------")
	o.log.Infof("Total: %d seed(s) (%d success, %d failed), %d page(s) visited, %d URL(s) failed",
		len(results), successCount, len(results)-successCount, visited, failed)
	o.log.Info("============================================")
}

// NormalizeSeeds validates and normalizes seed URLs, dropping duplicates
// while keeping the first occurrence's position.
func NormalizeSeeds(seeds []string) ([]string, error) {
	if len(seeds) == 0 {
		return nil, utils.WrapErrorf(utils.ErrConfigValidation, "no seed URLs given")
	}
	seen := make(map[string]struct{}, len(seeds))
	out := make([]string, 0, len(seeds))
	var errs []error
	for _, raw := range seeds {
		norm, err := NormalizeSeed(raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// NormalizeSeed checks that raw is an absolute http(s) URL and returns its
// normalized form, which is the key the engine deduplicates on.
func NormalizeSeed(raw string) (string, error) {
	norm, _, err := parse.ParseAndNormalize(raw)
	if err != nil {
		return "", utils.NewInvalidURLError(raw, err)
	}
	if _, err := parse.HostOf(norm); err != nil {
		return "", utils.NewInvalidURLError(raw, fmt.Errorf("seed must be an absolute http(s) URL"))
	}
	return norm, nil
}
