package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Sriram-PR/crawl-engine/pkg/config"
	"github.com/Sriram-PR/crawl-engine/pkg/crawler"
	"github.com/Sriram-PR/crawl-engine/pkg/orchestrate"
	"github.com/Sriram-PR/crawl-engine/pkg/watch"
)

type watchOptions struct {
	crawlOptions
	depth    int
	interval string
	stateDir string
	once     bool
}

// NewWatchCmd creates the watch command.
func NewWatchCmd(g *globalOptions) *cobra.Command {
	o := &watchOptions{}
	cmd := &cobra.Command{
		Use:   "watch <url>...",
		Short: "Re-crawl seeds periodically and report page changes",
		Long: `Watch crawls each seed whenever its interval has elapsed and logs the pages
that appeared or disappeared since the previous successful crawl. Run
state is kept in --state-dir, so restarts do not re-crawl early.`,
		Example: `  crawler watch https://docs.example --interval 1d --depth 3
  crawler watch https://docs.example --once`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			interval, err := watch.ParseInterval(o.interval)
			if err != nil {
				return err
			}
			cfg, err := loadAndValidate(g.configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			o.apply(cmd, cfg)
			if cmd.Flags().Changed("depth") {
				cfg.Depth = o.depth
			}
			seeds, err := orchestrate.NormalizeSeeds(args)
			if err != nil {
				return err
			}

			log, closer := newLogger(g, cfg, cmd.ErrOrStderr())
			defer closer.Close()
			ctx, stop := signalContext(cmd.Context(), log)
			defer stop()

			return doWatch(ctx, cfg, seeds, interval, o, log, cmd.OutOrStdout())
		},
	}
	o.addFlags(cmd)
	cmd.Flags().IntVar(&o.depth, "depth", 1, "Crawl depth for every seed")
	cmd.Flags().StringVar(&o.interval, "interval", "24h", "Time between crawls of a seed (e.g. 30m, 6h, 7d)")
	cmd.Flags().StringVar(&o.stateDir, "state-dir", ".crawl-state", "Directory for watch state")
	cmd.Flags().BoolVar(&o.once, "once", false, "Crawl due seeds once and exit")
	return cmd
}

func doWatch(ctx context.Context, cfg *config.AppConfig, seeds []string, interval time.Duration, o *watchOptions, log *logrus.Entry, stdout io.Writer) error {
	dl, err := buildDownloader(cfg, log)
	if err != nil {
		return err
	}
	defer dl.Close()

	engine, err := crawler.NewEngine(cfg.Engine(), dl, crawler.WithLogger(log))
	if err != nil {
		return err
	}
	defer engine.Close()

	scheduler := watch.NewScheduler(engine, seeds, interval, orchestrate.Options{Depth: cfg.Depth}, o.stateDir, log)
	if !o.once {
		return scheduler.Run(ctx)
	}

	if err := scheduler.Load(); err != nil {
		log.Warnf("Failed to load watch state: %v (starting fresh)", err)
	}
	diffs := scheduler.RunDue(ctx)
	for _, seed := range seeds {
		diff, ran := diffs[seed]
		if !ran {
			fmt.Fprintf(stdout, "%s: not due\n", seed)
			continue
		}
		state, _ := scheduler.State(seed)
		fmt.Fprintf(stdout, "%s: visited %d, failed %d, +%d -%d\n",
			seed, state.Visited, state.Failed, len(diff.Added), len(diff.Removed))
		for _, u := range diff.Added {
			fmt.Fprintf(stdout, "  + %s\n", u)
		}
		for _, u := range diff.Removed {
			fmt.Fprintf(stdout, "  - %s\n", u)
		}
	}
	return ctx.Err()
}
