package watch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/crawl-engine/pkg/orchestrate"
)

// Scheduler periodically re-crawls a fixed set of seeds and reports which
// pages appeared or disappeared since the previous run.
type Scheduler struct {
	crawler      orchestrate.Crawler
	seeds        []string
	interval     time.Duration
	opts         orchestrate.Options
	log          *logrus.Entry
	stateManager *StateManager
	tick         time.Duration
	now          func() time.Time
}

// NewScheduler creates a new watch scheduler. State is kept in stateDir
// across restarts, so a seed crawled recently is not re-crawled at startup.
func NewScheduler(c orchestrate.Crawler, seeds []string, interval time.Duration, opts orchestrate.Options, stateDir string, log *logrus.Entry) *Scheduler {
	return &Scheduler{
		crawler:      c,
		seeds:        seeds,
		interval:     interval,
		opts:         opts,
		log:          log.WithField("component", "watch"),
		stateManager: NewStateManager(stateDir),
		tick:         calculateTickInterval(interval),
		now:          time.Now,
	}
}

// Run crawls due seeds immediately and then on every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Load(); err != nil {
		s.log.Warnf("Failed to load watch state: %v (starting fresh)", err)
	}

	s.log.Infof("Starting watch mode for %d seed(s) with interval %s", len(s.seeds), FormatInterval(s.interval))
	s.logSchedule()

	s.RunDue(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Watch scheduler shutting down...")
			return nil
		case <-ticker.C:
			s.RunDue(ctx)
		}
	}
}

// RunDue crawls every seed whose interval has elapsed, records the outcomes
// and saves the state. It returns the page changes per seed. Seeds whose
// crawl was cut short by ctx are not recorded.
func (s *Scheduler) RunDue(ctx context.Context) map[string]Diff {
	due := s.getDueSeeds()
	if len(due) == 0 {
		s.logNextRun()
		return nil
	}
	s.log.Infof("Running crawl for %d due seed(s)", len(due))

	orch := orchestrate.NewOrchestrator(s.crawler, s.opts, s.log)
	results, _ := orch.Run(ctx, due)

	diffs := make(map[string]Diff)
	now := s.now()
	for _, res := range results {
		if res.Error != nil && ctx.Err() != nil {
			continue
		}
		diff := s.stateManager.Record(res, now)
		diffs[res.Seed] = diff
		s.logDiff(res.Seed, diff)
	}

	if err := s.stateManager.Save(); err != nil {
		s.log.Errorf("Failed to save watch state: %v", err)
	}
	s.logNextRun()
	return diffs
}

// Load reads persisted state. Run calls it itself.
func (s *Scheduler) Load() error {
	return s.stateManager.Load()
}

// State returns the stored state of seed
func (s *Scheduler) State(seed string) (SeedState, bool) {
	return s.stateManager.GetSeedState(seed)
}

func (s *Scheduler) getDueSeeds() []string {
	now := s.now()
	var due []string
	for _, seed := range s.seeds {
		if s.stateManager.ShouldRun(seed, s.interval, now) {
			due = append(due, seed)
		}
	}
	return due
}

// calculateTickInterval returns how often to check for due seeds
func calculateTickInterval(interval time.Duration) time.Duration {
	// Check at least every minute, or every 1/10th of the interval
	checkInterval := interval / 10
	if checkInterval < time.Minute {
		checkInterval = time.Minute
	}
	if checkInterval > 10*time.Minute {
		checkInterval = 10 * time.Minute
	}
	return checkInterval
}

func (s *Scheduler) logDiff(seed string, diff Diff) {
	seedLog := s.log.WithField("seed", seed)
	if diff.Empty() {
		seedLog.Debug("No page changes since last run")
		return
	}
	seedLog.WithFields(logrus.Fields{
		"added":   len(diff.Added),
		"removed": len(diff.Removed),
	}).Info("Pages changed since last run")
	for _, u := range diff.Added {
		seedLog.Infof("  + %s", u)
	}
	for _, u := range diff.Removed {
		seedLog.Infof("  - %s", u)
	}
}

func (s *Scheduler) logSchedule() {
	s.log.Info("Watch schedule:")
	for _, seed := range s.seeds {
		state, exists := s.stateManager.GetSeedState(seed)
		if !exists {
			s.log.Infof("  %s: never run, will run immediately", seed)
			continue
		}
		status := "success"
		if !state.LastRunSuccess {
			status = "failed"
		}
		s.log.Infof("  %s: last run %v (%s, %d pages), next run %v",
			seed,
			state.LastRunTime.Format(time.RFC3339),
			status,
			state.Visited,
			s.stateManager.GetNextRunTime(seed, s.interval).Format(time.RFC3339))
	}
}

func (s *Scheduler) logNextRun() {
	if len(s.seeds) == 0 {
		return
	}
	type nextRun struct {
		seed string
		at   time.Time
	}
	runs := make([]nextRun, 0, len(s.seeds))
	for _, seed := range s.seeds {
		runs = append(runs, nextRun{seed, s.stateManager.GetNextRunTime(seed, s.interval)})
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].at.Before(runs[j].at) })

	next := runs[0]
	until := time.Until(next.at)
	if until < 0 {
		until = 0
	}
	s.log.Infof("Next crawl: %s in %v (at %s)", next.seed, until.Round(time.Second), next.at.Format("15:04:05"))
}

// FormatInterval formats a duration for display
func FormatInterval(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		mins := int(d.Minutes()) % 60
		if mins > 0 {
			return fmt.Sprintf("%dh%dm", hours, mins)
		}
		return fmt.Sprintf("%dh", hours)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	if hours > 0 {
		return fmt.Sprintf("%dd%dh", days, hours)
	}
	return fmt.Sprintf("%dd", days)
}

// ParseInterval parses a duration string with support for days
func ParseInterval(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	var days int
	var remaining string
	n, _ := fmt.Sscanf(s, "%dd%s", &days, &remaining)
	if n >= 1 {
		d = time.Duration(days) * 24 * time.Hour
		if remaining != "" {
			extra, err := time.ParseDuration(remaining)
			if err != nil {
				return 0, fmt.Errorf("invalid interval format: %s", s)
			}
			d += extra
		}
		return d, nil
	}

	return 0, fmt.Errorf("invalid interval format: %s (examples: 30m, 1h, 24h, 7d)", s)
}
