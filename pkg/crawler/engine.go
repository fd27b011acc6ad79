package crawler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/crawl-engine/pkg/config"
	"github.com/Sriram-PR/crawl-engine/pkg/hostqueue"
	"github.com/Sriram-PR/crawl-engine/pkg/models"
	"github.com/Sriram-PR/crawl-engine/pkg/parse"
	"github.com/Sriram-PR/crawl-engine/pkg/pool"
	"github.com/Sriram-PR/crawl-engine/pkg/utils"
)

// Engine owns the fetch and extraction pools and the per-host admission
// queues. It runs any number of crawls, sequentially or concurrently, until
// Close is called.
type Engine struct {
	cfg        config.EngineConfig
	downloader Downloader
	hostOf     HostFunc
	log        *logrus.Entry

	fetchPool   *pool.WorkerPool
	extractPool *pool.WorkerPool
	hosts       *hostqueue.Pool

	// ctx is cancelled when Close gives up waiting, aborting in-flight downloads.
	ctx    context.Context
	cancel context.CancelFunc

	closed    atomic.Bool
	forced    atomic.Bool
	closeOnce sync.Once
	closeErr  error

	activeSessions atomic.Int64
	totalSessions  atomic.Int64
}

// Option customizes an Engine.
type Option func(*Engine)

// WithHostFunc replaces the default host extraction (parse.HostOf).
func WithHostFunc(fn HostFunc) Option {
	return func(e *Engine) { e.hostOf = fn }
}

// WithLogger sets the base logger.
func WithLogger(log *logrus.Entry) Option {
	return func(e *Engine) { e.log = log }
}

// WithFetchTimeout bounds each download; it overrides cfg.FetchTimeout.
func WithFetchTimeout(d time.Duration) Option {
	return func(e *Engine) { e.cfg.FetchTimeout = d }
}

// EngineStats is a point-in-time snapshot of engine load
type EngineStats struct {
	Hosts          int
	ActiveSessions int64
	TotalSessions  int64
	FetchQueued    int
	FetchActive    int64
	ExtractQueued  int
	ExtractActive  int64
}

// NewEngine validates cfg and starts the worker pools.
func NewEngine(cfg config.EngineConfig, downloader Downloader, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:        cfg,
		downloader: downloader,
		hostOf:     parse.HostOf,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logrus.NewEntry(logrus.StandardLogger())
	}
	e.log = e.log.WithField("component", "engine")

	var err error
	if e.fetchPool, err = pool.New("fetch", cfg.Downloaders, e.log); err != nil {
		return nil, err
	}
	if e.extractPool, err = pool.New("extract", cfg.Extractors, e.log); err != nil {
		e.fetchPool.Shutdown(0)
		return nil, err
	}
	if e.hosts, err = hostqueue.NewPool(cfg.PerHost, e.fetchPool, e.log); err != nil {
		e.fetchPool.Shutdown(0)
		e.extractPool.Shutdown(0)
		return nil, err
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())

	e.log.WithFields(logrus.Fields{
		"downloaders": cfg.Downloaders,
		"extractors":  cfg.Extractors,
		"per_host":    cfg.PerHost,
	}).Info("Crawl engine started")
	return e, nil
}

// Crawl explores everything reachable from seed within depth fetch levels and
// blocks until no work remains. depth 0 fetches nothing; depth 1 fetches only
// the seed.
//
// If ctx is cancelled or the engine is closed mid-crawl, Crawl returns the
// partial result collected so far together with a non-nil error.
func (e *Engine) Crawl(ctx context.Context, seed string, depth int) (*models.CrawlResult, error) {
	if e.closed.Load() {
		return nil, utils.WrapErrorf(utils.ErrShutdown, "crawl of '%s' rejected: engine closed", seed)
	}
	if depth < 0 {
		return nil, utils.WrapErrorf(utils.ErrConfigValidation, "depth must be >= 0, got %d", depth)
	}

	e.activeSessions.Add(1)
	e.totalSessions.Add(1)
	defer e.activeSessions.Add(-1)

	s := newSession(ctx, e, seed, depth)
	defer s.stop()
	return s.run()
}

// Crawl is a one-shot helper: it builds an engine from cfg, runs a single
// crawl and closes the engine.
func Crawl(ctx context.Context, downloader Downloader, seed string, depth int, cfg config.EngineConfig, opts ...Option) (*models.CrawlResult, error) {
	e, err := NewEngine(cfg, downloader, opts...)
	if err != nil {
		return nil, err
	}
	result, crawlErr := e.Crawl(ctx, seed, depth)
	if closeErr := e.Close(); closeErr != nil && crawlErr == nil {
		crawlErr = closeErr
	}
	return result, crawlErr
}

// Close stops accepting crawls and shuts down both pools, waiting up to the
// configured shutdown timeout for each. If a pool does not drain in time the
// engine context is cancelled and an error wrapping ErrShutdown is returned.
// Close is idempotent; later calls return the first call's result.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		start := time.Now()
		e.log.Info("Shutting down crawl engine...")

		// Extraction first: its tasks feed the fetch pool, not the other way round.
		extractDrained := e.extractPool.Shutdown(e.cfg.ShutdownTimeout)
		fetchDrained := e.fetchPool.Shutdown(e.cfg.ShutdownTimeout)

		if !extractDrained || !fetchDrained {
			e.forced.Store(true)
			e.cancel()
			e.closeErr = utils.WrapErrorf(utils.ErrShutdown,
				"pools did not drain within %v, remaining tasks cancelled", e.cfg.ShutdownTimeout)
			e.log.WithFields(logrus.Fields{
				"extract_drained": extractDrained,
				"fetch_drained":   fetchDrained,
			}).Warn("Forced engine shutdown")
			return
		}
		e.cancel()
		e.log.WithField("duration", time.Since(start).String()).Info("Crawl engine shut down")
	})
	return e.closeErr
}

// Closed reports whether Close has been called
func (e *Engine) Closed() bool { return e.closed.Load() }

// Stats returns a snapshot of the engine's queues and sessions
func (e *Engine) Stats() EngineStats {
	return EngineStats{
		Hosts:          e.hosts.Len(),
		ActiveSessions: e.activeSessions.Load(),
		TotalSessions:  e.totalSessions.Load(),
		FetchQueued:    e.fetchPool.Queued(),
		FetchActive:    e.fetchPool.Active(),
		ExtractQueued:  e.extractPool.Queued(),
		ExtractActive:  e.extractPool.Active(),
	}
}
