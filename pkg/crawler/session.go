package crawler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/crawl-engine/pkg/hostqueue"
	"github.com/Sriram-PR/crawl-engine/pkg/models"
	"github.com/Sriram-PR/crawl-engine/pkg/utils"
)

// session is the bookkeeping for one Engine.Crawl call.
//
// Every unit of work (one fetch, or one extraction with its fan-out) holds
// one count on pending from before it is scheduled until it finishes. A
// child's count is always taken before its parent's is released, so pending
// reaching zero means nothing is running or queued.
type session struct {
	id     string
	seed   string
	depth  int
	engine *Engine
	log    *logrus.Entry

	parent context.Context // Caller's context
	ctx    context.Context // parent, also cancelled by a forced engine shutdown
	cancel context.CancelFunc
	stopFn func() bool // Unlinks ctx from the engine context

	mu     sync.Mutex
	states map[string]models.URLState
	order  []string // URLs in first-claim order
	errs   map[string]error

	pending  sync.WaitGroup
	inFlight atomic.Int64 // Mirrors pending for progress logs
	fetched  atomic.Int64
	started  time.Time
}

func newSession(parent context.Context, e *Engine, seed string, depth int) *session {
	ctx, cancel := context.WithCancel(parent)
	id := uuid.New().String()
	return &session{
		id:     id,
		seed:   seed,
		depth:  depth,
		engine: e,
		log:    e.log.WithFields(logrus.Fields{"session_id": id, "seed": seed, "depth": depth}),
		parent: parent,
		ctx:    ctx,
		cancel: cancel,
		stopFn: context.AfterFunc(e.ctx, cancel),
		states: make(map[string]models.URLState),
		errs:   make(map[string]error),
	}
}

func (s *session) stop() {
	s.stopFn()
	s.cancel()
}

// run schedules the seed and blocks until quiescence or cancellation.
func (s *session) run() (*models.CrawlResult, error) {
	s.started = time.Now()
	if s.depth == 0 {
		s.log.Info("Depth 0 requested, nothing to crawl")
		return models.NewCrawlResult(), nil
	}
	s.log.Info("Crawl session starting")

	// The session itself holds a unit while seeding so the count cannot hit zero early.
	s.acquire()
	s.schedule(s.seed, s.depth)
	s.release()

	done := make(chan struct{})
	go func() { s.pending.Wait(); close(done) }()

	stopProgress := s.startProgressLogger()
	defer stopProgress()

	quiescent := true
	select {
	case <-done:
	case <-s.ctx.Done():
		// Work may have finished at the same moment the context was cancelled.
		quiescent = s.inFlight.Load() == 0
	}

	result := s.result()
	err := s.completionErr(result, quiescent)
	s.logSummary(result, err)
	return result, err
}

// schedule claims url and, if it was not yet seen, submits its fetch to the host queue.
func (s *session) schedule(url string, depth int) {
	if depth <= 0 {
		return
	}
	if !s.claim(url) {
		s.log.WithField("url", url).Trace("Already claimed, skipping")
		return
	}

	host, err := s.engine.hostOf(url)
	if err != nil {
		s.fail(url, utils.NewInvalidURLError(url, err))
		return
	}

	s.acquire()
	s.engine.hosts.Submit(host, hostqueue.Task{
		Run: func() {
			defer s.release()
			s.fetch(url, depth)
		},
		Abort: func(err error) {
			defer s.release()
			s.fail(url, utils.NewURLError(utils.ErrShutdown, url, err))
		},
	})
}

// fetch downloads url and hands the document to the extraction pool if depth remains.
func (s *session) fetch(url string, depth int) {
	taskLog := s.log.WithFields(logrus.Fields{"url": url, "depth": depth})
	defer s.recoverTask(url, taskLog)

	if err := s.ctx.Err(); err != nil {
		s.fail(url, utils.NewFetchError(url, err))
		return
	}

	fetchCtx := s.ctx
	if s.engine.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(s.ctx, s.engine.cfg.FetchTimeout)
		defer cancel()
	}

	start := time.Now()
	doc, err := s.engine.downloader.Download(fetchCtx, url)
	s.fetched.Add(1)
	if err != nil {
		s.fail(url, utils.NewFetchError(url, err))
		return
	}
	taskLog.WithField("duration", time.Since(start).String()).Debug("Downloaded")

	if depth == 1 {
		s.transition(url, models.URLStateDone)
		return
	}

	s.transition(url, models.URLStateExtracting)
	s.acquire()
	err = s.engine.extractPool.Submit(func() {
		defer s.release()
		s.extract(url, doc, depth)
	})
	if err != nil {
		s.release()
		s.fail(url, utils.NewURLError(utils.ErrShutdown, url, err))
	}
}

// extract schedules every link of doc one level deeper.
func (s *session) extract(url string, doc Document, depth int) {
	taskLog := s.log.WithFields(logrus.Fields{"url": url, "depth": depth})
	defer s.recoverTask(url, taskLog)

	links, err := doc.ExtractLinks()
	if err != nil {
		s.fail(url, utils.NewExtractError(url, err))
		return
	}
	taskLog.WithField("links", len(links)).Debug("Extracted links")

	for _, link := range links {
		if s.ctx.Err() != nil {
			taskLog.Debug("Session cancelled, not scheduling remaining links")
			break
		}
		s.schedule(link, depth-1)
	}
	s.transition(url, models.URLStateDone)
}

// recoverTask turns a panic inside a task into an error on url.
func (s *session) recoverTask(url string, taskLog *logrus.Entry) {
	if r := recover(); r != nil {
		taskLog.WithFields(logrus.Fields{
			"panic_info":  r,
			"stack_trace": string(debug.Stack()),
		}).Error("PANIC recovered in crawl task")
		s.fail(url, fmt.Errorf("panic: %v", r))
	}
}

func (s *session) acquire() {
	s.pending.Add(1)
	s.inFlight.Add(1)
}

func (s *session) release() {
	s.inFlight.Add(-1)
	s.pending.Done()
}

// claim records url as seen. Only the first caller for a URL gets true.
func (s *session) claim(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.states[url]; seen {
		return false
	}
	s.states[url] = models.URLStateFetching
	s.order = append(s.order, url)
	return true
}

// transition moves url to next if that is a legal step from its current state.
func (s *session) transition(url string, next models.URLState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur := s.states[url]; cur.CanTransition(next) {
		s.states[url] = next
	}
}

// fail records err against url, merging with any error already recorded.
func (s *session) fail(url string, err error) {
	s.mu.Lock()
	if prev, ok := s.errs[url]; ok {
		s.errs[url] = errors.Join(prev, err)
	} else {
		s.errs[url] = err
	}
	s.states[url] = models.URLStateFailed
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"url":      url,
		"category": utils.CategorizeError(err),
	}).Warnf("Task failed: %v", err)
}

// result snapshots the successfully downloaded URLs and the error map. URLs
// still queued or downloading when an interrupted session returns appear in
// neither.
func (s *session) result() *models.CrawlResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := models.NewCrawlResult()
	for _, u := range s.order {
		if _, failed := s.errs[u]; failed {
			continue
		}
		switch s.states[u] {
		case models.URLStateExtracting, models.URLStateDone:
			result.Visited = append(result.Visited, u)
		}
	}
	for u, err := range s.errs {
		result.Errors[u] = err
	}
	return result
}

// completionErr decides whether a finished or abandoned session reports an
// error alongside its (possibly partial) result.
func (s *session) completionErr(result *models.CrawlResult, quiescent bool) error {
	switch {
	case s.engine.forced.Load():
		return utils.WrapErrorf(utils.ErrShutdown, "crawl of '%s' cut short by forced engine shutdown", s.seed)
	case s.parent.Err() != nil && (!quiescent || hasErrorKind(result, context.Canceled, context.DeadlineExceeded)):
		return fmt.Errorf("crawl of '%s' interrupted: %w", s.seed, context.Cause(s.parent))
	case !quiescent:
		return utils.WrapErrorf(utils.ErrShutdown, "crawl of '%s' interrupted by engine shutdown", s.seed)
	case hasErrorKind(result, utils.ErrShutdown):
		return utils.WrapErrorf(utils.ErrShutdown, "crawl of '%s' incomplete: engine closed during crawl", s.seed)
	}
	return nil
}

// hasErrorKind reports whether any recorded error matches one of targets.
func hasErrorKind(result *models.CrawlResult, targets ...error) bool {
	for _, err := range result.Errors {
		for _, target := range targets {
			if errors.Is(err, target) {
				return true
			}
		}
	}
	return false
}

// startProgressLogger logs session progress periodically until the returned func is called.
func (s *session) startProgressLogger() func() {
	interval := s.engine.cfg.ProgressInterval
	if interval <= 0 {
		return func() {}
	}

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.mu.Lock()
				claimed, failed := len(s.order), len(s.errs)
				s.mu.Unlock()
				s.log.WithFields(logrus.Fields{
					"claimed": claimed,
					"failed":  failed,
					"pending": s.inFlight.Load(),
					"fetched": s.fetched.Load(),
				}).Info("Crawl progress")
			case <-stop:
				return
			}
		}
	}()
	return func() { close(stop) }
}

func (s *session) logSummary(result *models.CrawlResult, err error) {
	summaryLog := s.log.WithField("duration", time.Since(s.started).String())
	summaryLog.Info("========================================================================")
	if err != nil {
		summaryLog.Warnf("CRAWL INTERRUPTED: %v", err)
	} else {
		summaryLog.Info("CRAWL FINISHED")
	}
	summaryLog.Infof("Visited: %d, Failed: %d, Downloads: %d", len(result.Visited), len(result.Errors), s.fetched.Load())
	summaryLog.Info("========================================================================")
}
