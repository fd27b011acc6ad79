package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"

	"github.com/Sriram-PR/crawl-engine/pkg/config"
)

// maxRobotsBytes bounds how much of a robots.txt body is read.
const maxRobotsBytes = 512 * 1024

// RobotsHandler fetches, parses, caches and checks robots.txt per host.
// Concurrent lookups for the same host share one fetch.
type RobotsHandler struct {
	fetcher     *Fetcher
	rateLimiter *RateLimiter
	cfg         *config.AppConfig
	log         *logrus.Entry

	mu    sync.Mutex
	cache map[string]*robotstxt.RobotsData // host -> parsed data, nil when unavailable
	group singleflight.Group
}

// NewRobotsHandler creates a RobotsHandler
func NewRobotsHandler(fetcher *Fetcher, rateLimiter *RateLimiter, cfg *config.AppConfig, log *logrus.Entry) *RobotsHandler {
	return &RobotsHandler{
		fetcher:     fetcher,
		rateLimiter: rateLimiter,
		cfg:         cfg,
		log:         log.WithField("component", "robots"),
		cache:       make(map[string]*robotstxt.RobotsData),
	}
}

// GetRobotsData returns the parsed robots.txt for target's host, or nil if it
// could not be fetched or parsed. Failures are cached as nil.
func (rh *RobotsHandler) GetRobotsData(ctx context.Context, target *url.URL) *robotstxt.RobotsData {
	host := target.Host

	rh.mu.Lock()
	data, found := rh.cache[host]
	rh.mu.Unlock()
	if found {
		return data
	}

	v, _, _ := rh.group.Do(host, func() (interface{}, error) {
		rh.mu.Lock()
		if cached, ok := rh.cache[host]; ok {
			rh.mu.Unlock()
			return cached, nil
		}
		rh.mu.Unlock()

		fetched := rh.fetch(ctx, target)
		// A cancelled lookup is not a verdict about the host.
		if ctx.Err() == nil {
			rh.mu.Lock()
			rh.cache[host] = fetched
			rh.mu.Unlock()
		}
		return fetched, nil
	})
	data, _ = v.(*robotstxt.RobotsData)
	return data
}

func (rh *RobotsHandler) fetch(ctx context.Context, target *url.URL) *robotstxt.RobotsData {
	scheme := target.Scheme
	if scheme != "http" && scheme != "https" {
		scheme = "https"
	}
	robotsURL := (&url.URL{Scheme: scheme, Host: target.Host, Path: "/robots.txt"}).String()
	robotsLog := rh.log.WithFields(logrus.Fields{"host": target.Host, "robots_url": robotsURL})
	robotsLog.Debug("Fetching robots.txt...")

	rh.rateLimiter.ApplyDelay(ctx, target.Host, rh.cfg.DefaultDelayPerHost)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		robotsLog.Warnf("Error creating request: %v", err)
		return nil
	}
	req.Header.Set("User-Agent", rh.cfg.DefaultUserAgent)

	resp, err := rh.fetcher.FetchWithRetry(ctx, req)
	rh.rateLimiter.UpdateLastRequestTime(target.Host)
	if err != nil {
		drainAndClose(resp)
		robotsLog.Debugf("robots.txt unavailable, allowing all: %v", err)
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		robotsLog.Warnf("Error reading robots.txt body: %v", err)
		return nil
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		robotsLog.Warnf("Error parsing robots.txt: %v", err)
		return nil
	}
	robotsLog.Info("Fetched and parsed robots.txt")
	return data
}

// TestAgent reports whether userAgent may fetch target. Hosts without usable
// robots data allow everything.
func (rh *RobotsHandler) TestAgent(ctx context.Context, target *url.URL, userAgent string) bool {
	data := rh.GetRobotsData(ctx, target)
	if data == nil {
		return true
	}
	return data.TestAgent(target.RequestURI(), userAgent)
}
