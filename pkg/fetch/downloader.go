package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/crawl-engine/pkg/config"
	"github.com/Sriram-PR/crawl-engine/pkg/crawler"
	"github.com/Sriram-PR/crawl-engine/pkg/models"
	"github.com/Sriram-PR/crawl-engine/pkg/utils"
)

// HTTPDownloader downloads pages over HTTP, honouring the per-host delay,
// robots.txt (when enabled), the page size limit and the retry policy.
type HTTPDownloader struct {
	cfg     *config.AppConfig
	fetcher *Fetcher
	limiter *RateLimiter
	robots  *RobotsHandler // nil when robots.txt is not respected
	rules   *LinkRules
	log     *logrus.Entry
}

// NewHTTPDownloader builds a downloader and its HTTP client from a validated AppConfig.
func NewHTTPDownloader(cfg *config.AppConfig, log *logrus.Entry) (*HTTPDownloader, error) {
	patterns, err := utils.CompileRegexPatterns(cfg.DisallowedPathPatterns)
	if err != nil {
		return nil, err
	}

	log = log.WithField("component", "downloader")
	client := NewClient(cfg.HTTPClientSettings, log)
	fetcher := NewFetcher(client, cfg, log)
	limiter := NewRateLimiter(cfg.DefaultDelayPerHost, log)

	d := &HTTPDownloader{
		cfg:     cfg,
		fetcher: fetcher,
		limiter: limiter,
		rules: &LinkRules{
			Selectors:          config.GetEffectiveLinkSelectors(*cfg),
			RespectNofollow:    cfg.RespectNofollow,
			DisallowedPatterns: patterns,
		},
		log: log,
	}
	if cfg.RespectRobotsTxt {
		d.robots = NewRobotsHandler(fetcher, limiter, cfg, log)
	}
	return d, nil
}

// Download fetches rawURL and returns it as a link-extractable Page.
func (d *HTTPDownloader) Download(ctx context.Context, rawURL string) (crawler.Document, error) {
	raw, err := d.FetchRaw(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return d.Document(raw), nil
}

// Document wraps an already fetched page, e.g. one loaded from the page cache.
func (d *HTTPDownloader) Document(raw *models.CachedPage) crawler.Document {
	return NewPage(raw, d.rules, d.log.WithField("url", raw.URL))
}

// FetchRaw downloads rawURL without parsing it. Every failure is a fetch error.
func (d *HTTPDownloader) FetchRaw(ctx context.Context, rawURL string) (*models.CachedPage, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, utils.NewFetchError(rawURL, fmt.Errorf("%w: URL: %w", utils.ErrParsing, err))
	}
	host := target.Host
	pageLog := d.log.WithFields(logrus.Fields{"url": rawURL, "host": host})

	if d.robots != nil && !d.robots.TestAgent(ctx, target, d.cfg.DefaultUserAgent) {
		return nil, utils.NewFetchError(rawURL, utils.ErrRobotsDisallowed)
	}

	d.limiter.ApplyDelay(ctx, host, d.cfg.DefaultDelayPerHost)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, utils.NewFetchError(rawURL, fmt.Errorf("%w: %w", utils.ErrRequestCreation, err))
	}
	req.Header.Set("User-Agent", d.cfg.DefaultUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	resp, err := d.fetcher.FetchWithRetry(ctx, req)
	d.limiter.UpdateLastRequestTime(host)
	if err != nil {
		drainAndClose(resp)
		return nil, utils.NewFetchError(rawURL, err)
	}
	defer resp.Body.Close()

	body, err := d.readBody(resp)
	if err != nil {
		return nil, utils.NewFetchError(rawURL, err)
	}

	page := &models.CachedPage{
		URL:         rawURL,
		FinalURL:    resp.Request.URL.String(),
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		ContentHash: utils.HashBytes(body),
		FetchedAt:   time.Now(),
	}
	pageLog.WithField("bytes", len(body)).Debug("Downloaded page")
	return page, nil
}

func (d *HTTPDownloader) readBody(resp *http.Response) ([]byte, error) {
	limit := d.cfg.MaxPageSizeBytes
	if limit > 0 && resp.ContentLength > limit {
		return nil, fmt.Errorf("%w: content-length %d > %d", utils.ErrPageTooLarge, resp.ContentLength, limit)
	}

	var reader io.Reader = resp.Body
	if limit > 0 {
		reader = io.LimitReader(resp.Body, limit+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrResponseBodyRead, err)
	}
	if limit > 0 && int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", utils.ErrPageTooLarge, limit)
	}
	return body, nil
}
