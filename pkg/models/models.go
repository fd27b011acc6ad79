package models

import (
	"sort"
	"time"

	"github.com/Sriram-PR/crawl-engine/pkg/utils"
)

// CrawlResult is the outcome of one crawl: successfully processed URLs in the
// order they were first claimed, and the error recorded for each failed URL.
// Visited never contains a key of Errors.
type CrawlResult struct {
	Visited []string
	Errors  map[string]error
}

// NewCrawlResult returns an empty result with a non-nil error map.
func NewCrawlResult() *CrawlResult {
	return &CrawlResult{Visited: []string{}, Errors: map[string]error{}}
}

// Failed returns the failed URLs in lexical order.
func (r *CrawlResult) Failed() []string {
	failed := make([]string, 0, len(r.Errors))
	for u := range r.Errors {
		failed = append(failed, u)
	}
	sort.Strings(failed)
	return failed
}

// Len is the number of URLs the crawl touched, successful or not.
func (r *CrawlResult) Len() int {
	return len(r.Visited) + len(r.Errors)
}

// CachedPage is a raw downloaded page as kept in the page cache
type CachedPage struct {
	URL         string    `json:"url"`
	FinalURL    string    `json:"final_url"` // After redirects
	Body        []byte    `json:"body"`
	ContentType string    `json:"content_type,omitempty"`
	ContentHash string    `json:"content_hash"` // SHA256 hex of Body
	FetchedAt   time.Time `json:"fetched_at"`
}

// CrawlReport is the YAML summary written by the CLI and returned by the MCP server.
type CrawlReport struct {
	Seed         string        `yaml:"seed" json:"seed"`
	Depth        int           `yaml:"depth" json:"depth"`
	StartedAt    time.Time     `yaml:"started_at" json:"started_at"`
	Duration     time.Duration `yaml:"duration" json:"duration"`
	VisitedCount int           `yaml:"visited_count" json:"visited_count"`
	FailedCount  int           `yaml:"failed_count" json:"failed_count"`
	Visited      []string      `yaml:"visited" json:"visited"`
	Errors       []ErrorEntry  `yaml:"errors,omitempty" json:"errors,omitempty"`
	Interrupted  string        `yaml:"interrupted,omitempty" json:"interrupted,omitempty"` // Set when the crawl did not reach quiescence
}

// ErrorEntry describes a single failed URL in a CrawlReport
type ErrorEntry struct {
	URL      string `yaml:"url" json:"url"`
	Category string `yaml:"category" json:"category"`
	Message  string `yaml:"message" json:"message"`
}

// NewCrawlReport flattens a CrawlResult into a serializable report. crawlErr is
// the top-level error returned alongside a partial result, if any.
func NewCrawlReport(seed string, depth int, result *CrawlResult, crawlErr error, startedAt time.Time, duration time.Duration) CrawlReport {
	report := CrawlReport{
		Seed:      seed,
		Depth:     depth,
		StartedAt: startedAt,
		Duration:  duration,
		Visited:   []string{},
	}
	if crawlErr != nil {
		report.Interrupted = crawlErr.Error()
	}
	if result == nil {
		return report
	}
	report.Visited = append(report.Visited, result.Visited...)
	report.VisitedCount = len(result.Visited)
	report.FailedCount = len(result.Errors)
	for _, u := range result.Failed() {
		err := result.Errors[u]
		report.Errors = append(report.Errors, ErrorEntry{
			URL:      u,
			Category: utils.CategorizeError(err),
			Message:  err.Error(),
		})
	}
	return report
}
