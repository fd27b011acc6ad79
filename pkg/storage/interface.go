package storage

import (
	"context"
	"time"

	"github.com/Sriram-PR/crawl-engine/pkg/models"
)

// PageCache stores raw downloaded pages keyed by the requested URL.
type PageCache interface {
	// Get returns the cached page for url, or found=false on a miss
	Get(url string) (page *models.CachedPage, found bool, err error)

	// Put stores page under page.URL, replacing any previous entry
	Put(page *models.CachedPage) error

	// Count returns the number of cached pages
	Count() int

	// WriteIndex writes every cached URL, one per line, to filePath
	WriteIndex(ctx context.Context, filePath string) error

	// RunGC runs periodic garbage collection until ctx is done. Run it in a goroutine
	RunGC(ctx context.Context, interval time.Duration)

	// Close cleanly closes the underlying store
	Close() error
}
