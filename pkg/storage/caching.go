package storage

import (
	"context"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/crawl-engine/pkg/crawler"
	"github.com/Sriram-PR/crawl-engine/pkg/models"
)

// RawFetcher downloads pages without parsing them and turns stored pages
// back into documents. fetch.HTTPDownloader implements it.
type RawFetcher interface {
	FetchRaw(ctx context.Context, url string) (*models.CachedPage, error)
	Document(page *models.CachedPage) crawler.Document
}

// CachingDownloader is a crawler.Downloader that serves pages from a
// PageCache and falls back to the network on a miss. Cache failures are
// logged and never fail a download.
type CachingDownloader struct {
	cache   PageCache
	fetcher RawFetcher
	log     *logrus.Entry

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachingDownloader wraps fetcher with cache.
func NewCachingDownloader(cache PageCache, fetcher RawFetcher, log *logrus.Entry) *CachingDownloader {
	return &CachingDownloader{cache: cache, fetcher: fetcher, log: log.WithField("component", "page_cache")}
}

// Download implements crawler.Downloader
func (c *CachingDownloader) Download(ctx context.Context, url string) (crawler.Document, error) {
	page, found, err := c.cache.Get(url)
	if err != nil {
		c.log.WithField("url", url).Warnf("Cache read failed, fetching: %v", err)
	}
	if found {
		c.hits.Add(1)
		c.log.WithField("url", url).Debug("Cache hit")
		return c.fetcher.Document(page), nil
	}

	c.misses.Add(1)
	page, err = c.fetcher.FetchRaw(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Put(page); err != nil {
		c.log.WithField("url", url).Warnf("Cache write failed: %v", err)
	}
	return c.fetcher.Document(page), nil
}

// Hits returns the number of downloads served from the cache.
func (c *CachingDownloader) Hits() int64 { return c.hits.Load() }

// Misses returns the number of downloads that went to the network.
func (c *CachingDownloader) Misses() int64 { return c.misses.Load() }
