package sitemap

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Sriram-PR/crawl-engine/pkg/models"
	"github.com/Sriram-PR/crawl-engine/pkg/parse"
	"github.com/Sriram-PR/crawl-engine/pkg/utils"
)

const (
	defaultMaxSitemaps = 50
	defaultParallel    = 4
)

// URLSet is a <urlset> sitemap document.
type URLSet struct {
	XMLName xml.Name   `xml:"urlset"`
	URLs    []URLEntry `xml:"url"`
}

// URLEntry is a single <url> element.
type URLEntry struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// Index is a <sitemapindex> document referencing further sitemaps.
type Index struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Sitemaps []IndexEntry `xml:"sitemap"`
}

// IndexEntry is a single <sitemap> element of an index.
type IndexEntry struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// Fetcher downloads a raw document. *fetch.HTTPDownloader implements it, so
// sitemap requests go through the same robots, delay and retry handling as pages.
type Fetcher interface {
	FetchRaw(ctx context.Context, url string) (*models.CachedPage, error)
}

// Options control sitemap resolution.
type Options struct {
	MaxSitemaps        int              // Upper bound on documents fetched, index included; default 50
	Parallel           int              // Nested sitemaps fetched at once; default 4
	AnyHost            bool             // Keep page URLs on hosts other than the sitemap's
	DisallowedPatterns []*regexp.Regexp // Page paths matching any pattern are dropped
}

// Resolver expands a sitemap (or sitemap index) into crawl seeds.
type Resolver struct {
	fetcher Fetcher
	opts    Options
	log     *logrus.Entry
}

// NewResolver creates a Resolver.
func NewResolver(f Fetcher, opts Options, log *logrus.Entry) *Resolver {
	if opts.MaxSitemaps <= 0 {
		opts.MaxSitemaps = defaultMaxSitemaps
	}
	if opts.Parallel <= 0 {
		opts.Parallel = defaultParallel
	}
	return &Resolver{fetcher: f, opts: opts, log: log.WithField("component", "sitemap")}
}

// document is the parsed content of one fetched sitemap.
type document struct {
	pages  []string
	nested []string
}

// Resolve fetches sitemapURL and any sitemaps it references, level by level,
// and returns the normalized page URLs in document order without duplicates.
// Failing to fetch or parse the root sitemap is an error; failures of nested
// sitemaps are logged and skipped.
func (r *Resolver) Resolve(ctx context.Context, sitemapURL string) ([]string, error) {
	root, _, err := parse.ParseAndNormalize(sitemapURL)
	if err != nil {
		return nil, utils.NewInvalidURLError(sitemapURL, err)
	}

	rootDoc, err := r.fetchDocument(ctx, root)
	if err != nil {
		return nil, err
	}

	seenSitemaps := map[string]bool{root: true}
	seenPages := make(map[string]bool)
	var pages []string
	addPages := func(doc document) {
		for _, p := range doc.pages {
			if !seenPages[p] {
				seenPages[p] = true
				pages = append(pages, p)
			}
		}
	}
	addPages(rootDoc)

	fetched := 1
	level := r.unseen(rootDoc.nested, seenSitemaps)
	for len(level) > 0 {
		if remaining := r.opts.MaxSitemaps - fetched; len(level) > remaining {
			r.log.Warnf("Sitemap limit %d reached, skipping %d sitemap(s)", r.opts.MaxSitemaps, len(level)-remaining)
			level = level[:remaining]
		}
		if len(level) == 0 {
			break
		}
		fetched += len(level)

		docs, err := r.fetchLevel(ctx, level)
		if err != nil {
			return pages, err
		}
		var next []string
		for _, doc := range docs {
			addPages(doc)
			next = append(next, r.unseen(doc.nested, seenSitemaps)...)
		}
		level = next
	}

	r.log.WithFields(logrus.Fields{
		"sitemap":  root,
		"sitemaps": fetched,
		"pages":    len(pages),
	}).Info("Resolved sitemap")
	return pages, nil
}

// unseen returns the URLs of refs not yet in seen and marks them.
func (r *Resolver) unseen(refs []string, seen map[string]bool) []string {
	var out []string
	for _, ref := range refs {
		if !seen[ref] {
			seen[ref] = true
			out = append(out, ref)
		}
	}
	return out
}

// fetchLevel fetches urls concurrently. Results keep the order of urls; a
// failed sitemap yields an empty document. Only ctx cancellation is an error.
func (r *Resolver) fetchLevel(ctx context.Context, urls []string) ([]document, error) {
	docs := make([]document, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Parallel)

	for i, u := range urls {
		g.Go(func() error {
			doc, err := r.fetchDocument(gctx, u)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				r.log.WithField("sitemap", u).Warnf("Skipping nested sitemap: %v", err)
				return nil
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *Resolver) fetchDocument(ctx context.Context, sitemapURL string) (document, error) {
	raw, err := r.fetcher.FetchRaw(ctx, sitemapURL)
	if err != nil {
		return document{}, err
	}
	body, err := decompress(raw.Body)
	if err != nil {
		return document{}, utils.NewFetchError(sitemapURL, fmt.Errorf("%w: sitemap gzip: %w", utils.ErrParsing, err))
	}

	base := raw.FinalURL
	if base == "" {
		base = sitemapURL
	}
	return r.parseDocument(base, body)
}

// parseDocument accepts either a sitemap index or a URL set.
func (r *Resolver) parseDocument(base string, body []byte) (document, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return document{}, utils.NewInvalidURLError(base, err)
	}
	docLog := r.log.WithField("sitemap", base)

	var index Index
	errIndex := xml.Unmarshal(body, &index)
	if errIndex == nil {
		var doc document
		for _, entry := range index.Sitemaps {
			norm, _, err := parse.ParseAndNormalize(strings.TrimSpace(entry.Loc))
			if err != nil {
				docLog.Debugf("Invalid nested sitemap URL '%s': %v", entry.Loc, err)
				continue
			}
			doc.nested = append(doc.nested, norm)
		}
		docLog.Debugf("Parsed as sitemap index, %d reference(s)", len(doc.nested))
		return doc, nil
	}

	var urlSet URLSet
	if errURLSet := xml.Unmarshal(body, &urlSet); errURLSet != nil {
		return document{}, utils.NewFetchError(base, fmt.Errorf(
			"%w: not a sitemap index (%v) or URL set (%v)", utils.ErrParsing, errIndex, errURLSet))
	}

	var doc document
	for _, entry := range urlSet.URLs {
		if page, ok := r.acceptPage(baseURL, strings.TrimSpace(entry.Loc)); ok {
			doc.pages = append(doc.pages, page)
		} else {
			docLog.Tracef("Dropped sitemap URL '%s'", entry.Loc)
		}
	}
	docLog.Debugf("Parsed as URL set, kept %d of %d URL(s)", len(doc.pages), len(urlSet.URLs))
	return doc, nil
}

// acceptPage normalizes loc and applies the scheme, host and path filters.
func (r *Resolver) acceptPage(sitemapURL *url.URL, loc string) (string, bool) {
	norm, parsed, err := parse.ParseAndNormalize(loc)
	if err != nil {
		return "", false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", false
	}
	if !r.opts.AnyHost && !strings.EqualFold(parsed.Hostname(), sitemapURL.Hostname()) {
		return "", false
	}
	for _, pattern := range r.opts.DisallowedPatterns {
		if pattern.MatchString(parsed.Path) {
			return "", false
		}
	}
	return norm, true
}

// decompress gunzips body when it carries the gzip magic number.
func decompress(body []byte) ([]byte, error) {
	if len(body) < 2 || body[0] != 0x1f || body[1] != 0x8b {
		return body, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
