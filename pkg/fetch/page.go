package fetch

import (
	"bytes"
	"fmt"
	"mime"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/crawl-engine/pkg/models"
	"github.com/Sriram-PR/crawl-engine/pkg/parse"
	"github.com/Sriram-PR/crawl-engine/pkg/utils"
)

// LinkRules controls which anchors of a page become crawl candidates.
type LinkRules struct {
	Selectors          []string // Containers searched for a[href]; empty means "body"
	RespectNofollow    bool
	DisallowedPatterns []*regexp.Regexp // Matched against the link path
}

// Page is a downloaded document. Its HTML is only parsed when links are
// extracted, which happens on the extraction pool.
type Page struct {
	raw   *models.CachedPage
	rules *LinkRules
	log   *logrus.Entry
}

// NewPage wraps a raw page for link extraction.
func NewPage(raw *models.CachedPage, rules *LinkRules, log *logrus.Entry) *Page {
	return &Page{raw: raw, rules: rules, log: log}
}

// Raw returns the underlying page data.
func (p *Page) Raw() *models.CachedPage { return p.raw }

// IsHTML reports whether the page declares an HTML content type. An empty
// content type is treated as HTML.
func (p *Page) IsHTML() bool {
	return isHTMLContentType(p.raw.ContentType)
}

// ExtractLinks returns the unique, normalized absolute http(s) links of the
// page, in document order. Non-HTML pages have no links.
func (p *Page) ExtractLinks() ([]string, error) {
	if !p.IsHTML() {
		return nil, nil
	}

	base := p.raw.FinalURL
	if base == "" {
		base = p.raw.URL
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("%w: base URL '%s': %w", utils.ErrParsing, base, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.raw.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: HTML of '%s': %w", utils.ErrParsing, p.raw.URL, err)
	}

	// <base href> overrides the document URL for relative links
	if href, ok := doc.Find("head base[href]").First().Attr("href"); ok {
		if resolved, err := baseURL.Parse(href); err == nil {
			baseURL = resolved
		}
	}

	selectors := []string{"body"}
	if p.rules != nil && len(p.rules.Selectors) > 0 {
		selectors = p.rules.Selectors
	}

	seen := make(map[string]struct{})
	links := []string{}
	for _, selector := range selectors {
		doc.Find(selector).Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			if link, ok := p.candidate(baseURL, a); ok {
				if _, dup := seen[link]; !dup {
					seen[link] = struct{}{}
					links = append(links, link)
				}
			}
		})
	}

	p.log.WithField("links", len(links)).Debug("Extracted links")
	return links, nil
}

func (p *Page) candidate(baseURL *url.URL, a *goquery.Selection) (string, bool) {
	href, _ := a.Attr("href")
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}

	if p.rules != nil && p.rules.RespectNofollow {
		if rel, _ := a.Attr("rel"); strings.Contains(strings.ToLower(rel), "nofollow") {
			return "", false
		}
	}

	linkURL, err := baseURL.Parse(href)
	if err != nil {
		p.log.Debugf("Skipping invalid link href '%s': %v", href, err)
		return "", false
	}
	if linkURL.Scheme != "http" && linkURL.Scheme != "https" {
		return "", false
	}
	if linkURL.Host == "" {
		return "", false
	}

	if p.rules != nil {
		for _, pattern := range p.rules.DisallowedPatterns {
			if pattern.MatchString(linkURL.Path) {
				return "", false
			}
		}
	}

	return parse.NormalizeURL(linkURL), true
}

func isHTMLContentType(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "html")
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}
