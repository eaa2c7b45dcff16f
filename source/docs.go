// Copyright 2026 Quarrydocs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package source

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/gocolly/colly/v2"
	"github.com/quarrydocs/quarry/core"
)

const (
	// crawlLookahead bounds how many extracted pages may sit between the
	// crawler and the consumer before the crawler blocks.
	crawlLookahead = 16

	defaultParallelism  = 2
	defaultRequestDelay = 100 * time.Millisecond
	defaultUserAgent    = "quarry/1.0 (+https://github.com/quarrydocs/quarry)"
)

// DocsConfig configures the documentation-site crawler.
type DocsConfig struct {
	// StartURL is the page crawling begins from (required). Crawling is
	// restricted to its host.
	StartURL string

	// MaxPages caps how many pages are ingested (0 = unlimited).
	MaxPages int

	// IgnoreRobots disables robots.txt handling.
	IgnoreRobots bool

	// IncludePatterns and ExcludePatterns are doublestar globs matched
	// against URL paths. Excludes win; an empty include list admits
	// every non-excluded path.
	IncludePatterns []string
	ExcludePatterns []string

	// Parallelism is the number of concurrent requests (default 2).
	Parallelism int

	// RequestDelay is the delay between requests (default 100ms).
	RequestDelay time.Duration

	UserAgent string
	Logger    *slog.Logger
}

// DocsSource crawls a documentation site and yields one SourceDocument
// per ingested page. The crawl starts lazily on the first Next call and
// feeds a bounded channel, so crawling never runs far ahead of the
// pipeline.
type DocsSource struct {
	cfg    DocsConfig
	start  *url.URL
	logger *slog.Logger

	once  sync.Once
	pages chan *core.SourceDocument

	skipped atomic.Int64

	mu       sync.Mutex
	count    int
	crawlErr error
}

var (
	_ Source       = (*DocsSource)(nil)
	_ SkipReporter = (*DocsSource)(nil)
)

// NewDocsSource validates the config and creates a crawler source.
func NewDocsSource(cfg DocsConfig) (*DocsSource, error) {
	if cfg.StartURL == "" {
		return nil, fmt.Errorf("start URL is required")
	}
	start, err := url.Parse(cfg.StartURL)
	if err != nil {
		return nil, fmt.Errorf("invalid start URL: %w", err)
	}
	if start.Scheme != "http" && start.Scheme != "https" {
		return nil, fmt.Errorf("start URL must be http or https, got %q", start.Scheme)
	}

	if cfg.Parallelism <= 0 {
		cfg.Parallelism = defaultParallelism
	}
	if cfg.RequestDelay <= 0 {
		cfg.RequestDelay = defaultRequestDelay
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &DocsSource{
		cfg:    cfg,
		start:  start,
		logger: logger.With("component", "docs-source"),
	}, nil
}

// Next returns the next crawled page, ErrExhausted once the crawl has
// finished, or the crawl error if nothing could be fetched at all.
func (s *DocsSource) Next(ctx context.Context) (*core.SourceDocument, error) {
	s.once.Do(func() {
		s.pages = make(chan *core.SourceDocument, crawlLookahead)
		go s.crawl(ctx)
	})

	select {
	case doc, ok := <-s.pages:
		if !ok {
			s.mu.Lock()
			err, emitted := s.crawlErr, s.count
			s.crawlErr = nil
			s.mu.Unlock()
			if err != nil && emitted == 0 {
				return nil, fmt.Errorf("crawl failed: %w", err)
			}
			return nil, ErrExhausted
		}
		return doc, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *DocsSource) crawl(ctx context.Context) {
	defer close(s.pages)

	c := colly.NewCollector(
		colly.AllowedDomains(s.start.Host, s.start.Hostname()),
		colly.Async(true),
		colly.UserAgent(s.cfg.UserAgent),
	)
	c.IgnoreRobotsTxt = s.cfg.IgnoreRobots

	c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: s.cfg.Parallelism,
		Delay:       s.cfg.RequestDelay,
	})

	visited := &sync.Map{}

	c.OnResponse(func(r *colly.Response) {
		if ctx.Err() != nil {
			return
		}

		urlStr := r.Request.URL.String()
		urlPath := r.Request.URL.Path
		if urlPath == "" {
			urlPath = "/"
		}

		if _, loaded := visited.LoadOrStore(urlStr, true); loaded {
			return
		}
		if !s.shouldIncludePath(urlPath) || IsProbablyBinary(urlPath) {
			s.skipped.Add(1)
			return
		}

		doc := s.extractDocument(urlStr, urlPath, r.Headers.Get("Content-Type"), r.Body)
		if doc == nil {
			s.skipped.Add(1)
			return
		}

		s.mu.Lock()
		if s.cfg.MaxPages > 0 && s.count >= s.cfg.MaxPages {
			s.mu.Unlock()
			return
		}
		s.count++
		s.mu.Unlock()

		select {
		case s.pages <- doc:
		case <-ctx.Done():
		}
	})

	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		if ctx.Err() != nil {
			return
		}

		s.mu.Lock()
		full := s.cfg.MaxPages > 0 && s.count >= s.cfg.MaxPages
		s.mu.Unlock()
		if full {
			return
		}

		link := e.Attr("href")
		if link == "" ||
			strings.HasPrefix(link, "#") ||
			strings.HasPrefix(link, "javascript:") ||
			strings.HasPrefix(link, "mailto:") ||
			strings.HasPrefix(link, "tel:") {
			return
		}

		absURL := e.Request.AbsoluteURL(link)
		if absURL == "" {
			return
		}
		parsed, err := url.Parse(absURL)
		if err != nil {
			return
		}
		if !s.shouldIncludePath(parsed.Path) || IsProbablyBinary(parsed.Path) {
			return
		}

		// Strip the fragment so anchors on one page dedupe to one visit.
		parsed.Fragment = ""
		e.Request.Visit(parsed.String())
	})

	c.OnError(func(r *colly.Response, err error) {
		s.logger.Warn("fetch failed", "url", r.Request.URL, "err", err)
		s.skipped.Add(1)
	})

	if err := c.Visit(s.cfg.StartURL); err != nil {
		s.mu.Lock()
		s.crawlErr = err
		s.mu.Unlock()
		return
	}
	c.Wait()

	if err := ctx.Err(); err != nil {
		s.mu.Lock()
		s.crawlErr = err
		s.mu.Unlock()
	}
}

// SkippedDocs reports how many visited pages were dropped: fetch
// failures plus pages filtered as binary or uningestible. Links never
// visited (dedupe, frontier filtering) are not documents and do not
// count.
func (s *DocsSource) SkippedDocs() int {
	return int(s.skipped.Load())
}

// extractDocument converts one HTTP response into a SourceDocument, or
// nil when the response carries nothing ingestible.
func (s *DocsSource) extractDocument(urlStr, urlPath, contentType string, body []byte) *core.SourceDocument {
	var title, text string

	switch {
	case strings.Contains(contentType, "text/html"):
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			s.logger.Warn("unparseable html", "url", urlStr, "err", err)
			return nil
		}
		title = strings.TrimSpace(doc.Find("title").First().Text())
		doc.Find("script, style, noscript").Remove()
		text = NormalizeWhitespace(doc.Find("body").Text())

	case IsDocExt(urlPath) || strings.Contains(contentType, "text/plain"):
		// Markdown and plain-text pages pass through without HTML
		// extraction.
		text = NormalizeWhitespace(string(body))

	default:
		return nil
	}

	if title == "" {
		title = path.Base(urlPath)
		if title == "/" || title == "." {
			title = s.start.Host
		}
	}

	return &core.SourceDocument{
		ID:      urlStr,
		Title:   title,
		Text:    text,
		Origin:  core.OriginDocs,
		Content: core.ContentDoc,
	}
}

// shouldIncludePath applies the exclude-then-include glob rules to a
// URL path.
func (s *DocsSource) shouldIncludePath(urlPath string) bool {
	if urlPath == "" {
		urlPath = "/"
	}

	for _, pattern := range s.cfg.ExcludePatterns {
		matched, err := doublestar.Match(pattern, urlPath)
		if err != nil {
			continue
		}
		if matched {
			return false
		}
	}

	if len(s.cfg.IncludePatterns) == 0 {
		return true
	}
	for _, pattern := range s.cfg.IncludePatterns {
		matched, err := doublestar.Match(pattern, urlPath)
		if err != nil {
			continue
		}
		if matched {
			return true
		}
	}
	return false
}
