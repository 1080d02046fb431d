package crawler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Adda-Baaj/balance-news/internal/domain"
	"github.com/Adda-Baaj/balance-news/internal/logger"
	"github.com/Adda-Baaj/balance-news/internal/normalize"
	"github.com/Adda-Baaj/balance-news/pkg/httpclient"

	"github.com/PuerkitoBio/goquery"
)

const (
	maxHTMLBodyBytes  = 1 << 20 // 1 MiB
	maxArticleWorkers = 10
	defaultTimeout    = 8 * time.Second
)

// Scraper enriches admitted articles with metadata scraped from their HTML pages.
type Scraper struct {
	client    httpclient.Client
	log       logger.Logger
	userAgent string
	delay     time.Duration
}

// Option customizes a Scraper.
type Option func(*Scraper)

// WithUserAgent sets the User-Agent sent with page requests.
func WithUserAgent(ua string) Option {
	return func(s *Scraper) {
		if ua = strings.TrimSpace(ua); ua != "" {
			s.userAgent = ua
		}
	}
}

// WithRequestDelay spaces page requests across all workers.
func WithRequestDelay(d time.Duration) Option {
	return func(s *Scraper) {
		if d > 0 {
			s.delay = d
		}
	}
}

// NewScraper creates a new Scraper with the given HTTP client and logger.
func NewScraper(client httpclient.Client, log logger.Logger, opts ...Option) *Scraper {
	if client == nil {
		client = httpclient.NewRestyClient(defaultTimeout)
	}
	s := &Scraper{client: client, log: logger.Ensure(log)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enrich enriches the given articles by scraping their HTML pages for metadata.
// Articles whose page cannot be fetched are returned unchanged.
func (s *Scraper) Enrich(ctx context.Context, articles []domain.Article) []domain.Article {
	out := make([]domain.Article, len(articles))
	copy(out, articles) // default to originals so partial results are returned on cancel

	if len(articles) == 0 {
		return out
	}

	workerCount := min(len(articles), maxArticleWorkers)

	var limiter <-chan time.Time
	if s.delay > 0 {
		ticker := time.NewTicker(s.delay)
		limiter = ticker.C
		defer ticker.Stop()
	}

	jobCh := make(chan int)
	var wg sync.WaitGroup

	for workerID := range workerCount {
		wg.Add(1)
		go s.articleWorker(ctx, articles, limiter, jobCh, out, &wg, workerID)
	}

dispatch:
	for idx := range articles {
		select {
		case jobCh <- idx:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobCh)

	wg.Wait()

	return out
}

// articleWorker processes articles from the job channel, respecting the rate limiter.
func (s *Scraper) articleWorker(
	ctx context.Context,
	articles []domain.Article,
	limiter <-chan time.Time,
	jobCh <-chan int,
	out []domain.Article,
	wg *sync.WaitGroup,
	workerID int,
) {
	defer wg.Done()

	for idx := range jobCh {
		if ctx.Err() != nil {
			return
		}

		if limiter != nil {
			select {
			case <-ctx.Done():
				return
			case <-limiter:
			}
		}

		art := articles[idx]
		if enriched, err := s.fetchAndParse(ctx, art, workerID); err != nil {
			s.log.WarnObj("article metadata scrape failed", "metadata_error", map[string]any{
				"worker_id": workerID,
				"url":       art.URL,
				"error":     err.Error(),
			})
			out[idx] = art
		} else {
			out[idx] = enriched
		}
	}
}

// fetchAndParse fetches the article HTML and copies the image and, when missing, the summary.
func (s *Scraper) fetchAndParse(ctx context.Context, art domain.Article, workerID int) (domain.Article, error) {
	headers := map[string]string{"Accept": "text/html,application/xhtml+xml"}
	if s.userAgent != "" {
		headers["User-Agent"] = s.userAgent
	}

	s.log.DebugObj("scraping article metadata", "scrape_start", map[string]any{
		"worker_id": workerID,
		"url":       art.URL,
	})

	resp, err := s.client.Get(ctx, art.URL, headers)
	if err != nil {
		return art, fmt.Errorf("http fetch: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		snippet := strings.TrimSpace(string(resp.Body()))
		if len(snippet) > 1024 {
			snippet = snippet[:1024]
		}
		return art, fmt.Errorf("status %d body: %s", resp.StatusCode(), snippet)
	}

	body := resp.Body()
	if len(body) > maxHTMLBodyBytes {
		s.log.InfoObj("html body truncated", "truncation", map[string]any{
			"worker_id": workerID,
			"url":       art.URL,
			"original":  len(body),
			"kept":      maxHTMLBodyBytes,
		})
		body = body[:maxHTMLBodyBytes]
	}

	meta, err := parseMeta(body)
	if err != nil {
		return art, err
	}
	updated := art
	if meta.ImageURL != "" && updated.ImageURL == "" {
		updated.ImageURL = resolveURL(meta.ImageURL, art.URL)
	}
	if updated.Summary == "" && meta.Description != "" {
		updated.Summary = normalize.CleanSummary(meta.Description)
	}

	return updated, nil
}

// parseMeta extracts page metadata from the HTML body.
func parseMeta(body []byte) (pageMeta, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return pageMeta{}, fmt.Errorf("parse html: %w", err)
	}

	extract := func(sel string) string {
		if node := doc.Find(sel).First(); node.Length() > 0 {
			if val, ok := node.Attr("content"); ok {
				return strings.TrimSpace(val)
			}
		}
		return ""
	}

	return pageMeta{
		Description: firstNonEmpty(
			extract(`meta[property="og:description"]`),
			extract(`meta[name="description"]`),
		),
		ImageURL: firstNonEmpty(
			extract(`meta[property="og:image"]`),
			extract(`meta[property="og:image:url"]`),
			extract(`meta[name="twitter:image"]`),
		),
	}, nil
}

// pageMeta holds metadata extracted from an HTML page.
type pageMeta struct {
	Description string
	ImageURL    string
}

// firstNonEmpty returns the first non-empty string from the given values.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// resolveURL resolves a possibly relative URL against a base URL.
func resolveURL(raw, base string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if parsed.IsAbs() {
		return parsed.String()
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return raw
	}

	return baseURL.ResolveReference(parsed).String()
}
