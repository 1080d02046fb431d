package feeds

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Adda-Baaj/balance-news/internal/domain"
	"github.com/Adda-Baaj/balance-news/internal/logger"
	"github.com/Adda-Baaj/balance-news/pkg/httpclient"
)

const (
	// DefaultTimeout bounds a single feed retrieval so one slow feed cannot stall a run.
	DefaultTimeout   = 4 * time.Second
	DefaultUserAgent = "Mozilla/5.0 (compatible; BalanceNews/1.0)"

	maxSnippetLen = 512
)

// Fetcher retrieves one feed document and flattens it into raw items.
type Fetcher struct {
	client    httpclient.Client
	userAgent string
	timeout   time.Duration
	log       logger.Logger
}

// FetcherOption customizes a Fetcher.
type FetcherOption func(*Fetcher)

// WithUserAgent overrides the identifying User-Agent header.
func WithUserAgent(ua string) FetcherOption {
	return func(f *Fetcher) {
		if ua = strings.TrimSpace(ua); ua != "" {
			f.userAgent = ua
		}
	}
}

// WithTimeout overrides the per-feed timeout.
func WithTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// NewFetcher creates a Fetcher. A nil client gets a resty client bounded by the fetcher timeout.
func NewFetcher(client httpclient.Client, log logger.Logger, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:    client,
		userAgent: DefaultUserAgent,
		timeout:   DefaultTimeout,
		log:       logger.Ensure(log),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = httpclient.NewRestyClient(f.timeout)
	}
	return f
}

// Fetch downloads url and parses it. Failures are *domain.FetchFailedError or *domain.MalformedFeedError.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]RawItem, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	f.log.InfoObj("fetching feed", "feed_fetch_start", map[string]any{"url": url})

	resp, err := f.client.Get(ctx, url, map[string]string{
		"User-Agent": f.userAgent,
		"Accept":     "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5",
	})
	if err != nil {
		return nil, &domain.FetchFailedError{URL: url, Err: err}
	}
	if code := resp.StatusCode(); code < 200 || code > 299 {
		return nil, &domain.FetchFailedError{URL: url, Status: code, Body: responseSnippet(resp.Body())}
	}

	body := toUTF8(resp.Body(), resp.Header().Get("Content-Type"))
	items, err := Parse(body)
	if err != nil {
		var mf *domain.MalformedFeedError
		if errors.As(err, &mf) {
			mf.URL = url
			return nil, mf
		}
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}

	f.log.DebugObj("feed parsed", "feed_parsed", map[string]any{
		"url":   url,
		"items": len(items),
	})
	return items, nil
}

// responseSnippet returns a truncated snippet of the response body for logging.
func responseSnippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxSnippetLen {
		return s[:maxSnippetLen] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}
