package publishers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Adda-Baaj/balance-news/pkg/httpclient"
)

// httpPublisher posts each event as JSON to a webhook-style endpoint.
type httpPublisher struct {
	id      string
	typ     string
	url     string
	method  string
	headers map[string]string
	client  httpclient.Client
	log     Logger
}

// newHTTPPublisher builds an HTTP publisher with its own timeout-bounded client.
func newHTTPPublisher(_ context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	if cfg.HTTP == nil {
		return nil, fmt.Errorf("publisher %q missing http configuration", cfg.ID)
	}
	timeout := time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second
	return newHTTPPublisherWithClient(cfg, httpclient.NewRestyClient(timeout), log), nil
}

func newHTTPPublisherWithClient(cfg PublisherConfig, client httpclient.Client, log Logger) *httpPublisher {
	headers := map[string]string{"Content-Type": "application/json"}
	for k, v := range cfg.HTTP.Headers {
		headers[k] = v
	}
	return &httpPublisher{
		id:      cfg.ID,
		typ:     cfg.Type,
		url:     cfg.HTTP.URL,
		method:  cfg.HTTP.Method,
		headers: headers,
		client:  client,
		log:     ensureLogger(log),
	}
}

func (p *httpPublisher) ID() string   { return p.id }
func (p *httpPublisher) Type() string { return p.typ }

// Publish sends the event; any non-2xx answer is an error.
func (p *httpPublisher) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	resp, err := p.client.Do(ctx, p.method, p.url, p.headers, payload)
	if err != nil {
		return fmt.Errorf("http publisher %s: %w", p.id, err)
	}
	if code := resp.StatusCode(); code < 200 || code >= 300 {
		snippet := strings.TrimSpace(string(resp.Body()))
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return fmt.Errorf("http publisher %s: status %d body: %s", p.id, code, snippet)
	}

	p.log.DebugObj("http publisher delivered event", "publisher_http_delivery", map[string]any{
		"publisher_id": p.id,
		"event_id":     evt.ID,
		"status":       resp.StatusCode(),
	})
	return nil
}
