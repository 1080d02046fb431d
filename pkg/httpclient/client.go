// Package httpclient is a thin resty wrapper shared by feed fetching, page scraping and HTTP publishers.
package httpclient

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Response is the subset of a resty response the callers rely on.
type Response interface {
	StatusCode() int
	Body() []byte
	Header() http.Header
}

// Client issues HTTP requests with per-call headers.
type Client interface {
	Get(ctx context.Context, url string, headers map[string]string) (Response, error)
	Do(ctx context.Context, method, url string, headers map[string]string, body []byte) (Response, error)
}

type restyClient struct {
	r *resty.Client
}

// NewRestyClient returns a Client whose every request is bounded by timeout.
func NewRestyClient(timeout time.Duration) Client {
	r := resty.New().
		SetTimeout(timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))
	return &restyClient{r: r}
}

// Get performs a GET request.
func (c *restyClient) Get(ctx context.Context, url string, headers map[string]string) (Response, error) {
	return c.Do(ctx, http.MethodGet, url, headers, nil)
}

// Do performs a request with the given method and optional body.
func (c *restyClient) Do(ctx context.Context, method, url string, headers map[string]string, body []byte) (Response, error) {
	req := c.r.R().SetContext(ctx).SetHeaders(headers)
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, url)
	if err != nil {
		return nil, err
	}
	return resp, nil
}
