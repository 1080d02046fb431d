package publishers

import (
	"context"
	"io"
	"time"

	"github.com/Adda-Baaj/balance-news/internal/domain"
)

type route struct {
	pub Publisher
	cfg PublisherConfig
}

// Dispatcher fans each admitted article out to every matching publisher.
// Delivery failures are logged and never reach the caller.
type Dispatcher struct {
	routes []route
	now    func() time.Time
	log    Logger
}

// Load reads the publishers file and builds every enabled publisher.
func Load(ctx context.Context, path string, log Logger) (*Dispatcher, error) {
	reg, err := LoadRegistry(path)
	if err != nil {
		return nil, err
	}
	return Build(ctx, DefaultRegistry(), reg.Enabled(), log)
}

// Build instantiates publishers for cfgs using the builder registry.
func Build(ctx context.Context, reg Registry, cfgs []PublisherConfig, log Logger) (*Dispatcher, error) {
	pubs, err := BuildAll(ctx, reg, cfgs, log)
	if err != nil {
		return nil, err
	}
	d := &Dispatcher{now: time.Now, log: ensureLogger(log)}
	for i, pub := range pubs {
		d.routes = append(d.routes, route{pub: pub, cfg: cfgs[i]})
	}
	return d, nil
}

// Len reports how many publishers are wired.
func (d *Dispatcher) Len() int {
	if d == nil {
		return 0
	}
	return len(d.routes)
}

// ArticleAdmitted publishes an article.admitted event to every publisher accepting the source's bias.
func (d *Dispatcher) ArticleAdmitted(ctx context.Context, src domain.Source, art domain.Article) {
	if d.Len() == 0 {
		return
	}
	evt := NewArticleAdmitted(src, art, d.now())
	for _, r := range d.routes {
		if !r.cfg.Accepts(src.Bias) {
			continue
		}
		if err := r.pub.Publish(ctx, evt); err != nil {
			d.log.ErrorObj("publish failed", "publish_error", map[string]any{
				"publisher_id": r.pub.ID(),
				"type":         r.pub.Type(),
				"article_url":  art.URL,
				"error":        err.Error(),
			})
		}
	}
}

// Close releases publishers that hold connections.
func (d *Dispatcher) Close() error {
	if d == nil {
		return nil
	}
	var first error
	for _, r := range d.routes {
		if c, ok := r.pub.(io.Closer); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
