// Package storage defines the persistence ports used by ingestion, import and the read API.
package storage

import (
	"context"
	"time"

	"github.com/Adda-Baaj/balance-news/internal/domain"
)

// Supported drivers.
const (
	DriverMemory   = "memory"
	DriverBolt     = "bolt"
	DriverPostgres = "postgres"
)

// ArticleQuery filters RecentArticles. Zero values mean "no filter"; Limit <= 0 means DefaultLimit.
type ArticleQuery struct {
	SourceID string
	Since    time.Time
	Limit    int
}

const DefaultLimit = 50

// SourceReader resolves sources and their feeds.
type SourceReader interface {
	// ListActiveSources returns active sources, restricted to slugs when any are given.
	ListActiveSources(ctx context.Context, slugs []string) ([]domain.Source, error)
	ListSources(ctx context.Context) ([]domain.Source, error)
	SourceBySlug(ctx context.Context, slug string) (domain.Source, error)
	ActiveFeeds(ctx context.Context, sourceID string) ([]domain.Feed, error)
}

// SourceWriter is used by the source import.
type SourceWriter interface {
	// UpsertSource inserts or updates by slug and returns the stored record.
	UpsertSource(ctx context.Context, s domain.Source) (domain.Source, error)
	// UpsertFeed inserts or updates by (source id, url).
	UpsertFeed(ctx context.Context, f domain.Feed) error
	DeleteFeeds(ctx context.Context, sourceID string) error
}

// ArticleStore persists admitted articles.
type ArticleStore interface {
	ArticleExists(ctx context.Context, url string) (bool, error)
	// CreateArticle must return domain.ErrDuplicateArticle when the url is already stored,
	// including when a concurrent writer won the race.
	CreateArticle(ctx context.Context, a domain.Article) error
	RecentArticles(ctx context.Context, q ArticleQuery) ([]domain.Article, error)
	CountArticlesByBias(ctx context.Context, since time.Time) (map[domain.BiasLabel]int, error)
}

// Marker records fetch timestamps. Writes are last-write-wins.
type Marker interface {
	MarkSourceScraped(ctx context.Context, sourceID string, at time.Time) error
	MarkFeedFetched(ctx context.Context, feedID string, at time.Time) error
}

// Truncater clears tables for the maintenance command.
type Truncater interface {
	TruncateArticles(ctx context.Context) error
	// TruncateSources also removes feeds and every article that referenced a source.
	TruncateSources(ctx context.Context) error
}

// Store is everything a backend provides.
type Store interface {
	SourceReader
	SourceWriter
	ArticleStore
	Marker
	Truncater
	Close() error
}

// EffectiveLimit applies DefaultLimit to non-positive limits.
func (q ArticleQuery) EffectiveLimit() int {
	if q.Limit <= 0 {
		return DefaultLimit
	}
	return q.Limit
}
