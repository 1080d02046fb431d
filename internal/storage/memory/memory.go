// Package memory is an in-process Store used by tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Adda-Baaj/balance-news/internal/domain"
	"github.com/Adda-Baaj/balance-news/internal/storage"
)

// Store keeps everything in maps guarded by a single mutex.
type Store struct {
	mu       sync.RWMutex
	sources  map[string]domain.Source // by id
	feeds    map[string]domain.Feed   // by id
	articles map[string]domain.Article
	order    []string // article urls in insertion order
}

var _ storage.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		sources:  make(map[string]domain.Source),
		feeds:    make(map[string]domain.Feed),
		articles: make(map[string]domain.Article),
	}
}

func (s *Store) ListActiveSources(_ context.Context, slugs []string) ([]domain.Source, error) {
	want := make(map[string]struct{}, len(slugs))
	for _, slug := range slugs {
		want[strings.TrimSpace(slug)] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Source
	for _, src := range s.sources {
		if !src.Active {
			continue
		}
		if len(want) > 0 {
			if _, ok := want[src.Slug]; !ok {
				continue
			}
		}
		out = append(out, cloneSource(src))
	}
	sortSources(out)
	return out, nil
}

func (s *Store) ListSources(_ context.Context) ([]domain.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Source, 0, len(s.sources))
	for _, src := range s.sources {
		out = append(out, cloneSource(src))
	}
	sortSources(out)
	return out, nil
}

func (s *Store) SourceBySlug(_ context.Context, slug string) (domain.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, src := range s.sources {
		if src.Slug == slug {
			return cloneSource(src), nil
		}
	}
	return domain.Source{}, fmt.Errorf("slug %q: %w", slug, domain.ErrSourceNotFound)
}

func (s *Store) ActiveFeeds(_ context.Context, sourceID string) ([]domain.Feed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Feed
	for _, f := range s.feeds {
		if f.SourceID == sourceID && f.Active {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out, nil
}

func (s *Store) UpsertSource(_ context.Context, src domain.Source) (domain.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.sources {
		if existing.Slug == src.Slug {
			src.ID = id
			if src.LastScrapedAt == nil {
				src.LastScrapedAt = existing.LastScrapedAt
			}
			s.sources[id] = cloneSource(src)
			return cloneSource(src), nil
		}
	}
	if src.ID == "" {
		src.ID = uuid.NewString()
	}
	s.sources[src.ID] = cloneSource(src)
	return cloneSource(src), nil
}

func (s *Store) UpsertFeed(_ context.Context, f domain.Feed) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.feeds {
		if existing.SourceID == f.SourceID && existing.URL == f.URL {
			f.ID = id
			if f.LastFetchedAt == nil {
				f.LastFetchedAt = existing.LastFetchedAt
			}
			s.feeds[id] = f
			return nil
		}
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	s.feeds[f.ID] = f
	return nil
}

func (s *Store) DeleteFeeds(_ context.Context, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, f := range s.feeds {
		if f.SourceID == sourceID {
			delete(s.feeds, id)
		}
	}
	return nil
}

func (s *Store) ArticleExists(_ context.Context, url string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.articles[url]
	return ok, nil
}

func (s *Store) CreateArticle(_ context.Context, a domain.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.articles[a.URL]; ok {
		return domain.ErrDuplicateArticle
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	a.Keywords = append([]string(nil), a.Keywords...)
	s.articles[a.URL] = a
	s.order = append(s.order, a.URL)
	return nil
}

func (s *Store) RecentArticles(_ context.Context, q storage.ArticleQuery) ([]domain.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Article
	for _, url := range s.order {
		a := s.articles[url]
		if q.SourceID != "" && a.SourceID != q.SourceID {
			continue
		}
		if !q.Since.IsZero() && a.PublishedAt.Before(q.Since) {
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PublishedAt.After(out[j].PublishedAt) })
	if limit := q.EffectiveLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CountArticlesByBias(_ context.Context, since time.Time) (map[domain.BiasLabel]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[domain.BiasLabel]int)
	for _, a := range s.articles {
		if a.CreatedAt.Before(since) {
			continue
		}
		if src, ok := s.sources[a.SourceID]; ok {
			counts[src.Bias]++
		}
	}
	return counts, nil
}

func (s *Store) MarkSourceScraped(_ context.Context, sourceID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.sources[sourceID]
	if !ok {
		return fmt.Errorf("source %q: %w", sourceID, domain.ErrSourceNotFound)
	}
	src.LastScrapedAt = &at
	s.sources[sourceID] = src
	return nil
}

func (s *Store) MarkFeedFetched(_ context.Context, feedID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.feeds[feedID]
	if !ok {
		return fmt.Errorf("feed %q not found", feedID)
	}
	f.LastFetchedAt = &at
	s.feeds[feedID] = f
	return nil
}

func (s *Store) TruncateArticles(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.articles = make(map[string]domain.Article)
	s.order = nil
	return nil
}

func (s *Store) TruncateSources(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeds = make(map[string]domain.Feed)
	s.sources = make(map[string]domain.Source)
	s.articles = make(map[string]domain.Article)
	s.order = nil
	return nil
}

func (s *Store) Close() error { return nil }

func cloneSource(src domain.Source) domain.Source {
	src.Categories = append([]string(nil), src.Categories...)
	return src
}

func sortSources(out []domain.Source) {
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
}
