// Package bolt is an embedded single-file Store on top of bbolt.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/Adda-Baaj/balance-news/internal/domain"
	"github.com/Adda-Baaj/balance-news/internal/storage"
)

var (
	bucketSources  = []byte("sources")
	bucketFeeds    = []byte("feeds")
	bucketArticles = []byte("articles")
)

// Store keeps sources and feeds keyed by id and articles keyed by url.
// bbolt serializes write transactions, which makes CreateArticle's check-then-put atomic.
type Store struct {
	db *bolt.DB
}

var _ storage.Store = (*Store)(nil)

// Open creates the file (and its directory) if needed and ensures the buckets exist.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("bolt path is empty")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create bolt dir: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketSources, bucketFeeds, bucketArticles} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListActiveSources(_ context.Context, slugs []string) ([]domain.Source, error) {
	want := make(map[string]struct{}, len(slugs))
	for _, slug := range slugs {
		want[strings.TrimSpace(slug)] = struct{}{}
	}

	all, err := s.allSources()
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, src := range all {
		if !src.Active {
			continue
		}
		if len(want) > 0 {
			if _, ok := want[src.Slug]; !ok {
				continue
			}
		}
		out = append(out, src)
	}
	return out, nil
}

func (s *Store) ListSources(_ context.Context) ([]domain.Source, error) {
	return s.allSources()
}

func (s *Store) SourceBySlug(_ context.Context, slug string) (domain.Source, error) {
	var (
		found domain.Source
		ok    bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		src, hit, err := sourceBySlug(tx, slug)
		found, ok = src, hit
		return err
	})
	if err != nil {
		return domain.Source{}, err
	}
	if !ok {
		return domain.Source{}, fmt.Errorf("slug %q: %w", slug, domain.ErrSourceNotFound)
	}
	return found, nil
}

func (s *Store) ActiveFeeds(_ context.Context, sourceID string) ([]domain.Feed, error) {
	var out []domain.Feed
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFeeds).ForEach(func(_, v []byte) error {
			var f domain.Feed
			if err := json.Unmarshal(v, &f); err != nil {
				return fmt.Errorf("decode feed: %w", err)
			}
			if f.SourceID == sourceID && f.Active {
				out = append(out, f)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out, nil
}

func (s *Store) UpsertSource(_ context.Context, src domain.Source) (domain.Source, error) {
	err := s.db.Update(func(tx *bolt.Tx) error {
		existing, ok, err := sourceBySlug(tx, src.Slug)
		if err != nil {
			return err
		}
		switch {
		case ok:
			src.ID = existing.ID
			if src.LastScrapedAt == nil {
				src.LastScrapedAt = existing.LastScrapedAt
			}
		case src.ID == "":
			src.ID = uuid.NewString()
		}
		return putJSON(tx.Bucket(bucketSources), src.ID, src)
	})
	if err != nil {
		return domain.Source{}, fmt.Errorf("upsert source %s: %w", src.Slug, err)
	}
	return src, nil
}

func (s *Store) UpsertFeed(_ context.Context, f domain.Feed) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFeeds)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var existing domain.Feed
			if err := json.Unmarshal(v, &existing); err != nil {
				return fmt.Errorf("decode feed: %w", err)
			}
			if existing.SourceID == f.SourceID && existing.URL == f.URL {
				f.ID = existing.ID
				if f.LastFetchedAt == nil {
					f.LastFetchedAt = existing.LastFetchedAt
				}
				break
			}
		}
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		return putJSON(b, f.ID, f)
	})
	if err != nil {
		return fmt.Errorf("upsert feed %s: %w", f.URL, err)
	}
	return nil
}

func (s *Store) DeleteFeeds(_ context.Context, sourceID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFeeds)
		var doomed [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var f domain.Feed
			if err := json.Unmarshal(v, &f); err != nil {
				return fmt.Errorf("decode feed: %w", err)
			}
			if f.SourceID == sourceID {
				doomed = append(doomed, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range doomed {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("delete feed: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) ArticleExists(_ context.Context, url string) (bool, error) {
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		ok = tx.Bucket(bucketArticles).Get([]byte(url)) != nil
		return nil
	})
	return ok, err
}

func (s *Store) CreateArticle(_ context.Context, a domain.Article) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketArticles)
		if b.Get([]byte(a.URL)) != nil {
			return domain.ErrDuplicateArticle
		}
		return putJSON(b, a.URL, a)
	})
}

func (s *Store) RecentArticles(_ context.Context, q storage.ArticleQuery) ([]domain.Article, error) {
	var out []domain.Article
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketArticles).ForEach(func(_, v []byte) error {
			var a domain.Article
			if err := json.Unmarshal(v, &a); err != nil {
				return fmt.Errorf("decode article: %w", err)
			}
			if q.SourceID != "" && a.SourceID != q.SourceID {
				return nil
			}
			if !q.Since.IsZero() && a.PublishedAt.Before(q.Since) {
				return nil
			}
			out = append(out, a)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PublishedAt.After(out[j].PublishedAt) })
	if limit := q.EffectiveLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CountArticlesByBias(_ context.Context, since time.Time) (map[domain.BiasLabel]int, error) {
	counts := make(map[domain.BiasLabel]int)
	err := s.db.View(func(tx *bolt.Tx) error {
		bias := make(map[string]domain.BiasLabel)
		err := tx.Bucket(bucketSources).ForEach(func(_, v []byte) error {
			var src domain.Source
			if err := json.Unmarshal(v, &src); err != nil {
				return fmt.Errorf("decode source: %w", err)
			}
			bias[src.ID] = src.Bias
			return nil
		})
		if err != nil {
			return err
		}
		return tx.Bucket(bucketArticles).ForEach(func(_, v []byte) error {
			var a domain.Article
			if err := json.Unmarshal(v, &a); err != nil {
				return fmt.Errorf("decode article: %w", err)
			}
			if a.CreatedAt.Before(since) {
				return nil
			}
			if label, ok := bias[a.SourceID]; ok {
				counts[label]++
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func (s *Store) MarkSourceScraped(_ context.Context, sourceID string, at time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSources)
		var src domain.Source
		if err := getJSON(b, sourceID, &src); err != nil {
			return fmt.Errorf("source %q: %w", sourceID, err)
		}
		src.LastScrapedAt = &at
		return putJSON(b, sourceID, src)
	})
}

func (s *Store) MarkFeedFetched(_ context.Context, feedID string, at time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFeeds)
		var f domain.Feed
		if err := getJSON(b, feedID, &f); err != nil {
			return fmt.Errorf("feed %q: %w", feedID, err)
		}
		f.LastFetchedAt = &at
		return putJSON(b, feedID, f)
	})
}

func (s *Store) TruncateArticles(_ context.Context) error {
	return s.resetBuckets(bucketArticles)
}

func (s *Store) TruncateSources(_ context.Context) error {
	return s.resetBuckets(bucketArticles, bucketFeeds, bucketSources)
}

func (s *Store) resetBuckets(names ...[]byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range names {
			if tx.Bucket(name) != nil {
				if err := tx.DeleteBucket(name); err != nil {
					return fmt.Errorf("drop bucket %s: %w", name, err)
				}
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

func (s *Store) allSources() ([]domain.Source, error) {
	var out []domain.Source
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSources).ForEach(func(_, v []byte) error {
			var src domain.Source
			if err := json.Unmarshal(v, &src); err != nil {
				return fmt.Errorf("decode source: %w", err)
			}
			out = append(out, src)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func sourceBySlug(tx *bolt.Tx, slug string) (domain.Source, bool, error) {
	var (
		found domain.Source
		ok    bool
	)
	c := tx.Bucket(bucketSources).Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var src domain.Source
		if err := json.Unmarshal(v, &src); err != nil {
			return domain.Source{}, false, fmt.Errorf("decode source: %w", err)
		}
		if src.Slug == slug {
			found, ok = src, true
			break
		}
	}
	return found, ok, nil
}

func putJSON(b *bolt.Bucket, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return b.Put([]byte(key), raw)
}

func getJSON(b *bolt.Bucket, key string, v any) error {
	raw := b.Get([]byte(key))
	if raw == nil {
		return fmt.Errorf("not found")
	}
	return json.Unmarshal(raw, v)
}
