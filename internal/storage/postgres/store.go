// Package postgres is the relational Store backed by pgx.
package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Adda-Baaj/balance-news/internal/domain"
	"github.com/Adda-Baaj/balance-news/internal/storage"
)

//go:embed migrations/*.up.sql
var migrations embed.FS

type Store struct {
	pool *ConnectionPool
	db   *pgxpool.Pool
}

var _ storage.Store = (*Store)(nil)

// Open connects with default pool limits. See OpenWithConfig.
func Open(ctx context.Context, dsn string) (*Store, error) {
	return OpenWithConfig(ctx, PoolConfig{ConnStr: dsn})
}

// OpenWithConfig connects, pings and applies the embedded migrations.
func OpenWithConfig(ctx context.Context, cfg PoolConfig) (*Store, error) {
	if strings.TrimSpace(cfg.ConnStr) == "" {
		return nil, fmt.Errorf("postgres dsn is empty")
	}
	pool, err := NewConnectionPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := &Store{pool: pool, db: pool.GetConn()}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate runs every embedded *.up.sql file in name order. The scripts are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	names, err := fs.Glob(migrations, "migrations/*.up.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)
	for _, name := range names {
		script, err := migrations.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(ctx, string(script)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

const sourceColumns = `id, name, slug, url, rss_url, bias_label, country_code, categories, is_active, last_scraped_at`

func (s *Store) ListActiveSources(ctx context.Context, slugs []string) ([]domain.Source, error) {
	if len(slugs) == 0 {
		return s.querySources(ctx, `SELECT `+sourceColumns+` FROM news_sources WHERE is_active ORDER BY slug`)
	}
	trimmed := make([]string, 0, len(slugs))
	for _, slug := range slugs {
		trimmed = append(trimmed, strings.TrimSpace(slug))
	}
	return s.querySources(ctx,
		`SELECT `+sourceColumns+` FROM news_sources WHERE is_active AND slug = ANY($1) ORDER BY slug`, trimmed)
}

func (s *Store) ListSources(ctx context.Context) ([]domain.Source, error) {
	return s.querySources(ctx, `SELECT `+sourceColumns+` FROM news_sources ORDER BY slug`)
}

func (s *Store) SourceBySlug(ctx context.Context, slug string) (domain.Source, error) {
	row := s.db.QueryRow(ctx, `SELECT `+sourceColumns+` FROM news_sources WHERE slug = $1`, slug)
	src, err := scanSource(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Source{}, fmt.Errorf("slug %q: %w", slug, domain.ErrSourceNotFound)
	}
	if err != nil {
		return domain.Source{}, fmt.Errorf("failed to load source %s: %w", slug, err)
	}
	return src, nil
}

func (s *Store) ActiveFeeds(ctx context.Context, sourceID string) ([]domain.Feed, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, news_source_id, name, url, category, is_active, last_fetched_at
		FROM rss_feeds
		WHERE news_source_id = $1 AND is_active
		ORDER BY url`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query feeds: %w", err)
	}
	defer rows.Close()

	var out []domain.Feed
	for rows.Next() {
		var f domain.Feed
		if err := rows.Scan(&f.ID, &f.SourceID, &f.Name, &f.URL, &f.Category, &f.Active, &f.LastFetchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feed: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) UpsertSource(ctx context.Context, src domain.Source) (domain.Source, error) {
	if src.ID == "" {
		src.ID = uuid.NewString()
	}
	categories, err := json.Marshal(nonNil(src.Categories))
	if err != nil {
		return domain.Source{}, fmt.Errorf("failed to marshal categories: %w", err)
	}

	cmd := `
		INSERT INTO news_sources (id, name, slug, url, rss_url, bias_label, country_code, categories, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name,
			url = EXCLUDED.url,
			rss_url = EXCLUDED.rss_url,
			bias_label = EXCLUDED.bias_label,
			country_code = EXCLUDED.country_code,
			categories = EXCLUDED.categories,
			is_active = EXCLUDED.is_active,
			updated_at = NOW()
		RETURNING ` + sourceColumns
	row := s.db.QueryRow(ctx, cmd,
		src.ID,
		src.Name,
		src.Slug,
		src.URL,
		src.LegacyFeedURL,
		string(src.Bias),
		src.CountryCode,
		string(categories),
		src.Active,
	)
	stored, err := scanSource(row)
	if err != nil {
		return domain.Source{}, fmt.Errorf("failed to upsert source %s: %w", src.Slug, err)
	}
	return stored, nil
}

func (s *Store) UpsertFeed(ctx context.Context, f domain.Feed) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO rss_feeds (id, news_source_id, name, url, category, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (news_source_id, url) DO UPDATE SET
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			is_active = EXCLUDED.is_active,
			updated_at = NOW()`,
		f.ID, f.SourceID, f.Name, f.URL, f.Category, f.Active)
	if err != nil {
		return fmt.Errorf("failed to upsert feed %s: %w", f.URL, err)
	}
	return nil
}

func (s *Store) DeleteFeeds(ctx context.Context, sourceID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM rss_feeds WHERE news_source_id = $1`, sourceID); err != nil {
		return fmt.Errorf("failed to delete feeds: %w", err)
	}
	return nil
}

func (s *Store) ArticleExists(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM articles WHERE url = $1)`, url).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check article: %w", err)
	}
	return exists, nil
}

func (s *Store) CreateArticle(ctx context.Context, a domain.Article) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	keywords, err := json.Marshal(nonNil(a.Keywords))
	if err != nil {
		return fmt.Errorf("failed to marshal keywords: %w", err)
	}

	tag, err := s.db.Exec(ctx, `
		INSERT INTO articles (id, news_source_id, title, summary, url, image_url, author, category, keywords, published_at, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT DO NOTHING`,
		a.ID,
		a.SourceID,
		a.Title,
		a.Summary,
		a.URL,
		a.ImageURL,
		a.Author,
		a.Category,
		string(keywords),
		a.PublishedAt,
		a.Active,
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert article: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDuplicateArticle
	}
	return nil
}

func (s *Store) RecentArticles(ctx context.Context, q storage.ArticleQuery) ([]domain.Article, error) {
	var (
		where []string
		args  []any
	)
	if q.SourceID != "" {
		args = append(args, q.SourceID)
		where = append(where, fmt.Sprintf("news_source_id = $%d", len(args)))
	}
	if !q.Since.IsZero() {
		args = append(args, q.Since)
		where = append(where, fmt.Sprintf("published_at >= $%d", len(args)))
	}
	args = append(args, q.EffectiveLimit())

	query := `SELECT id, news_source_id, title, summary, url, image_url, author, category, keywords, published_at, is_active, created_at FROM articles`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY published_at DESC LIMIT $%d", len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer rows.Close()

	var out []domain.Article
	for rows.Next() {
		var (
			a        domain.Article
			keywords []byte
		)
		if err := rows.Scan(&a.ID, &a.SourceID, &a.Title, &a.Summary, &a.URL, &a.ImageURL, &a.Author,
			&a.Category, &keywords, &a.PublishedAt, &a.Active, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		if err := json.Unmarshal(keywords, &a.Keywords); err != nil {
			return nil, fmt.Errorf("failed to decode keywords: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) CountArticlesByBias(ctx context.Context, since time.Time) (map[domain.BiasLabel]int, error) {
	rows, err := s.db.Query(ctx, `
		SELECT s.bias_label, COUNT(*)
		FROM articles a
		JOIN news_sources s ON s.id = a.news_source_id
		WHERE a.created_at >= $1
		GROUP BY s.bias_label`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count articles: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.BiasLabel]int)
	for rows.Next() {
		var (
			label string
			n     int
		)
		if err := rows.Scan(&label, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[domain.BiasLabel(label)] = n
	}
	return counts, rows.Err()
}

func (s *Store) MarkSourceScraped(ctx context.Context, sourceID string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE news_sources SET last_scraped_at = $2, updated_at = NOW() WHERE id = $1`, sourceID, at)
	if err != nil {
		return fmt.Errorf("failed to mark source: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("source %q: %w", sourceID, domain.ErrSourceNotFound)
	}
	return nil
}

func (s *Store) MarkFeedFetched(ctx context.Context, feedID string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE rss_feeds SET last_fetched_at = $2, updated_at = NOW() WHERE id = $1`, feedID, at)
	if err != nil {
		return fmt.Errorf("failed to mark feed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("feed %q not found", feedID)
	}
	return nil
}

func (s *Store) TruncateArticles(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `TRUNCATE TABLE articles`); err != nil {
		return fmt.Errorf("failed to truncate articles: %w", err)
	}
	return nil
}

func (s *Store) TruncateSources(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `TRUNCATE TABLE articles, rss_feeds, news_sources`); err != nil {
		return fmt.Errorf("failed to truncate sources: %w", err)
	}
	return nil
}

func (s *Store) querySources(ctx context.Context, query string, args ...any) ([]domain.Source, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	var out []domain.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

func scanSource(row pgx.Row) (domain.Source, error) {
	var (
		src        domain.Source
		bias       string
		categories []byte
	)
	err := row.Scan(&src.ID, &src.Name, &src.Slug, &src.URL, &src.LegacyFeedURL, &bias, &src.CountryCode,
		&categories, &src.Active, &src.LastScrapedAt)
	if err != nil {
		return domain.Source{}, err
	}
	src.Bias = domain.BiasLabel(bias)
	if err := json.Unmarshal(categories, &src.Categories); err != nil {
		return domain.Source{}, fmt.Errorf("decode categories: %w", err)
	}
	return src, nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
