package ingest

import (
	"context"
	"crypto/sha1" //nolint:gosec // non-cryptographic id generation
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Adda-Baaj/balance-news/internal/domain"
	"github.com/Adda-Baaj/balance-news/internal/normalize"
	"github.com/Adda-Baaj/balance-news/internal/storage"
	"github.com/Adda-Baaj/balance-news/pkg/feeds"
)

// Outcome is the admission decision for one item.
type Outcome int

const (
	Admitted Outcome = iota
	Duplicate
	OutOfWindow
)

func (o Outcome) String() string {
	switch o {
	case Admitted:
		return "admitted"
	case Duplicate:
		return "duplicate"
	case OutOfWindow:
		return "out_of_window"
	default:
		return "unknown"
	}
}

var errMissingLink = errors.New("item has no link")

// Admission decides whether raw items become articles.
type Admission struct {
	store storage.ArticleStore
	dates *normalize.DateResolver
	now   func() time.Time
}

// NewAdmission builds the filter. now is the clock used for both the window and the date fallback.
func NewAdmission(store storage.ArticleStore, now func() time.Time) *Admission {
	if now == nil {
		now = time.Now
	}
	return &Admission{store: store, dates: normalize.NewDateResolver(now), now: now}
}

// Candidate runs the cheap checks in order: existence by url, then the window, then normalization.
// A non-Admitted outcome carries no article. Errors are *domain.ItemError.
func (a *Admission) Candidate(ctx context.Context, src domain.Source, feed domain.Feed, item feeds.RawItem, window time.Duration) (domain.Article, Outcome, error) {
	link := strings.TrimSpace(item.Link)
	if link == "" {
		return domain.Article{}, 0, &domain.ItemError{Err: errMissingLink}
	}

	exists, err := a.store.ArticleExists(ctx, link)
	if err != nil {
		return domain.Article{}, 0, &domain.ItemError{Link: link, Err: fmt.Errorf("check existing: %w", err)}
	}
	if exists {
		return domain.Article{}, Duplicate, nil
	}

	published := a.dates.Resolve(item.PubDate)
	if published.Before(a.now().Add(-window)) {
		return domain.Article{}, OutOfWindow, nil
	}

	title := normalize.CleanTitle(item.Title)
	summary := normalize.CleanSummary(item.Description)
	author := strings.TrimSpace(item.Author)
	if author == "" {
		author = domain.UnknownAuthor
	}
	category := feed.Category
	if category == "" {
		category = domain.DefaultFeedCategory
	}

	return domain.Article{
		ID:          hashURL(link),
		SourceID:    src.ID,
		Title:       title,
		Summary:     summary,
		URL:         link,
		Author:      author,
		Category:    category,
		Keywords:    normalize.Keywords(title + " " + summary),
		PublishedAt: published,
		Active:      true,
	}, Admitted, nil
}

// Admit creates the article. A url conflict at create time is a Duplicate outcome, not an error.
func (a *Admission) Admit(ctx context.Context, art domain.Article) (Outcome, error) {
	if art.CreatedAt.IsZero() {
		art.CreatedAt = a.now()
	}
	err := a.store.CreateArticle(ctx, art)
	if errors.Is(err, domain.ErrDuplicateArticle) {
		return Duplicate, nil
	}
	if err != nil {
		return 0, &domain.ItemError{Link: art.URL, Err: fmt.Errorf("create article: %w", err)}
	}
	return Admitted, nil
}

func hashURL(u string) string {
	sum := sha1.Sum([]byte(u))
	return hex.EncodeToString(sum[:])
}
