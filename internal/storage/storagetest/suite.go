// Package storagetest holds the behavior every storage.Store backend must share.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adda-Baaj/balance-news/internal/domain"
	"github.com/Adda-Baaj/balance-news/internal/storage"
)

// Run executes the shared store suite. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("sources and feeds", func(t *testing.T) { testSourcesAndFeeds(t, newStore(t)) })
	t.Run("admit once", func(t *testing.T) { testAdmitOnce(t, newStore(t)) })
	t.Run("concurrent admit once", func(t *testing.T) { testConcurrentAdmitOnce(t, newStore(t)) })
	t.Run("recent articles", func(t *testing.T) { testRecentArticles(t, newStore(t)) })
	t.Run("marks", func(t *testing.T) { testMarks(t, newStore(t)) })
	t.Run("bias counts", func(t *testing.T) { testBiasCounts(t, newStore(t)) })
	t.Run("truncate", func(t *testing.T) { testTruncate(t, newStore(t)) })
}

// SeedSource stores a source with the given feeds and returns it with ids populated.
func SeedSource(t *testing.T, st storage.SourceWriter, src domain.Source, feeds ...domain.Feed) domain.Source {
	t.Helper()
	ctx := context.Background()

	stored, err := st.UpsertSource(ctx, src)
	require.NoError(t, err)
	require.NotEmpty(t, stored.ID)
	for _, f := range feeds {
		f.SourceID = stored.ID
		require.NoError(t, st.UpsertFeed(ctx, f))
	}
	return stored
}

func testSourcesAndFeeds(t *testing.T, st storage.Store) {
	ctx := context.Background()
	defer st.Close()

	left := SeedSource(t, st, domain.Source{
		Name: "Left Daily", Slug: "left-daily", URL: "https://left.example", Bias: domain.BiasLeft,
		CountryCode: "US", Categories: []string{"politics"}, Active: true,
	},
		domain.Feed{Name: "Top", URL: "https://left.example/top.xml", Category: "general", Active: true},
		domain.Feed{Name: "Old", URL: "https://left.example/old.xml", Category: "general", Active: false},
	)
	SeedSource(t, st, domain.Source{Name: "Dormant", Slug: "dormant", Bias: domain.BiasRight, Active: false})
	SeedSource(t, st, domain.Source{Name: "Center Post", Slug: "center-post", Bias: domain.BiasCenter, Active: true})

	active, err := st.ListActiveSources(ctx, nil)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "center-post", active[0].Slug)
	assert.Equal(t, "left-daily", active[1].Slug)
	assert.Equal(t, []string{"politics"}, active[1].Categories)

	filtered, err := st.ListActiveSources(ctx, []string{"left-daily", "dormant"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, left.ID, filtered[0].ID)

	all, err := st.ListSources(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	feeds, err := st.ActiveFeeds(ctx, left.ID)
	require.NoError(t, err)
	require.Len(t, feeds, 1)
	assert.Equal(t, "https://left.example/top.xml", feeds[0].URL)

	// upsert by slug keeps the id
	again, err := st.UpsertSource(ctx, domain.Source{Name: "Left Daily 2", Slug: "left-daily", Bias: domain.BiasLeanLeft, Active: true})
	require.NoError(t, err)
	assert.Equal(t, left.ID, again.ID)

	got, err := st.SourceBySlug(ctx, "left-daily")
	require.NoError(t, err)
	assert.Equal(t, "Left Daily 2", got.Name)
	assert.Equal(t, domain.BiasLeanLeft, got.Bias)

	_, err = st.SourceBySlug(ctx, "missing")
	assert.True(t, errors.Is(err, domain.ErrSourceNotFound))

	// upsert by (source, url) does not duplicate
	require.NoError(t, st.UpsertFeed(ctx, domain.Feed{SourceID: left.ID, Name: "Top!", URL: "https://left.example/top.xml", Active: true}))
	feeds, err = st.ActiveFeeds(ctx, left.ID)
	require.NoError(t, err)
	require.Len(t, feeds, 1)
	assert.Equal(t, "Top!", feeds[0].Name)

	require.NoError(t, st.DeleteFeeds(ctx, left.ID))
	feeds, err = st.ActiveFeeds(ctx, left.ID)
	require.NoError(t, err)
	assert.Empty(t, feeds)
}

func article(sourceID, url string, published time.Time) domain.Article {
	return domain.Article{
		ID:          url,
		SourceID:    sourceID,
		Title:       "Title " + url,
		Summary:     "Summary",
		URL:         url,
		Author:      domain.UnknownAuthor,
		Keywords:    []string{"alpha", "beta"},
		PublishedAt: published.UTC().Truncate(time.Second),
		Active:      true,
	}
}

func testAdmitOnce(t *testing.T, st storage.Store) {
	ctx := context.Background()
	defer st.Close()
	src := SeedSource(t, st, domain.Source{Name: "S", Slug: "s", Bias: domain.BiasCenter, Active: true})

	exists, err := st.ArticleExists(ctx, "https://a.example/1")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, st.CreateArticle(ctx, article(src.ID, "https://a.example/1", time.Now())))
	err = st.CreateArticle(ctx, article(src.ID, "https://a.example/1", time.Now()))
	assert.True(t, errors.Is(err, domain.ErrDuplicateArticle))

	exists, err = st.ArticleExists(ctx, "https://a.example/1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func testConcurrentAdmitOnce(t *testing.T, st storage.Store) {
	ctx := context.Background()
	defer st.Close()
	src := SeedSource(t, st, domain.Source{Name: "S", Slug: "s", Bias: domain.BiasCenter, Active: true})

	const writers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		dupes   int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := st.CreateArticle(ctx, article(src.ID, "https://race.example/1", time.Now()))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, domain.ErrDuplicateArticle):
				dupes++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, writers-1, dupes)
}

func testRecentArticles(t *testing.T, st storage.Store) {
	ctx := context.Background()
	defer st.Close()
	a := SeedSource(t, st, domain.Source{Name: "A", Slug: "a", Bias: domain.BiasLeft, Active: true})
	b := SeedSource(t, st, domain.Source{Name: "B", Slug: "b", Bias: domain.BiasRight, Active: true})

	now := time.Now()
	require.NoError(t, st.CreateArticle(ctx, article(a.ID, "https://a.example/old", now.Add(-48*time.Hour))))
	require.NoError(t, st.CreateArticle(ctx, article(a.ID, "https://a.example/new", now.Add(-time.Hour))))
	require.NoError(t, st.CreateArticle(ctx, article(b.ID, "https://b.example/mid", now.Add(-2*time.Hour))))

	all, err := st.RecentArticles(ctx, storage.ArticleQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "https://a.example/new", all[0].URL)
	assert.Equal(t, "https://b.example/mid", all[1].URL)
	assert.Equal(t, []string{"alpha", "beta"}, all[0].Keywords)

	recent, err := st.RecentArticles(ctx, storage.ArticleQuery{Since: now.Add(-24 * time.Hour)})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	onlyA, err := st.RecentArticles(ctx, storage.ArticleQuery{SourceID: a.ID, Limit: 1})
	require.NoError(t, err)
	require.Len(t, onlyA, 1)
	assert.Equal(t, "https://a.example/new", onlyA[0].URL)
}

func testMarks(t *testing.T, st storage.Store) {
	ctx := context.Background()
	defer st.Close()
	src := SeedSource(t, st, domain.Source{Name: "S", Slug: "s", Bias: domain.BiasCenter, Active: true},
		domain.Feed{Name: "F", URL: "https://s.example/f.xml", Active: true})
	feeds, err := st.ActiveFeeds(ctx, src.ID)
	require.NoError(t, err)
	require.Len(t, feeds, 1)

	at := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	require.NoError(t, st.MarkSourceScraped(ctx, src.ID, at))
	require.NoError(t, st.MarkFeedFetched(ctx, feeds[0].ID, at))

	got, err := st.SourceBySlug(ctx, "s")
	require.NoError(t, err)
	require.NotNil(t, got.LastScrapedAt)
	assert.True(t, at.Equal(*got.LastScrapedAt))

	feeds, err = st.ActiveFeeds(ctx, src.ID)
	require.NoError(t, err)
	require.NotNil(t, feeds[0].LastFetchedAt)
	assert.True(t, at.Equal(*feeds[0].LastFetchedAt))

	later := at.Add(time.Hour)
	require.NoError(t, st.MarkSourceScraped(ctx, src.ID, later))
	got, err = st.SourceBySlug(ctx, "s")
	require.NoError(t, err)
	assert.True(t, later.Equal(*got.LastScrapedAt), "last write wins")
}

func testBiasCounts(t *testing.T, st storage.Store) {
	ctx := context.Background()
	defer st.Close()
	left := SeedSource(t, st, domain.Source{Name: "L", Slug: "l", Bias: domain.BiasLeft, Active: true})
	right := SeedSource(t, st, domain.Source{Name: "R", Slug: "r", Bias: domain.BiasRight, Active: true})

	now := time.Now()
	require.NoError(t, st.CreateArticle(ctx, article(left.ID, "https://l.example/1", now)))
	require.NoError(t, st.CreateArticle(ctx, article(left.ID, "https://l.example/2", now)))
	require.NoError(t, st.CreateArticle(ctx, article(right.ID, "https://r.example/1", now)))

	counts, err := st.CountArticlesByBias(ctx, now.Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, counts[domain.BiasLeft])
	assert.Equal(t, 1, counts[domain.BiasRight])
	assert.Equal(t, 0, counts[domain.BiasCenter])
}

func testTruncate(t *testing.T, st storage.Store) {
	ctx := context.Background()
	defer st.Close()
	src := SeedSource(t, st, domain.Source{Name: "S", Slug: "s", Bias: domain.BiasCenter, Active: true})
	require.NoError(t, st.CreateArticle(ctx, article(src.ID, "https://s.example/1", time.Now())))

	require.NoError(t, st.TruncateArticles(ctx))
	exists, err := st.ArticleExists(ctx, "https://s.example/1")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, st.TruncateSources(ctx))
	all, err := st.ListSources(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
