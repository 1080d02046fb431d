package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adda-Baaj/balance-news/internal/domain"
	"github.com/Adda-Baaj/balance-news/internal/ingest"
	"github.com/Adda-Baaj/balance-news/internal/storage"
	"github.com/Adda-Baaj/balance-news/internal/storage/memory"
	"github.com/Adda-Baaj/balance-news/internal/storage/storagetest"
	"github.com/Adda-Baaj/balance-news/pkg/feeds"
)

var fixedNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

type item struct {
	title string
	link  string
	date  string
}

func rssDoc(items ...item) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>Test</title>`)
	for _, it := range items {
		fmt.Fprintf(&b, `<item><title>%s</title><link>%s</link><description>%s body text</description><pubDate>%s</pubDate></item>`,
			it.title, it.link, it.title, it.date)
	}
	b.WriteString(`</channel></rss>`)
	return b.String()
}

func ago(d time.Duration) string {
	return fixedNow.Add(-d).Format(time.RFC1123Z)
}

// feedServer serves documents by path; paths missing from docs answer 500.
func feedServer(t *testing.T, docs map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		doc, ok := docs[r.URL.Path]
		if !ok {
			http.Error(w, "upstream exploded", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
		_, _ = w.Write([]byte(doc))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newAggregator(st ingest.Store, opts ...ingest.Option) *ingest.Aggregator {
	opts = append([]ingest.Option{ingest.WithClock(clock)}, opts...)
	return ingest.NewAggregator(st, feeds.NewFetcher(nil, nil, feeds.WithTimeout(2*time.Second)), nil, opts...)
}

func seed(t *testing.T, st storage.Store, slug string, feedURLs ...string) domain.Source {
	t.Helper()
	var list []domain.Feed
	for i, u := range feedURLs {
		list = append(list, domain.Feed{Name: fmt.Sprintf("feed-%d", i), URL: u, Category: "politics", Active: true})
	}
	return storagetest.SeedSource(t, st, domain.Source{Name: slug, Slug: slug, Bias: domain.BiasCenter, Active: true}, list...)
}

func TestFetchOneSource_IsolatesFailingFeed(t *testing.T) {
	srv := feedServer(t, map[string]string{
		"/a.xml": rssDoc(item{"Alpha story", "https://a.example/1", ago(time.Hour)}),
		"/c.xml": rssDoc(item{"Gamma story", "https://c.example/1", ago(time.Hour)}, item{"Gamma second", "https://c.example/2", ago(2 * time.Hour)}),
	})
	st := memory.New()
	src := seed(t, st, "three", srv.URL+"/a.xml", srv.URL+"/b.xml", srv.URL+"/c.xml")

	res := newAggregator(st).FetchOneSource(context.Background(), src, 24)

	assert.Equal(t, ingest.StateSucceeded, res.State)
	assert.Equal(t, 3, res.Report.FeedsAttempted)
	assert.Equal(t, 2, res.Report.FeedsSucceeded)
	assert.Equal(t, 1, res.Report.FeedsFailed)
	assert.Equal(t, 3, res.Report.Admitted)
	assert.Len(t, res.Articles, 3)

	var failed []ingest.FeedResult
	for _, fr := range res.Feeds {
		if fr.State == ingest.StateFailed {
			failed = append(failed, fr)
		}
	}
	require.Len(t, failed, 1)
	assert.True(t, strings.HasSuffix(failed[0].Feed.URL, "/b.xml"))
	var fetchErr *domain.FetchFailedError
	require.True(t, errors.As(failed[0].Err, &fetchErr))
	assert.Equal(t, http.StatusInternalServerError, fetchErr.Status)
}

func TestFetchOneSource_DoesNotWriteTimestamps(t *testing.T) {
	srv := feedServer(t, map[string]string{"/a.xml": rssDoc(item{"Alpha", "https://a.example/1", ago(time.Hour)})})
	st := memory.New()
	src := seed(t, st, "quiet", srv.URL+"/a.xml")
	ctx := context.Background()

	agg := newAggregator(st)
	res := agg.FetchOneSource(ctx, src, 24)

	got, err := st.SourceBySlug(ctx, "quiet")
	require.NoError(t, err)
	assert.Nil(t, got.LastScrapedAt)

	muts := res.Mutations()
	require.Len(t, muts, 2)
	assert.Equal(t, ingest.FeedFetched, muts[0].Kind)
	assert.Equal(t, ingest.SourceScraped, muts[1].Kind)
	assert.Equal(t, src.ID, muts[1].ID)

	agg.Apply(ctx, muts)
	got, err = st.SourceBySlug(ctx, "quiet")
	require.NoError(t, err)
	require.NotNil(t, got.LastScrapedAt)
	assert.True(t, fixedNow.Equal(*got.LastScrapedAt))

	list, err := st.ActiveFeeds(ctx, src.ID)
	require.NoError(t, err)
	require.NotNil(t, list[0].LastFetchedAt)
}

func TestFetchAllSources_Idempotent(t *testing.T) {
	srv := feedServer(t, map[string]string{
		"/a.xml": rssDoc(item{"Alpha", "https://a.example/1", ago(time.Hour)}, item{"Beta", "https://a.example/2", ago(3 * time.Hour)}),
	})
	st := memory.New()
	seed(t, st, "repeat", srv.URL+"/a.xml")
	ctx := context.Background()
	agg := newAggregator(st)

	first, err := agg.FetchAllSources(ctx, nil, 24)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Report.Admitted)
	assert.Len(t, first.Articles, 2)

	second, err := agg.FetchAllSources(ctx, nil, 24)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Report.Admitted)
	assert.Equal(t, 2, second.Report.Duplicates)

	all, err := st.RecentArticles(ctx, storage.ArticleQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestFetchAllSources_WindowBoundaryInclusive(t *testing.T) {
	srv := feedServer(t, map[string]string{
		"/a.xml": rssDoc(
			item{"Exactly on the edge", "https://a.example/edge", ago(24 * time.Hour)},
			item{"One second too old", "https://a.example/old", ago(24*time.Hour + time.Second)},
		),
	})
	st := memory.New()
	seed(t, st, "edge", srv.URL+"/a.xml")

	run, err := newAggregator(st).FetchAllSources(context.Background(), nil, 24)
	require.NoError(t, err)

	assert.Equal(t, 1, run.Report.Admitted)
	assert.Equal(t, 1, run.Report.OutOfWindow)
	require.Len(t, run.Articles, 1)
	assert.Equal(t, "https://a.example/edge", run.Articles[0].URL)
}

func TestFetchAllSources_UnparseableDateIsNow(t *testing.T) {
	srv := feedServer(t, map[string]string{
		"/a.xml": rssDoc(item{"Mystery date", "https://a.example/m", "sometime last week-ish"}),
	})
	st := memory.New()
	seed(t, st, "fuzzy", srv.URL+"/a.xml")

	run, err := newAggregator(st).FetchAllSources(context.Background(), nil, 24)
	require.NoError(t, err)
	require.Len(t, run.Articles, 1)
	assert.True(t, fixedNow.Equal(run.Articles[0].PublishedAt))
}

func TestFetchAllSources_SameLinkTwiceInOneFeed(t *testing.T) {
	srv := feedServer(t, map[string]string{
		"/a.xml": rssDoc(
			item{"Older copy", "https://a.example/1", ago(2 * time.Hour)},
			item{"Newer copy", "https://a.example/1", ago(10 * time.Minute)},
		),
	})
	st := memory.New()
	seed(t, st, "twice", srv.URL+"/a.xml")
	ctx := context.Background()

	run, err := newAggregator(st).FetchAllSources(ctx, nil, 24)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Report.Admitted)
	assert.Equal(t, 1, run.Report.Duplicates)

	all, err := st.RecentArticles(ctx, storage.ArticleQuery{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "https://a.example/1", all[0].URL)
}

func TestFetchAllSources_SharedLinkAcrossConcurrentFeeds(t *testing.T) {
	docs := map[string]string{}
	for i := 0; i < 6; i++ {
		docs[fmt.Sprintf("/f%d.xml", i)] = rssDoc(item{"Syndicated", "https://wire.example/story", ago(time.Hour)})
	}
	srv := feedServer(t, docs)
	var urls []string
	for path := range docs {
		urls = append(urls, srv.URL+path)
	}
	st := memory.New()
	seed(t, st, "wire", urls...)

	run, err := newAggregator(st, ingest.WithWorkers(6)).FetchAllSources(context.Background(), nil, 24)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Report.Admitted)
	assert.Equal(t, 5, run.Report.Duplicates)
}

func TestFetchOneSource_LegacyFeedFallback(t *testing.T) {
	srv := feedServer(t, map[string]string{"/legacy.xml": rssDoc(item{"Legacy", "https://l.example/1", ago(time.Hour)})})
	st := memory.New()
	src := storagetest.SeedSource(t, st, domain.Source{
		Name: "Legacy", Slug: "legacy", Bias: domain.BiasRight, Active: true, LegacyFeedURL: srv.URL + "/legacy.xml",
	})

	res := newAggregator(st).FetchOneSource(context.Background(), src, 24)
	require.Len(t, res.Feeds, 1)
	assert.True(t, res.Feeds[0].Feed.Synthetic())
	assert.Equal(t, domain.LegacyFeedName, res.Feeds[0].Feed.Name)
	require.Len(t, res.Articles, 1)
	assert.Equal(t, domain.DefaultFeedCategory, res.Articles[0].Category)

	muts := res.Mutations()
	require.Len(t, muts, 1)
	assert.Equal(t, ingest.SourceScraped, muts[0].Kind)
}

func TestFetchOneSource_NoFeedsAtAll(t *testing.T) {
	st := memory.New()
	src := seed(t, st, "empty")

	res := newAggregator(st).FetchOneSource(context.Background(), src, 24)
	assert.Equal(t, ingest.StateSucceeded, res.State)
	assert.Empty(t, res.Feeds)
	assert.Empty(t, res.Articles)
}

func TestFetchOneSource_MalformedFeedIsolated(t *testing.T) {
	srv := feedServer(t, map[string]string{
		"/bad.xml":  `<rss><channel><item><title>cut`,
		"/good.xml": rssDoc(item{"Fine", "https://g.example/1", ago(time.Hour)}),
	})
	st := memory.New()
	src := seed(t, st, "mixed", srv.URL+"/bad.xml", srv.URL+"/good.xml")

	res := newAggregator(st).FetchOneSource(context.Background(), src, 24)
	assert.Equal(t, 1, res.Report.FeedsFailed)
	assert.Equal(t, 1, res.Report.Admitted)
	for _, fr := range res.Feeds {
		if fr.State == ingest.StateFailed {
			var malformed *domain.MalformedFeedError
			assert.True(t, errors.As(fr.Err, &malformed))
		}
	}
}

func TestFetchOneSource_ItemWithoutLink(t *testing.T) {
	srv := feedServer(t, map[string]string{
		"/a.xml": rssDoc(item{"No link", "", ago(time.Hour)}, item{"Linked", "https://a.example/ok", ago(time.Hour)}),
	})
	st := memory.New()
	src := seed(t, st, "linkless", srv.URL+"/a.xml")

	res := newAggregator(st).FetchOneSource(context.Background(), src, 24)
	assert.Equal(t, ingest.StateSucceeded, res.State)
	assert.Equal(t, 1, res.Report.ItemErrors)
	assert.Equal(t, 1, res.Report.Admitted)
}

func TestFetchAllSources_NoSources(t *testing.T) {
	st := memory.New()
	storagetest.SeedSource(t, st, domain.Source{Name: "Off", Slug: "off", Active: false})

	_, err := newAggregator(st).FetchAllSources(context.Background(), nil, 24)
	assert.True(t, errors.Is(err, domain.ErrNoSources))

	_, err = newAggregator(st).FetchAllSources(context.Background(), []string{"nope"}, 24)
	assert.True(t, errors.Is(err, domain.ErrNoSources))
}

func TestFetchAllSources_SlugFilterAndMarks(t *testing.T) {
	srv := feedServer(t, map[string]string{
		"/a.xml": rssDoc(item{"A", "https://a.example/1", ago(time.Hour)}),
		"/b.xml": rssDoc(item{"B", "https://b.example/1", ago(time.Hour)}),
	})
	st := memory.New()
	seed(t, st, "alpha", srv.URL+"/a.xml")
	seed(t, st, "bravo", srv.URL+"/b.xml")
	ctx := context.Background()

	run, err := newAggregator(st).FetchAllSources(ctx, ingest.ParseSlugs("bravo"), 24)
	require.NoError(t, err)
	require.Len(t, run.Sources, 1)
	assert.Equal(t, "bravo", run.Sources[0].Source.Slug)
	assert.Equal(t, 1, run.Report.SourcesSucceeded)

	bravo, err := st.SourceBySlug(ctx, "bravo")
	require.NoError(t, err)
	assert.NotNil(t, bravo.LastScrapedAt)
	alpha, err := st.SourceBySlug(ctx, "alpha")
	require.NoError(t, err)
	assert.Nil(t, alpha.LastScrapedAt)
}

type stubEnricher struct{}

func (stubEnricher) Enrich(_ context.Context, arts []domain.Article) []domain.Article {
	out := make([]domain.Article, len(arts))
	for i, a := range arts {
		a.ImageURL = "https://img.example/" + a.ID + ".jpg"
		out[i] = a
	}
	return out
}

type recordingNotifier struct {
	mu   sync.Mutex
	seen []string
}

func (n *recordingNotifier) ArticleAdmitted(_ context.Context, src domain.Source, art domain.Article) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seen = append(n.seen, src.Slug+"|"+art.URL)
}

func TestFetchAllSources_EnrichesAndNotifies(t *testing.T) {
	srv := feedServer(t, map[string]string{"/a.xml": rssDoc(item{"Pictured", "https://a.example/p", ago(time.Hour)})})
	st := memory.New()
	seed(t, st, "pics", srv.URL+"/a.xml")
	ctx := context.Background()
	notifier := &recordingNotifier{}

	agg := newAggregator(st, ingest.WithEnricher(stubEnricher{}), ingest.WithNotifier(notifier))
	run, err := agg.FetchAllSources(ctx, nil, 24)
	require.NoError(t, err)
	require.Len(t, run.Articles, 1)
	assert.True(t, strings.HasPrefix(run.Articles[0].ImageURL, "https://img.example/"))
	assert.Equal(t, []string{"pics|https://a.example/p"}, notifier.seen)

	stored, err := st.RecentArticles(ctx, storage.ArticleQuery{})
	require.NoError(t, err)
	assert.Equal(t, run.Articles[0].ImageURL, stored[0].ImageURL)

	// a second run admits nothing and notifies nobody
	_, err = agg.FetchAllSources(ctx, nil, 24)
	require.NoError(t, err)
	assert.Len(t, notifier.seen, 1)
}

func TestParseSlugs(t *testing.T) {
	assert.Nil(t, ingest.ParseSlugs("all"))
	assert.Nil(t, ingest.ParseSlugs(""))
	assert.Equal(t, []string{"a", "b"}, ingest.ParseSlugs(" a, ,b "))
}

func TestRefreshByBias_OrdersLeftToRight(t *testing.T) {
	srv := feedServer(t, map[string]string{"/a.xml": rssDoc(item{"Shared", "https://shared.example/1", ago(time.Hour)})})
	st := memory.New()
	for slug, bias := range map[string]domain.BiasLabel{
		"r": domain.BiasRight, "c": domain.BiasCenter, "l": domain.BiasLeft, "ll": domain.BiasLeanLeft,
	} {
		storagetest.SeedSource(t, st, domain.Source{Name: slug, Slug: slug, Bias: bias, Active: true},
			domain.Feed{Name: "f", URL: srv.URL + "/a.xml", Active: true})
	}

	run, err := newAggregator(st).RefreshByBias(context.Background(), 24)
	require.NoError(t, err)

	var order []string
	for _, res := range run.Sources {
		order = append(order, res.Source.Slug)
	}
	assert.Equal(t, []string{"l", "ll", "c", "r"}, order)
	assert.Equal(t, 1, run.Report.Admitted)
	assert.Equal(t, 3, run.Report.Duplicates)
	require.Len(t, run.Articles, 1)
	assert.Equal(t, run.Sources[0].Source.ID, run.Articles[0].SourceID, "leftmost source wins the shared link")
}
