package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adda-Baaj/balance-news/internal/domain"
)

const articlePage = `<!doctype html><html><head>
<title>Story</title>
<meta property="og:description" content="A &amp; B agree on a plan">
<meta property="og:image" content="/img/lead.jpg">
</head><body><p>text</p></body></html>`

func TestScraper_Enrich(t *testing.T) {
	var (
		mu    sync.Mutex
		gotUA string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotUA = r.Header.Get("User-Agent")
		mu.Unlock()
		switch r.URL.Path {
		case "/story":
			_, _ = w.Write([]byte(articlePage))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s := NewScraper(nil, nil, WithUserAgent("BalanceNewsTest/1.0"))
	in := []domain.Article{
		{URL: srv.URL + "/story"},
		{URL: srv.URL + "/story", Summary: "kept", ImageURL: "https://cdn.example/own.png"},
		{URL: srv.URL + "/missing", Title: "unchanged"},
	}
	out := s.Enrich(context.Background(), in)

	require.Len(t, out, 3)
	assert.Equal(t, srv.URL+"/img/lead.jpg", out[0].ImageURL)
	assert.Equal(t, "A & B agree on a plan", out[0].Summary)
	assert.Equal(t, "https://cdn.example/own.png", out[1].ImageURL)
	assert.Equal(t, "kept", out[1].Summary)
	assert.Equal(t, in[2], out[2])
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "BalanceNewsTest/1.0", gotUA)
}

func TestScraper_EnrichEmpty(t *testing.T) {
	assert.Empty(t, NewScraper(nil, nil).Enrich(context.Background(), nil))
}

func TestScraper_EnrichReturnsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(articlePage))
	}))
	defer srv.Close()

	articles := make([]domain.Article, maxArticleWorkers+5)
	for i := range articles {
		articles[i] = domain.Article{URL: srv.URL + "/story", Title: "t"}
	}

	s := NewScraper(nil, nil, WithRequestDelay(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	done := make(chan []domain.Article, 1)
	go func() { done <- s.Enrich(ctx, articles) }()

	select {
	case out := <-done:
		require.Len(t, out, len(articles))
		assert.Equal(t, articles, out, "cancelled articles come back unchanged")
	case <-time.After(3 * time.Second):
		t.Fatal("Enrich did not return after cancellation")
	}
}

func TestParseMeta_Fallbacks(t *testing.T) {
	meta, err := parseMeta([]byte(`<html><head>
<meta name="description" content="plain description">
<meta name="twitter:image" content="https://cdn.example/t.jpg">
</head></html>`))
	require.NoError(t, err)
	assert.Equal(t, "plain description", meta.Description)
	assert.Equal(t, "https://cdn.example/t.jpg", meta.ImageURL)
}

func TestResolveURL(t *testing.T) {
	assert.Equal(t, "https://a.example/x/y.png", resolveURL("y.png", "https://a.example/x/story"))
	assert.Equal(t, "https://cdn.example/z.png", resolveURL("https://cdn.example/z.png", "https://a.example/"))
	assert.Equal(t, "", resolveURL("", "https://a.example/"))
}
