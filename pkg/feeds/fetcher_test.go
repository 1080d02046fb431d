package feeds

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adda-Baaj/balance-news/internal/domain"
)

func serve(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetcher_FetchParsesFeed(t *testing.T) {
	doc := readFixture(t, "rss2.xml")
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "balance-test/2.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
		_, _ = w.Write(doc)
	})

	f := NewFetcher(nil, nil, WithUserAgent("balance-test/2.0"))
	items, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestFetcher_NonSuccessStatus(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusServiceUnavailable)
	})

	_, err := NewFetcher(nil, nil).Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	var fe *domain.FetchFailedError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusServiceUnavailable, fe.Status)
	assert.Contains(t, fe.Body, "upstream unavailable")
	assert.Equal(t, srv.URL, fe.URL)
}

func TestFetcher_MalformedBody(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<rss><channel><item><title>broken`))
	})

	_, err := NewFetcher(nil, nil).Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	var mf *domain.MalformedFeedError
	require.True(t, errors.As(err, &mf))
	assert.Equal(t, srv.URL, mf.URL)
}

func TestFetcher_TranscodesLatin1(t *testing.T) {
	body := []byte("<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>" +
		"<rss version=\"2.0\"><channel><item><title>Caf\xe9 society</title>" +
		"<link>https://e.example/cafe</link></item></channel></rss>")
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write(body)
	})

	items, err := NewFetcher(nil, nil).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Café society", items[0].Title)
}

func TestFetcher_TimeoutIsFetchFailed(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	_, err := NewFetcher(nil, nil, WithTimeout(100*time.Millisecond)).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	var fe *domain.FetchFailedError
	require.True(t, errors.As(err, &fe))
	assert.NotNil(t, fe.Err)
}

func TestToUTF8(t *testing.T) {
	t.Run("valid utf-8 untouched", func(t *testing.T) {
		in := []byte(`<?xml version="1.0" encoding="ISO-8859-1"?><a>plain</a>`)
		assert.Equal(t, in, toUTF8(in, ""))
	})
	t.Run("declaration rewritten", func(t *testing.T) {
		out := toUTF8([]byte("<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?><a>\xe9</a>"), "")
		assert.Equal(t, `<?xml version="1.0" encoding="UTF-8"?><a>é</a>`, string(out))
	})
	t.Run("lying utf-8 header falls back to windows-1252", func(t *testing.T) {
		out := toUTF8([]byte("<a>\x93quoted\x94</a>"), "text/xml; charset=utf-8")
		assert.Equal(t, "<a>“quoted”</a>", string(out))
	})
}
