package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRestyClient_GetSendsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "balance-test/1.0", r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))
	defer srv.Close()

	c := NewRestyClient(time.Second)
	resp, err := c.Get(context.Background(), srv.URL, map[string]string{"User-Agent": "balance-test/1.0"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, resp.StatusCode())
	assert.Equal(t, "short and stout", string(resp.Body()))
}

func TestRestyClient_DoPostsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		b, _ := io.ReadAll(r.Body)
		_, _ = w.Write(b)
	}))
	defer srv.Close()

	c := NewRestyClient(time.Second)
	resp, err := c.Do(context.Background(), http.MethodPost, srv.URL, nil, []byte(`{"ok":true}`))
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(resp.Body()))
}

func TestRestyClient_TimeoutIsEnforced(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewRestyClient(50 * time.Millisecond)
	start := time.Now()
	_, err := c.Get(context.Background(), srv.URL, nil)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
