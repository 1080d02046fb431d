package publishers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adda-Baaj/balance-news/internal/domain"
)

func sampleEvent() Event {
	src := domain.Source{ID: "s1", Slug: "daily", Name: "Daily", Bias: domain.BiasLeanLeft}
	art := domain.Article{
		ID: "a1", URL: "https://daily.example/1", Title: "Headline", Keywords: []string{"headline"},
		PublishedAt: time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC),
	}
	return NewArticleAdmitted(src, art, time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC))
}

func TestHTTPPublisher_Publish(t *testing.T) {
	var (
		got    Event
		header http.Header
		method string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		header = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	cfg := sanitizePublisherConfig(PublisherConfig{
		ID: "hook", Type: TypeHTTP,
		HTTP: &HTTPPublisherConfig{URL: srv.URL, Method: "put", Headers: map[string]string{"X-Token": "t"}},
	})
	pub, err := newHTTPPublisher(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "hook", pub.ID())
	assert.Equal(t, TypeHTTP, pub.Type())

	evt := sampleEvent()
	require.NoError(t, pub.Publish(context.Background(), evt))

	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "t", header.Get("X-Token"))
	assert.Equal(t, "application/json", header.Get("Content-Type"))
	assert.Equal(t, evt.ID, got.ID)
	assert.Equal(t, EventArticleAdmitted, got.Type)
	assert.Equal(t, "daily", got.Source.Slug)
	assert.Equal(t, "lean-left", got.Source.Bias)
	assert.Equal(t, "https://daily.example/1", got.Article.URL)
	assert.True(t, evt.Article.PublishedAt.Equal(got.Article.PublishedAt))
}

func TestHTTPPublisher_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := sanitizePublisherConfig(PublisherConfig{ID: "hook", Type: TypeHTTP, HTTP: &HTTPPublisherConfig{URL: srv.URL}})
	pub, err := newHTTPPublisher(context.Background(), cfg, nil)
	require.NoError(t, err)

	err = pub.Publish(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestNewHTTPPublisher_MissingConfig(t *testing.T) {
	_, err := newHTTPPublisher(context.Background(), PublisherConfig{ID: "x", Type: TypeHTTP}, nil)
	assert.Error(t, err)
}
