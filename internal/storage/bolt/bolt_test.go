package bolt_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adda-Baaj/balance-news/internal/domain"
	"github.com/Adda-Baaj/balance-news/internal/storage"
	"github.com/Adda-Baaj/balance-news/internal/storage/bolt"
	"github.com/Adda-Baaj/balance-news/internal/storage/storagetest"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		st, err := bolt.Open(filepath.Join(t.TempDir(), "harvester.db"))
		require.NoError(t, err)
		return st
	})
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "harvester.db")
	ctx := context.Background()

	st, err := bolt.Open(path)
	require.NoError(t, err)
	src := storagetest.SeedSource(t, st, domain.Source{Name: "S", Slug: "s", Bias: domain.BiasLeanRight, Active: true})
	require.NoError(t, st.CreateArticle(ctx, domain.Article{
		ID: "x", SourceID: src.ID, URL: "https://s.example/1", Title: "T", PublishedAt: time.Now(),
	}))
	require.NoError(t, st.Close())

	st, err = bolt.Open(path)
	require.NoError(t, err)
	defer st.Close()

	exists, err := st.ArticleExists(ctx, "https://s.example/1")
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := st.SourceBySlug(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, domain.BiasLeanRight, got.Bias)
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := bolt.Open("")
	assert.Error(t, err)
}
