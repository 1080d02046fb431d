package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Adda-Baaj/balance-news/internal/storage"
	"github.com/Adda-Baaj/balance-news/internal/storage/postgres"
	"github.com/Adda-Baaj/balance-news/internal/storage/storagetest"
)

// Set HARVESTER_PG_TESTS=1 to run against a disposable postgres container.
func newContainerDSN(t *testing.T) string {
	t.Helper()
	if os.Getenv("HARVESTER_PG_TESTS") == "" {
		t.Skip("HARVESTER_PG_TESTS not set")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:17.5",
		tcpostgres.WithDatabase("harvester_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestStore(t *testing.T) {
	dsn := newContainerDSN(t)
	ctx := context.Background()

	storagetest.Run(t, func(t *testing.T) storage.Store {
		st, err := postgres.Open(ctx, dsn)
		require.NoError(t, err)
		require.NoError(t, st.TruncateSources(ctx))
		return st
	})
}

func TestOpen_EmptyDSN(t *testing.T) {
	_, err := postgres.Open(context.Background(), "  ")
	require.Error(t, err)
}
