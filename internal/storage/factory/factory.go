// Package factory opens the configured storage backend.
package factory

import (
	"context"
	"fmt"

	"github.com/Adda-Baaj/balance-news/internal/config"
	"github.com/Adda-Baaj/balance-news/internal/logger"
	"github.com/Adda-Baaj/balance-news/internal/storage"
	"github.com/Adda-Baaj/balance-news/internal/storage/bolt"
	"github.com/Adda-Baaj/balance-news/internal/storage/memory"
	"github.com/Adda-Baaj/balance-news/internal/storage/postgres"
)

// NewStore opens the backend named by cfg.Driver.
func NewStore(ctx context.Context, cfg config.StoreConfig, log logger.Logger) (storage.Store, error) {
	log = logger.Ensure(log)

	var (
		st  storage.Store
		err error
	)
	switch cfg.Driver {
	case storage.DriverMemory:
		st = memory.New()
	case storage.DriverBolt:
		st, err = bolt.Open(cfg.BoltPath)
	case storage.DriverPostgres:
		st, err = postgres.OpenWithConfig(ctx, postgres.PoolConfig{
			ConnStr:  cfg.PostgresDSN,
			MaxConns: cfg.PostgresMaxConns,
		})
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}

	log.InfoObj("store opened", "store_open", map[string]any{"driver": cfg.Driver})
	return st, nil
}
