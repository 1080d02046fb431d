package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	DefaultMaxConnIdleTime = 5 * time.Minute
	applicationName        = "balance-news-harvester"
)

// PoolConfig tunes the connection pool. A zero MaxConns keeps the pgx default or the
// DSN's pool_max_conns.
type PoolConfig struct {
	ConnStr         string
	MaxConns        int32
	MinConns        int32
	MaxConnIdleTime time.Duration
}

// ConnectionPool owns the pgx pool shared by the store.
type ConnectionPool struct {
	conn *pgxpool.Pool
}

// NewConnectionPool connects and pings. The pool is closed again when the ping fails.
func NewConnectionPool(ctx context.Context, cfg PoolConfig) (*ConnectionPool, error) {
	pcfg, err := cfg.pgxConfig()
	if err != nil {
		return nil, err
	}

	dbpool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := dbpool.Ping(ctx); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &ConnectionPool{conn: dbpool}, nil
}

// pgxConfig parses the DSN and applies the non-zero limits on top of it.
func (c PoolConfig) pgxConfig() (*pgxpool.Config, error) {
	pcfg, err := pgxpool.ParseConfig(c.ConnStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	if c.MaxConns > 0 {
		pcfg.MaxConns = c.MaxConns
	}
	if c.MinConns > 0 && c.MinConns <= pcfg.MaxConns {
		pcfg.MinConns = c.MinConns
	}
	pcfg.MaxConnIdleTime = c.MaxConnIdleTime
	if pcfg.MaxConnIdleTime <= 0 {
		pcfg.MaxConnIdleTime = DefaultMaxConnIdleTime
	}
	if pcfg.ConnConfig.RuntimeParams["application_name"] == "" {
		pcfg.ConnConfig.RuntimeParams["application_name"] = applicationName
	}
	return pcfg, nil
}

func (p *ConnectionPool) GetConn() *pgxpool.Pool {
	return p.conn
}

func (p *ConnectionPool) Close() {
	p.conn.Close()
}
