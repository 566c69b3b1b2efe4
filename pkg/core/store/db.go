// Package store persists rating reports in PostgreSQL.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	pool *pgxpool.Pool
	once sync.Once
)

// InitDB initializes the shared connection pool from a PostgreSQL DSN and
// verifies it with a ping. Later calls return the first call's error.
func InitDB(ctx context.Context, dsn string) error {
	var err error
	once.Do(func() {
		if dsn == "" {
			err = fmt.Errorf("database URL not set")
			return
		}

		config, parseErr := pgxpool.ParseConfig(dsn)
		if parseErr != nil {
			err = fmt.Errorf("failed to parse database config: %w", parseErr)
			return
		}

		p, connErr := pgxpool.NewWithConfig(ctx, config)
		if connErr != nil {
			err = fmt.Errorf("failed to create pool: %w", connErr)
			return
		}
		if pingErr := p.Ping(ctx); pingErr != nil {
			p.Close()
			err = fmt.Errorf("failed to reach database: %w", pingErr)
			return
		}
		pool = p
	})
	return err
}

// GetPool returns the database connection pool
func GetPool() *pgxpool.Pool {
	return pool
}

// Close closes the database connection pool
func Close() {
	if pool != nil {
		pool.Close()
	}
}
