package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// TickerCache memoizes resolved symbol -> CIK pairs across requests.
// Implementations must be safe for concurrent use. A cache miss or a cache
// backend failure both report ok=false; resolution then falls through.
type TickerCache interface {
	Get(ctx context.Context, symbol string) (cik string, ok bool)
	Put(ctx context.Context, symbol, cik string)
}

// MemoryCache is a process-local TickerCache. The first write for a key wins.
type MemoryCache struct {
	entries sync.Map
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

func (c *MemoryCache) Get(ctx context.Context, symbol string) (string, bool) {
	v, ok := c.entries.Load(symbol)
	if !ok {
		return "", false
	}
	return v.(string), true
}

func (c *MemoryCache) Put(ctx context.Context, symbol, cik string) {
	c.entries.LoadOrStore(symbol, cik)
}

// =============================================================================
// REDIS
// =============================================================================

const defaultRedisPrefix = "filing_rating:cik:"

// RedisCache shares resolved identifiers between service instances.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisClient connects to Redis and verifies the connection with PING.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis %s: %w", addr, err)
	}
	return rdb, nil
}

// NewRedisCache wraps an existing client. ttl <= 0 stores keys without expiry.
func NewRedisCache(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: defaultRedisPrefix,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *RedisCache) Get(ctx context.Context, symbol string) (string, bool) {
	cik, err := c.client.Get(ctx, c.prefix+symbol).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Str("symbol", symbol).Msg("Redis lookup failed")
		}
		return "", false
	}
	return cik, true
}

func (c *RedisCache) Put(ctx context.Context, symbol, cik string) {
	// SETNX keeps the first mapping, matching MemoryCache semantics.
	if err := c.client.SetNX(ctx, c.prefix+symbol, cik, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("symbol", symbol).Msg("Redis store failed")
	}
}
