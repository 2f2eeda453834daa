// README: Redis-backed wage-table cache with singleflight loading.
package wage

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const cacheKey = "courier:wage_table:latest"

type Provider interface {
	LatestWageTable(ctx context.Context) (Table, error)
}

// CachedProvider serves the wage table from Redis, loading it from source at
// most once per key expiry. Redis failures degrade to reading source directly.
type CachedProvider struct {
	source Provider
	redis  *redis.Client
	ttl    time.Duration
	log    *slog.Logger
	group  singleflight.Group
}

func NewCachedProvider(source Provider, rdb *redis.Client, ttl time.Duration, log *slog.Logger) *CachedProvider {
	if log == nil {
		log = slog.Default()
	}
	return &CachedProvider{source: source, redis: rdb, ttl: ttl, log: log}
}

func (c *CachedProvider) LatestWageTable(ctx context.Context) (Table, error) {
	raw, err := c.redis.Get(ctx, cacheKey).Bytes()
	if err == nil {
		var t Table
		uerr := json.Unmarshal(raw, &t)
		if uerr == nil {
			return t, nil
		}
		c.log.Warn("wage cache: corrupt entry", "error", uerr)
	} else if !errors.Is(err, redis.Nil) {
		c.log.Warn("wage cache: get failed", "error", err)
	}

	v, err, _ := c.group.Do(cacheKey, func() (any, error) {
		t, err := c.source.LatestWageTable(ctx)
		if err != nil {
			return Table{}, err
		}
		if b, err := json.Marshal(t); err == nil {
			if err := c.redis.Set(ctx, cacheKey, b, c.ttl).Err(); err != nil {
				c.log.Warn("wage cache: set failed", "error", err)
			}
		}
		return t, nil
	})
	if err != nil {
		return Table{}, err
	}
	return v.(Table), nil
}

// Invalidate drops the cached table after finance publishes a new one.
func (c *CachedProvider) Invalidate(ctx context.Context) error {
	return c.redis.Del(ctx, cacheKey).Err()
}
