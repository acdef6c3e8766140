// Package server is the HTTP transport: request framing, filter resolution
// against the lookup tables, label hydration of raw hits, and the optional
// Redis-backed result cache.
package server

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/tradegazette/gsearch/internal/search"
	"github.com/tradegazette/gsearch/pkg/config"
	"github.com/tradegazette/gsearch/pkg/metrics"
	pkgredis "github.com/tradegazette/gsearch/pkg/redis"
)

const cacheKeyPrefix = "gsearch:"

// QueryCache caches fully rendered search responses in Redis, collapsing
// concurrent identical queries through singleflight.
type QueryCache struct {
	client  *pkgredis.Client
	cfg     config.RedisConfig
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// NewQueryCache creates a QueryCache. metrics may be nil.
func NewQueryCache(client *pkgredis.Client, cfg config.RedisConfig, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		client:  client,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// GetOrCompute returns the cached response for the filters, or computes,
// stores, and returns it. The bool reports a cache hit.
func (c *QueryCache) GetOrCompute(ctx context.Context, f search.Filters, compute func() (*SearchResponse, error)) (*SearchResponse, bool, error) {
	key := c.buildKey(f)
	if resp, ok := c.get(ctx, key); ok {
		return resp, true, nil
	}
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if resp, ok := c.get(ctx, key); ok {
			return resp, nil
		}
		resp, err := compute()
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, resp)
		return resp, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*SearchResponse), false, nil
}

func (c *QueryCache) get(ctx context.Context, key string) (*SearchResponse, bool) {
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	var resp SearchResponse
	if err := json.Unmarshal([]byte(data), &resp); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	return &resp, true
}

func (c *QueryCache) set(ctx context.Context, key string, resp *SearchResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.cfg.CacheTTL); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// Invalidate removes every cached search response.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.client.FlushByPattern(ctx, cacheKeyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

// Stats returns process-local hit/miss counters.
func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// buildKey canonicalizes the filters so logically identical queries share a
// cache entry.
func (c *QueryCache) buildKey(f search.Filters) string {
	raw := fmt.Sprintf("city=%s|type=%s|company=%s|from=%s|to=%s|limit=%d",
		fmtCode(f.CityCode), fmtCode(f.TypeCode), fmtCode(f.CompanyCode),
		f.DateFrom, f.DateTo, f.Limit)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", cacheKeyPrefix, sum[:16])
}

func fmtCode(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}
