package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cloudnetkb/knowledge-base-api/internal/config"
	"github.com/cloudnetkb/knowledge-base-api/internal/data/redisStore"
	"github.com/cloudnetkb/knowledge-base-api/internal/domain/docmodel"
	"github.com/cloudnetkb/knowledge-base-api/pkg/logger_i"
)

const cacheKeyPrefix = "search:"

// ResponseCache keeps whole search responses for a short TTL. Every
// index mutation flushes it, so a hit can never serve deleted content.
type ResponseCache interface {
	Get(ctx context.Context, key string) (*Response, bool)
	Set(ctx context.Context, key string, resp *Response)
	Flush(ctx context.Context)
}

// CacheKey derives a stable key from every request parameter that can
// change the response.
func CacheKey(query string, limit, offset int, minScore float64, filters docmodel.SearchFilters) string {
	raw := fmt.Sprintf("%s|%d|%d|%g|%s|%s|%s",
		query, limit, offset, minScore, filters.Provider, filters.Category, filters.Filename)
	sum := sha256.Sum256([]byte(raw))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

// RedisResponseCache stores serialized responses in redis. All failures
// degrade to cache misses; the cache never breaks a search.
type RedisResponseCache struct {
	store  *redisStore.Store
	logger *logger_i.Logger
}

// GetRedisResponseCache returns nil when redis is offline.
func GetRedisResponseCache(ctx context.Context) *RedisResponseCache {
	store := redisStore.GetRedisStore(ctx, config.RedisCacheDB)
	if store == nil {
		return nil
	}
	return &RedisResponseCache{
		store:  store,
		logger: logger_i.NewLogger("Search Cache"),
	}
}

// NewTestResponseCache wires an externally-created store, for miniredis
// tests.
func NewTestResponseCache(store *redisStore.Store) *RedisResponseCache {
	return &RedisResponseCache{
		store:  store,
		logger: logger_i.NewLogger("Search Cache"),
	}
}

func (c *RedisResponseCache) Get(ctx context.Context, key string) (*Response, bool) {
	val, err := c.store.Get(ctx, key)
	if c.store.IsNil(err) {
		return nil, false
	}
	if err != nil {
		c.logger.Error("cache read failed", "error", err)
		return nil, false
	}

	var resp Response
	if err := json.Unmarshal([]byte(val), &resp); err != nil {
		c.logger.Error("cache entry corrupt", "error", err)
		return nil, false
	}
	return &resp, true
}

func (c *RedisResponseCache) Set(ctx context.Context, key string, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("cache serialization failed", "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, config.SearchCacheTTL); err != nil {
		c.logger.Error("cache write failed", "error", err)
	}
}

func (c *RedisResponseCache) Flush(ctx context.Context) {
	if err := c.store.DeleteByPrefix(ctx, cacheKeyPrefix); err != nil {
		c.logger.Error("cache flush failed", "error", err)
	}
}

// MemoryResponseCache is the fallback when redis is offline.
type MemoryResponseCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	resp      *Response
	expiresAt time.Time
}

func NewMemoryResponseCache() *MemoryResponseCache {
	return &MemoryResponseCache{entries: map[string]memoryEntry{}}
}

func (c *MemoryResponseCache) Get(_ context.Context, key string) (*Response, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.resp, true
}

func (c *MemoryResponseCache) Set(_ context.Context, key string, resp *Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{resp: resp, expiresAt: time.Now().Add(config.SearchCacheTTL)}
}

func (c *MemoryResponseCache) Flush(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]memoryEntry{}
}
