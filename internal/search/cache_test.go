package search

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/cloudnetkb/knowledge-base-api/internal/data/redisStore"
	"github.com/cloudnetkb/knowledge-base-api/internal/domain/docmodel"
)

func newMiniredisCache(t *testing.T) (*RedisResponseCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewTestResponseCache(redisStore.NewTestStore(client)), mr
}

func sampleResponse(query string) *Response {
	return &Response{
		Total:      1,
		Query:      query,
		SearchType: "semantic",
		Results: []Result{{
			ID:        1,
			Title:     "title",
			Content:   "content",
			Source:    "doc.md",
			Score:     0.9,
			Highlight: []string{},
		}},
	}
}

func TestCacheKey_SensitiveToAllParameters(t *testing.T) {
	base := CacheKey("q", 10, 0, 0.1, docmodel.SearchFilters{})
	variants := []string{
		CacheKey("other", 10, 0, 0.1, docmodel.SearchFilters{}),
		CacheKey("q", 20, 0, 0.1, docmodel.SearchFilters{}),
		CacheKey("q", 10, 5, 0.1, docmodel.SearchFilters{}),
		CacheKey("q", 10, 0, 0.3, docmodel.SearchFilters{}),
		CacheKey("q", 10, 0, 0.1, docmodel.SearchFilters{Provider: "AWS"}),
		CacheKey("q", 10, 0, 0.1, docmodel.SearchFilters{Category: "VPN"}),
	}
	for i, v := range variants {
		if v == base {
			t.Errorf("variant %d collides with base key", i)
		}
	}
	if base != CacheKey("q", 10, 0, 0.1, docmodel.SearchFilters{}) {
		t.Error("key is not deterministic")
	}
}

func TestRedisResponseCache_RoundTrip(t *testing.T) {
	cache, _ := newMiniredisCache(t)
	ctx := context.Background()
	key := CacheKey("负载均衡", 10, 0, 0.1, docmodel.SearchFilters{})

	if _, ok := cache.Get(ctx, key); ok {
		t.Fatal("expected miss on empty cache")
	}

	cache.Set(ctx, key, sampleResponse("负载均衡"))
	resp, ok := cache.Get(ctx, key)
	if !ok {
		t.Fatal("expected hit after set")
	}
	if resp.Query != "负载均衡" || resp.Total != 1 || resp.Results[0].Score != 0.9 {
		t.Errorf("cached response mismatch: %+v", resp)
	}
}

func TestRedisResponseCache_Flush(t *testing.T) {
	cache, _ := newMiniredisCache(t)
	ctx := context.Background()

	keys := []string{
		CacheKey("one", 10, 0, 0.1, docmodel.SearchFilters{}),
		CacheKey("two", 10, 0, 0.1, docmodel.SearchFilters{}),
	}
	for _, k := range keys {
		cache.Set(ctx, k, sampleResponse("q"))
	}

	cache.Flush(ctx)
	for _, k := range keys {
		if _, ok := cache.Get(ctx, k); ok {
			t.Errorf("key %s survived flush", k)
		}
	}
}

func TestRedisResponseCache_TTLExpiry(t *testing.T) {
	cache, mr := newMiniredisCache(t)
	ctx := context.Background()
	key := CacheKey("q", 10, 0, 0.1, docmodel.SearchFilters{})

	cache.Set(ctx, key, sampleResponse("q"))
	mr.FastForward(11 * time.Minute) // past the TTL

	if _, ok := cache.Get(ctx, key); ok {
		t.Error("entry survived past TTL")
	}
}

func TestMemoryResponseCache(t *testing.T) {
	cache := NewMemoryResponseCache()
	ctx := context.Background()
	key := CacheKey("q", 10, 0, 0.1, docmodel.SearchFilters{})

	if _, ok := cache.Get(ctx, key); ok {
		t.Fatal("expected miss on empty cache")
	}
	cache.Set(ctx, key, sampleResponse("q"))
	if resp, ok := cache.Get(ctx, key); !ok || resp.Total != 1 {
		t.Fatal("expected hit after set")
	}
	cache.Flush(ctx)
	if _, ok := cache.Get(ctx, key); ok {
		t.Error("entry survived flush")
	}
}
