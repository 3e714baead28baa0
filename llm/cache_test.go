package llm

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestToolCallKey_CanonicalArguments(t *testing.T) {
	a := ToolCallKey("stock_price", json.RawMessage(`{"symbol":"RELIANCE","exchange":"NSE"}`))
	b := ToolCallKey("stock_price", json.RawMessage(`{ "exchange": "NSE", "symbol": "RELIANCE" }`))
	assert.Equal(t, a, b, "key order and whitespace must not change the key")

	c := ToolCallKey("stock_news", json.RawMessage(`{"symbol":"RELIANCE","exchange":"NSE"}`))
	assert.NotEqual(t, a, c, "tool name is part of the key")

	d := ToolCallKey("stock_price", json.RawMessage(`{"symbol":"TCS"}`))
	assert.NotEqual(t, a, d)
}

func TestToolCallKey_EmptyArguments(t *testing.T) {
	a := ToolCallKey("stock_price", nil)
	b := ToolCallKey("stock_price", json.RawMessage(``))
	assert.Equal(t, a, b)
}

func TestToolCache_LocalTier(t *testing.T) {
	cache := NewToolCache("run-1", nil, nil, zap.NewNop())
	ctx := context.Background()

	_, err := cache.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	key := ToolCallKey("stock_price", json.RawMessage(`{"symbol":"RELIANCE"}`))
	require.NoError(t, cache.Set(ctx, key, json.RawMessage(`{"price":2950.4}`)))

	entry, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"price":2950.4}`, string(entry.Result))
}

func TestToolCache_RedisTier(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := &ToolCacheConfig{
		LocalMaxSize: 10,
		LocalTTL:     time.Minute,
		RedisTTL:     time.Minute,
		EnableLocal:  true,
		EnableRedis:  true,
	}

	ctx := context.Background()
	key := ToolCallKey("stock_news", json.RawMessage(`{"symbol":"RELIANCE"}`))

	writer := NewToolCache("run-1", rdb, cfg, zap.NewNop())
	require.NoError(t, writer.Set(ctx, key, json.RawMessage(`{"headlines":["q1 results"]}`)))

	// A fresh cache with the same namespace has a cold local tier and must
	// fall through to Redis.
	reader := NewToolCache("run-1", rdb, cfg, zap.NewNop())
	entry, err := reader.Get(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"headlines":["q1 results"]}`, string(entry.Result))

	// A different namespace must not see the entry.
	other := NewToolCache("run-2", rdb, cfg, zap.NewNop())
	_, err = other.Get(ctx, key)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	cache := NewLRUCache(2, time.Minute)

	cache.Set("a", &ToolCacheEntry{Result: json.RawMessage(`1`)})
	cache.Set("b", &ToolCacheEntry{Result: json.RawMessage(`2`)})

	// Touch "a" so "b" becomes the eviction candidate.
	_, ok := cache.Get("a")
	require.True(t, ok)

	cache.Set("c", &ToolCacheEntry{Result: json.RawMessage(`3`)})

	_, ok = cache.Get("b")
	assert.False(t, ok, "least recently used entry should be evicted")
	_, ok = cache.Get("a")
	assert.True(t, ok)
	_, ok = cache.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, cache.Len())
}

func TestLRUCache_TTLExpiry(t *testing.T) {
	cache := NewLRUCache(10, 10*time.Millisecond)
	cache.Set("a", &ToolCacheEntry{Result: json.RawMessage(`1`)})

	time.Sleep(20 * time.Millisecond)

	_, ok := cache.Get("a")
	assert.False(t, ok)
}
