package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrCacheMiss indicates cache miss.
var ErrCacheMiss = errors.New("cache miss")

// ToolCacheEntry represents a cached tool result.
type ToolCacheEntry struct {
	Result    json.RawMessage `json:"result"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
	HitCount  int             `json:"hit_count"`
}

// ToolCacheConfig configures the tool-result cache.
type ToolCacheConfig struct {
	LocalMaxSize int           `json:"local_max_size"`
	LocalTTL     time.Duration `json:"local_ttl"`
	RedisTTL     time.Duration `json:"redis_ttl"`
	EnableLocal  bool          `json:"enable_local"`
	EnableRedis  bool          `json:"enable_redis"`
}

// DefaultToolCacheConfig returns sensible defaults.
func DefaultToolCacheConfig() *ToolCacheConfig {
	return &ToolCacheConfig{
		LocalMaxSize: 1000,
		LocalTTL:     5 * time.Minute,
		RedisTTL:     30 * time.Minute,
		EnableLocal:  true,
		EnableRedis:  false,
	}
}

// ToolCache caches successful tool results for agents that enable caching.
// Entries are scoped to a single run through the namespace, so a repeated
// (tool, arguments) pair inside one run short-circuits to the stored result
// while separate runs never observe each other's entries.
type ToolCache struct {
	namespace string
	local     *LRUCache
	redis     *redis.Client
	config    *ToolCacheConfig
	logger    *zap.Logger
}

// NewToolCache creates a tool-result cache. rdb may be nil when the Redis
// tier is disabled. namespace isolates entries, typically the run ID.
func NewToolCache(namespace string, rdb *redis.Client, config *ToolCacheConfig, logger *zap.Logger) *ToolCache {
	if config == nil {
		config = DefaultToolCacheConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var local *LRUCache
	if config.EnableLocal {
		local = NewLRUCache(config.LocalMaxSize, config.LocalTTL)
	}

	return &ToolCache{
		namespace: namespace,
		local:     local,
		redis:     rdb,
		config:    config,
		logger:    logger,
	}
}

// Get retrieves a cached tool result.
func (c *ToolCache) Get(ctx context.Context, key string) (*ToolCacheEntry, error) {
	if c.config.EnableLocal && c.local != nil {
		if entry, ok := c.local.Get(key); ok {
			return entry, nil
		}
	}

	if c.config.EnableRedis && c.redis != nil {
		data, err := c.redis.Get(ctx, c.redisKey(key)).Bytes()
		if err == nil {
			var entry ToolCacheEntry
			if err := json.Unmarshal(data, &entry); err == nil {
				if c.config.EnableLocal && c.local != nil {
					c.local.Set(key, &entry)
				}
				return &entry, nil
			}
		}
	}

	return nil, ErrCacheMiss
}

// Set stores a successful tool result.
func (c *ToolCache) Set(ctx context.Context, key string, result json.RawMessage) error {
	entry := &ToolCacheEntry{
		Result:    result,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(c.config.RedisTTL),
	}

	if c.config.EnableLocal && c.local != nil {
		c.local.Set(key, entry)
	}

	if c.config.EnableRedis && c.redis != nil {
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return c.redis.Set(ctx, c.redisKey(key), data, c.config.RedisTTL).Err()
	}

	return nil
}

func (c *ToolCache) redisKey(key string) string {
	return "crewline:toolcache:" + c.namespace + ":" + key
}

// ToolCallKey derives a cache key from a tool name and its JSON arguments.
// Arguments are canonicalized (object keys sorted) so that formatting
// differences do not defeat the cache.
func ToolCallKey(name string, args json.RawMessage) string {
	canonical := canonicalJSON(args)
	data, _ := json.Marshal(struct {
		Name string          `json:"name"`
		Args json.RawMessage `json:"args"`
	}{
		Name: name,
		Args: canonical,
	})
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:16])
}

// canonicalJSON re-marshals args so object keys come out sorted. Invalid or
// empty input is mapped to JSON null, matching how the executor treats it.
func canonicalJSON(args json.RawMessage) json.RawMessage {
	if len(args) == 0 {
		return json.RawMessage("null")
	}
	var v any
	if err := json.Unmarshal(args, &v); err != nil {
		return args
	}
	out, err := json.Marshal(v)
	if err != nil {
		return args
	}
	return out
}

// LRUCache is a simple LRU cache with per-entry TTL.
type LRUCache struct {
	mu       sync.RWMutex
	capacity int
	ttl      time.Duration
	items    map[string]*lruNode
	head     *lruNode
	tail     *lruNode
}

type lruNode struct {
	key       string
	entry     *ToolCacheEntry
	expiresAt time.Time
	prev      *lruNode
	next      *lruNode
}

// NewLRUCache creates a new LRU cache.
func NewLRUCache(capacity int, ttl time.Duration) *LRUCache {
	if capacity <= 0 {
		capacity = 1000
	}
	return &LRUCache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*lruNode),
	}
}

// Get retrieves from cache.
func (c *LRUCache) Get(key string) (*ToolCacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.items[key]
	if !ok {
		return nil, false
	}

	if time.Now().After(node.expiresAt) {
		c.removeNode(node)
		delete(c.items, key)
		return nil, false
	}

	c.moveToHead(node)
	node.entry.HitCount++
	return node.entry, true
}

// Set stores in cache.
func (c *LRUCache) Set(key string, entry *ToolCacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if node, ok := c.items[key]; ok {
		node.entry = entry
		node.expiresAt = time.Now().Add(c.ttl)
		c.moveToHead(node)
		return
	}

	if len(c.items) >= c.capacity {
		c.evictTail()
	}

	node := &lruNode{
		key:       key,
		entry:     entry,
		expiresAt: time.Now().Add(c.ttl),
	}
	c.items[key] = node
	c.addToHead(node)
}

// Len returns the number of live entries.
func (c *LRUCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *LRUCache) addToHead(node *lruNode) {
	node.prev = nil
	node.next = c.head
	if c.head != nil {
		c.head.prev = node
	}
	c.head = node
	if c.tail == nil {
		c.tail = node
	}
}

func (c *LRUCache) removeNode(node *lruNode) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		c.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		c.tail = node.prev
	}
}

func (c *LRUCache) moveToHead(node *lruNode) {
	if node == c.head {
		return
	}
	c.removeNode(node)
	c.addToHead(node)
}

func (c *LRUCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.items, c.tail.key)
	c.removeNode(c.tail)
}
