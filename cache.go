package registry

import (
	"context"
	"fmt"
	"hash/fnv"
	"net/url"
	"sort"
	"sync"
	"time"
)

// Store is the cache backing store contract: a key-value store with TTL
// semantics (Redis in production, in-memory in tests). Both operations are
// fallible; failures are non-fatal to the request path.
type Store interface {
	// Get returns the payload for key, a found flag, and any store error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores payload under key with the given TTL.
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error

	// Delete removes key from the store.
	Delete(ctx context.Context, key string) error
}

// ResponseCache memoizes successful response payloads. A backing-store
// outage never fails a request: errors are logged and the cache degrades to
// always-miss, letting the pipeline fall through to a direct call.
type ResponseCache struct {
	store   Store
	ttl     time.Duration
	logger  Logger
	metrics *MetricsCollector
}

// NewResponseCache wraps a Store with the default TTL used when Put is
// called with ttl zero.
func NewResponseCache(store Store, ttl time.Duration) *ResponseCache {
	return &ResponseCache{store: store, ttl: ttl}
}

// Get looks up key, swallowing store errors as misses.
func (rc *ResponseCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if rc == nil || rc.store == nil {
		return nil, false
	}

	payload, found, err := rc.store.Get(ctx, key)
	if err != nil {
		if rc.logger != nil {
			rc.logger.Warn("cache get failed, treating as miss", "key", key, "error", err.Error())
		}
		if rc.metrics != nil {
			rc.metrics.RecordCacheError("get")
		}
		return nil, false
	}
	return payload, found
}

// Put stores payload under key, swallowing store errors.
func (rc *ResponseCache) Put(ctx context.Context, key string, payload []byte, ttl time.Duration) {
	if rc == nil || rc.store == nil {
		return
	}
	if ttl <= 0 {
		ttl = rc.ttl
	}

	if err := rc.store.Set(ctx, key, payload, ttl); err != nil {
		if rc.logger != nil {
			rc.logger.Warn("cache set failed, response not memoized", "key", key, "error", err.Error())
		}
		if rc.metrics != nil {
			rc.metrics.RecordCacheError("set")
		}
	}
}

// Invalidate removes key, swallowing store errors.
func (rc *ResponseCache) Invalidate(ctx context.Context, key string) {
	if rc == nil || rc.store == nil {
		return
	}
	if err := rc.store.Delete(ctx, key); err != nil && rc.logger != nil {
		rc.logger.Warn("cache delete failed", "key", key, "error", err.Error())
	}
}

// CacheKey builds a stable key from the endpoint path and query parameters.
// Parameters are sorted by key and value before hashing so logically
// identical queries hit the same entry regardless of insertion order.
// Credentials are never part of params at this point (the API key is
// appended at send time).
func CacheKey(path string, params url.Values) string {
	h := fnv.New64a()
	h.Write([]byte(path))

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		values := append([]string(nil), params[k]...)
		sort.Strings(values)
		for _, v := range values {
			h.Write([]byte{0})
			h.Write([]byte(k))
			h.Write([]byte{'='})
			h.Write([]byte(v))
		}
	}

	return fmt.Sprintf("registry:v1:%016x", h.Sum64())
}

// Per-request cache control travels through the context so individual calls
// can bypass or re-tune caching without a dedicated parameter plumbed
// through every layer.
type contextKey string

const cacheControlKey contextKey = "registry_cache_control"

type cacheControl struct {
	enabled bool
	ttl     time.Duration
}

// WithContextCacheDisabled disables response caching for this request.
func WithContextCacheDisabled(ctx context.Context) context.Context {
	return context.WithValue(ctx, cacheControlKey, &cacheControl{enabled: false})
}

// WithContextCacheTTL enables caching with a custom TTL for this request.
func WithContextCacheTTL(ctx context.Context, ttl time.Duration) context.Context {
	return context.WithValue(ctx, cacheControlKey, &cacheControl{enabled: true, ttl: ttl})
}

func cacheControlFrom(ctx context.Context) (*cacheControl, bool) {
	cc, ok := ctx.Value(cacheControlKey).(*cacheControl)
	return cc, ok
}

// memoryStore is a sharded in-memory Store used as the default backend and
// in tests. Expiry is checked lazily on Get.
type memoryStore struct {
	shards    []*memoryShard
	numShards int
}

type memoryShard struct {
	mu    sync.RWMutex
	store map[string]memoryEntry
}

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

// NewMemoryStore creates an in-memory Store. It never returns errors.
func NewMemoryStore() Store {
	const numShards = 16
	shards := make([]*memoryShard, numShards)
	for i := range shards {
		shards[i] = &memoryShard{store: make(map[string]memoryEntry)}
	}
	return &memoryStore{shards: shards, numShards: numShards}
}

func (m *memoryStore) shard(key string) *memoryShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return m.shards[h.Sum32()%uint32(m.numShards)]
}

func (m *memoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s := m.shard(key)
	s.mu.RLock()
	entry, exists := s.store[key]
	s.mu.RUnlock()

	if !exists {
		return nil, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.store, key)
		s.mu.Unlock()
		return nil, false, nil
	}
	return entry.payload, true, nil
}

func (m *memoryStore) Set(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	s := m.shard(key)
	s.mu.Lock()
	s.store[key] = memoryEntry{payload: payload, expiresAt: time.Now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	s := m.shard(key)
	s.mu.Lock()
	delete(s.store, key)
	s.mu.Unlock()
	return nil
}

// Len reports the number of live entries, for the cache size gauge.
func (m *memoryStore) Len() int {
	total := 0
	for _, s := range m.shards {
		s.mu.RLock()
		total += len(s.store)
		s.mu.RUnlock()
	}
	return total
}
