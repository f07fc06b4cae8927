package embedding

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// shardCount is the number of stripes in the in-process tier. A power of
// two so the shard index is a cheap mask.
const shardCount = 16

// DefaultTTL bounds persistent-tier entries when the config leaves the
// TTL unset.
const DefaultTTL = 7 * 24 * time.Hour

// Store is the persistent second tier of the cache.
// Implementations must be safe for concurrent use.
type Store interface {
	// GetVector returns the vector stored under key. A row whose expiry
	// has passed is reported as a miss even if it still exists; a hit
	// increments the row's hit counter as a side effect.
	GetVector(ctx context.Context, key string) ([]float32, bool, error)

	// PutVector atomically inserts or replaces the row for key. The
	// original text travels along for operability (inspecting hot keys).
	PutVector(ctx context.Context, key, text string, v []float32, ttl time.Duration) error
}

// shard is one stripe of the in-process tier.
type shard struct {
	mu sync.RWMutex
	m  map[string][]float32
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	MemoryHits     int64 `json:"memory_hits"`
	PersistentHits int64 `json:"persistent_hits"`
	Misses         int64 `json:"misses"`
	MemoryEntries  int   `json:"memory_entries"`
}

// Cache is the two-tier embedding cache. The in-process tier is global,
// mutable, and shared by every in-flight request, so every access goes
// through a per-shard RWMutex; the persistent tier is shared across
// processes through the Store.
type Cache struct {
	embedder Embedder
	store    Store
	ttl      time.Duration
	logger   *slog.Logger

	shards [shardCount]*shard

	memHits  atomic.Int64
	persHits atomic.Int64
	misses   atomic.Int64
}

// NewCache builds a cache over the given embedder and persistent store.
// store may be nil, degrading to a single-tier in-process cache. A zero
// ttl falls back to DefaultTTL; a nil logger discards output.
func NewCache(embedder Embedder, store Store, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.New(nopHandler{})
	}
	c := &Cache{
		embedder: embedder,
		store:    store,
		ttl:      ttl,
		logger:   logger,
	}
	for i := range c.shards {
		c.shards[i] = &shard{m: make(map[string][]float32)}
	}
	return c
}

// GetOrCreate returns the embedding for text and whether it came from a
// cache tier. Lookup order: in-process map by normalized text, then the
// persistent store by content hash, then the embedder. Embedder failures
// propagate; persistent-tier write failures are logged and swallowed
// because the in-process tier already holds the value for this process.
//
// The returned slice is shared; callers must not mutate it.
func (c *Cache) GetOrCreate(ctx context.Context, text string) ([]float32, bool, error) {
	norm := Normalize(text)
	if norm == "" {
		return nil, false, ErrEmptyText
	}

	if v, ok := c.lookupMemory(norm); ok {
		c.memHits.Add(1)
		return v, true, nil
	}

	key := CacheKey(norm, c.embedder.ModelName())

	if c.store != nil {
		v, ok, err := c.store.GetVector(ctx, key)
		if err != nil {
			// A broken persistent tier must not fail the request; fall
			// through to the embedder.
			c.logger.Warn("embedding cache: persistent read failed", "error", err)
		} else if ok {
			c.storeMemory(norm, v)
			c.persHits.Add(1)
			return v, true, nil
		}
	}

	v, err := c.embedder.Embed(ctx, norm)
	if err != nil {
		return nil, false, err
	}
	c.misses.Add(1)

	c.storeMemory(norm, v)
	if c.store != nil {
		if err := c.store.PutVector(ctx, key, norm, v, c.ttl); err != nil {
			c.logger.Warn("embedding cache: persistent write failed", "key", key, "error", err)
		}
	}
	return v, false, nil
}

// Embed returns the embedding for text, consulting the cache tiers
// first. It adapts the cache to call sites (seeding, backfill) that do
// not care which tier the vector came from.
func (c *Cache) Embed(ctx context.Context, text string) ([]float32, error) {
	v, _, err := c.GetOrCreate(ctx, text)
	return v, err
}

// Stats returns hit/miss counters and the in-process entry count.
func (c *Cache) Stats() Stats {
	s := Stats{
		MemoryHits:     c.memHits.Load(),
		PersistentHits: c.persHits.Load(),
		Misses:         c.misses.Load(),
	}
	for _, sh := range c.shards {
		sh.mu.RLock()
		s.MemoryEntries += len(sh.m)
		sh.mu.RUnlock()
	}
	return s
}

func (c *Cache) shardFor(norm string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(norm))
	return c.shards[h.Sum32()&(shardCount-1)]
}

func (c *Cache) lookupMemory(norm string) ([]float32, bool) {
	sh := c.shardFor(norm)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	v, ok := sh.m[norm]
	return v, ok
}

func (c *Cache) storeMemory(norm string, v []float32) {
	sh := c.shardFor(norm)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.m[norm] = v
}

// nopHandler is a slog.Handler that discards all log records.
// Enabled returns false so slog skips formatting entirely (zero cost).
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }
