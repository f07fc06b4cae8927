// Package respcache caches full chat responses keyed by everything that
// can change the answer. Today that is the normalized query text and
// the persona; adding a response-altering input means extending the key,
// or distinct contexts bleed into each other.
package respcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/cuppalabs/cuppa/internal/embedding"
)

// DefaultTTL bounds cached responses when the config leaves the TTL
// unset. Responses go stale faster than embeddings; the catalog changes
// under them.
const DefaultTTL = time.Hour

// CachedResponse is the persisted answer payload.
type CachedResponse struct {
	Answer     string   `json:"answer"`
	Intent     string   `json:"intent"`
	ProductIDs []string `json:"product_ids,omitempty"`
}

// Store is the persistent backing of the cache.
// Implementations must be safe for concurrent use.
type Store interface {
	// GetResponse returns the payload stored under key. An expired row
	// is a miss even if present; a hit increments the row's counter.
	GetResponse(ctx context.Context, key string) (CachedResponse, bool, error)

	// PutResponse atomically inserts or replaces the row for key.
	// Replacing an existing row resets its hit counter to zero.
	PutResponse(ctx context.Context, key string, resp CachedResponse, ttl time.Duration) error
}

// Key derives the cache key from the query and persona. The query is
// normalized first so trivial casing and spacing variants share an
// entry.
func Key(query, persona string) string {
	norm := embedding.Normalize(query)
	h := sha256.New()
	h.Write([]byte(norm))
	h.Write([]byte{'\n'})
	h.Write([]byte(persona))
	return hex.EncodeToString(h.Sum(nil))
}

// Cache wraps a Store with logging and TTL defaults.
type Cache struct {
	store  Store
	ttl    time.Duration
	logger *slog.Logger
}

// NewCache builds a cache over store. A zero ttl falls back to
// DefaultTTL; a nil logger discards output.
func NewCache(store Store, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.New(nopHandler{})
	}
	return &Cache{store: store, ttl: ttl, logger: logger}
}

// Get returns the cached response for key, if fresh.
func (c *Cache) Get(ctx context.Context, key string) (CachedResponse, bool, error) {
	return c.store.GetResponse(ctx, key)
}

// Set upserts resp under key with the configured TTL. Failures are
// logged and swallowed: losing a cache write must never fail the
// request that produced the answer.
func (c *Cache) Set(ctx context.Context, key string, resp CachedResponse) {
	if err := c.store.PutResponse(ctx, key, resp, c.ttl); err != nil {
		c.logger.Warn("respcache: write failed", "key", key, "error", err)
	}
}

// nopHandler is a slog.Handler that discards all log records.
// Enabled returns false so slog skips formatting entirely (zero cost).
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }
