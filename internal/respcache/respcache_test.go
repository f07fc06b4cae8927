package respcache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestKeyNormalizesQueryAndScopesPersona(t *testing.T) {
	t.Parallel()

	base := Key("i need something bold", "enthusiast")
	if got := Key("  I Need   Something BOLD ", "enthusiast"); got != base {
		t.Error("normalization variants produced different keys")
	}
	if got := Key("i need something bold", "novice"); got == base {
		t.Error("different personas share a key")
	}
	if got := Key("an entirely different query", "enthusiast"); got == base {
		t.Error("different queries share a key")
	}
	if len(base) != 64 {
		t.Errorf("key length = %d, want 64 hex chars", len(base))
	}
}

func TestCacheMissThenHit(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	cache := NewCache(store, time.Hour, nil)
	ctx := context.Background()
	key := Key("i need something bold", "enthusiast")

	if _, ok, err := cache.Get(ctx, key); err != nil || ok {
		t.Fatalf("first Get: ok=%v err=%v, want miss", ok, err)
	}

	cache.Set(ctx, key, CachedResponse{Answer: "Try the Midnight Roast.", Intent: "PRODUCT_RAG"})

	resp, ok, err := cache.Get(ctx, key)
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if !ok {
		t.Fatal("second Get missed after Set")
	}
	if resp.Answer != "Try the Midnight Roast." {
		t.Errorf("answer = %q", resp.Answer)
	}
}

func TestMemStoreExpiryIsMiss(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }
	ctx := context.Background()

	if err := store.PutResponse(ctx, "k", CachedResponse{Answer: "hi"}, time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}

	if _, ok, _ := store.GetResponse(ctx, "k"); !ok {
		t.Fatal("fresh row missed")
	}

	clock = clock.Add(2 * time.Minute)
	if _, ok, _ := store.GetResponse(ctx, "k"); ok {
		t.Error("expired row returned as hit")
	}
}

func TestMemStoreHitCountLifecycle(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	ctx := context.Background()

	if err := store.PutResponse(ctx, "k", CachedResponse{Answer: "v1"}, time.Hour); err != nil {
		t.Fatalf("put: %v", err)
	}
	store.GetResponse(ctx, "k")
	store.GetResponse(ctx, "k")
	if got := store.HitCount("k"); got != 2 {
		t.Errorf("hit count = %d, want 2", got)
	}

	// Upsert replaces the payload and restarts the hit-lifecycle.
	if err := store.PutResponse(ctx, "k", CachedResponse{Answer: "v2"}, time.Hour); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if got := store.HitCount("k"); got != 0 {
		t.Errorf("hit count after upsert = %d, want 0", got)
	}
	resp, ok, _ := store.GetResponse(ctx, "k")
	if !ok || resp.Answer != "v2" {
		t.Errorf("after upsert got (%q, %v), want fresh payload", resp.Answer, ok)
	}
}

func TestMemStoreSweepExpired(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }
	ctx := context.Background()

	store.PutResponse(ctx, "short", CachedResponse{}, time.Minute)
	store.PutResponse(ctx, "long", CachedResponse{}, time.Hour)

	clock = clock.Add(10 * time.Minute)
	dropped, err := store.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
	if _, ok, _ := store.GetResponse(ctx, "long"); !ok {
		t.Error("unexpired row swept")
	}
}

// failStore always errors to exercise the swallow path.
type failStore struct{}

func (failStore) GetResponse(context.Context, string) (CachedResponse, bool, error) {
	return CachedResponse{}, false, errors.New("respcache: backend down")
}

func (failStore) PutResponse(context.Context, string, CachedResponse, time.Duration) error {
	return errors.New("respcache: backend down")
}

func TestCacheSetSwallowsWriteFailure(t *testing.T) {
	t.Parallel()

	cache := NewCache(failStore{}, time.Hour, nil)
	// Must not panic or propagate; the request keeps its answer.
	cache.Set(context.Background(), "k", CachedResponse{Answer: "a"})
}
