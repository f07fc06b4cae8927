package respcache

import (
	"context"
	"sync"
	"time"
)

type memRow struct {
	resp      CachedResponse
	expiresAt time.Time
	hitCount  int64
}

// MemStore is an in-memory response store for the memory storage driver
// and tests. Expiry is decided by comparison on read; rows linger until
// SweepExpired removes them.
type MemStore struct {
	mu   sync.Mutex
	rows map[string]*memRow
	now  func() time.Time
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{rows: make(map[string]*memRow), now: time.Now}
}

// GetResponse implements Store.
func (s *MemStore) GetResponse(_ context.Context, key string) (CachedResponse, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[key]
	if !ok || s.now().After(row.expiresAt) {
		return CachedResponse{}, false, nil
	}
	row.hitCount++
	return row.resp, true, nil
}

// PutResponse implements Store. Replacing a row restarts its
// hit-lifecycle.
func (s *MemStore) PutResponse(_ context.Context, key string, resp CachedResponse, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[key] = &memRow{resp: resp, expiresAt: s.now().Add(ttl)}
	return nil
}

// HitCount returns the hit counter for key, or 0 if absent.
func (s *MemStore) HitCount(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.rows[key]; ok {
		return row.hitCount
	}
	return 0
}

// SweepExpired removes rows whose expiry has passed and reports how
// many were dropped.
func (s *MemStore) SweepExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var dropped int64
	for key, row := range s.rows {
		if now.After(row.expiresAt) {
			delete(s.rows, key)
			dropped++
		}
	}
	return dropped, nil
}
