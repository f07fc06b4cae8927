// Package metrics records per-request search telemetry and exposes
// Prometheus counters for the pipeline.
package metrics

import (
	"context"
	"sync"
	"time"
)

// SearchMetric is the write-once timing record for one query. Appended
// after the pipeline finishes; aggregation happens elsewhere.
type SearchMetric struct {
	QueryID         string
	UserID          string
	Query           string
	Intent          string
	EmbeddingMs     int64
	SearchMs        int64
	TotalMs         int64
	SimilarityScore float64
	ResultCount     int
	FromCache       bool
	CreatedAt       time.Time
}

// Store persists search metrics. Writes are idempotent appends; there
// is nothing to roll back if a request dies mid-flight.
type Store interface {
	AppendSearchMetric(ctx context.Context, m SearchMetric) error
	RecentSearchMetrics(ctx context.Context, limit int) ([]SearchMetric, error)
}

// MemStore is an in-memory metric store for the memory storage driver
// and tests.
type MemStore struct {
	mu      sync.Mutex
	metrics []SearchMetric
	now     func() time.Time
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{now: time.Now}
}

// AppendSearchMetric implements Store.
func (s *MemStore) AppendSearchMetric(_ context.Context, m SearchMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	s.metrics = append(s.metrics, m)
	return nil
}

// RecentSearchMetrics implements Store, newest first.
func (s *MemStore) RecentSearchMetrics(_ context.Context, limit int) ([]SearchMetric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.metrics) {
		limit = len(s.metrics)
	}
	out := make([]SearchMetric, 0, limit)
	for i := len(s.metrics) - 1; i >= len(s.metrics)-limit; i-- {
		out = append(out, s.metrics[i])
	}
	return out, nil
}
