package intent

import (
	"context"
	"sync"
)

// MemStore is an in-memory exemplar store for the memory storage driver
// and tests.
type MemStore struct {
	mu    sync.RWMutex
	byID  map[string]*Exemplar
	order []string
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{byID: make(map[string]*Exemplar)}
}

// All returns every exemplar in insertion order.
func (s *MemStore) All(_ context.Context) ([]Exemplar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Exemplar, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, cloneExemplar(s.byID[id]))
	}
	return out, nil
}

// Put inserts or replaces an exemplar by ID.
func (s *MemStore) Put(_ context.Context, ex Exemplar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[ex.ID]; !exists {
		s.order = append(s.order, ex.ID)
	}
	c := cloneExemplar(&ex)
	s.byID[ex.ID] = &c
	return nil
}

// SaveEmbedding attaches a generated embedding to an exemplar.
func (s *MemStore) SaveEmbedding(_ context.Context, id string, vec []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ex, ok := s.byID[id]
	if !ok {
		return ErrExemplarNotFound
	}
	ex.Embedding = append([]float32(nil), vec...)
	return nil
}

// IncrementUsage bumps the usage counter of an exemplar.
func (s *MemStore) IncrementUsage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ex, ok := s.byID[id]
	if !ok {
		return ErrExemplarNotFound
	}
	ex.UsageCount++
	return nil
}

func cloneExemplar(ex *Exemplar) Exemplar {
	c := *ex
	c.Embedding = append([]float32(nil), ex.Embedding...)
	return c
}
