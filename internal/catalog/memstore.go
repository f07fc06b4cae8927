package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cuppalabs/cuppa/internal/vec"
)

// MemStore is a concurrency-safe in-memory Store. It keeps insertion
// order so that nearest-neighbor ties resolve deterministically.
type MemStore struct {
	mu        sync.RWMutex
	products  map[string]Product
	order     []string
	locations map[string]StoreLocation

	// now is injectable for testing. Defaults to time.Now.
	now func() time.Time
}

// Compile-time interface guard.
var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory catalog store.
func NewMemStore() *MemStore {
	return &MemStore{
		products:  make(map[string]Product),
		locations: make(map[string]StoreLocation),
		now:       time.Now,
	}
}

// UpsertProduct inserts or replaces the product with the same ID.
func (s *MemStore) UpsertProduct(_ context.Context, p Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[p.ID]; !exists {
		s.order = append(s.order, p.ID)
	}
	p.UpdatedAt = s.now()
	s.products[p.ID] = p
	return nil
}

// Product returns the product with the given ID.
func (s *MemStore) Product(_ context.Context, id string) (Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

// ProductByName returns the first product matching name case-insensitively.
func (s *MemStore) ProductByName(_ context.Context, name string) (Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.order {
		if strings.EqualFold(s.products[id].Name, name) {
			return s.products[id], nil
		}
	}
	return Product{}, ErrProductNotFound
}

// NearestProducts brute-forces cosine distance over all embedded products.
// Ties keep insertion order, matching the deterministic ordering of the
// SQLite driver.
func (s *MemStore) NearestProducts(_ context.Context, qvec []float32, limit int) ([]Candidate, error) {
	if limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := make([]Candidate, 0, len(s.order))
	for _, id := range s.order {
		p := s.products[id]
		if len(p.Embedding) == 0 {
			continue
		}
		d, err := vec.CosineDistance(qvec, p.Embedding)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, Candidate{Product: p, Distance: d})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Distance < candidates[j].Distance
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// CountProducts returns the number of stored products.
func (s *MemStore) CountProducts(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.products), nil
}

// UpsertLocation inserts or replaces a store location.
func (s *MemStore) UpsertLocation(_ context.Context, loc StoreLocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locations[loc.ID] = loc
	return nil
}

// LocationsByCity returns locations matching city case-insensitively,
// or all locations when city is empty.
func (s *MemStore) LocationsByCity(_ context.Context, city string) ([]StoreLocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []StoreLocation
	for _, loc := range s.locations {
		if city == "" || strings.EqualFold(loc.City, city) {
			out = append(out, loc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
