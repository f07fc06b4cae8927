// Package catalog defines the product and store-location models and the
// storage contract the search engine and orchestrator tools consume.
// Persistent drivers live in modules/store; an in-memory driver suitable
// for tests and single-node development lives in this package.
package catalog

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Sentinel errors for catalog lookups.
var (
	ErrProductNotFound  = errors.New("catalog: product not found")
	ErrLocationNotFound = errors.New("catalog: location not found")
)

// Product is a single catalog item. Embedding is populated at seed time
// from EmbeddingText; rows without a vector are invisible to search
// until a later seeding run fills them in.
type Product struct {
	ID          string
	Name        string
	Category    string
	Origin      string
	Description string
	Notes       []string
	PriceCents  int64
	Embedding   []float32
	UpdatedAt   time.Time
}

// EmbeddingText returns the canonical text a product is embedded from.
// Changing this invalidates stored product embeddings, so it concatenates
// fields in a fixed order.
func (p Product) EmbeddingText() string {
	parts := []string{p.Name, p.Category, p.Origin, p.Description}
	if len(p.Notes) > 0 {
		parts = append(parts, strings.Join(p.Notes, ", "))
	}
	var b strings.Builder
	for _, s := range parts {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(". ")
		}
		b.WriteString(s)
	}
	return b.String()
}

// StoreLocation is a physical retail location surfaced by the
// find_store_locations tool.
type StoreLocation struct {
	ID        string
	Name      string
	Address   string
	City      string
	Latitude  float64
	Longitude float64
	Hours     string
}

// Candidate pairs a product with its raw cosine distance to a query
// vector. Distance is the store-native metric; conversion to a bounded
// similarity happens in the search engine, nowhere else.
type Candidate struct {
	Product  Product
	Distance float64
}

// Store is the persistence contract for the catalog.
// Implementations must be safe for concurrent use.
type Store interface {
	// UpsertProduct inserts the product or replaces an existing row
	// with the same ID.
	UpsertProduct(ctx context.Context, p Product) error

	// Product returns the product with the given ID, or ErrProductNotFound.
	Product(ctx context.Context, id string) (Product, error)

	// ProductByName returns the first product whose name matches
	// case-insensitively, or ErrProductNotFound.
	ProductByName(ctx context.Context, name string) (Product, error)

	// NearestProducts returns up to limit products ordered by ascending
	// cosine distance to qvec. Products without an embedding are skipped.
	// An empty catalog yields an empty slice, not an error.
	NearestProducts(ctx context.Context, qvec []float32, limit int) ([]Candidate, error)

	// CountProducts returns the number of stored products.
	CountProducts(ctx context.Context) (int, error)

	// UpsertLocation inserts or replaces a store location.
	UpsertLocation(ctx context.Context, loc StoreLocation) error

	// LocationsByCity returns locations in the given city
	// (case-insensitive). An empty city returns all locations.
	LocationsByCity(ctx context.Context, city string) ([]StoreLocation, error)
}
