package catalog

import (
	"context"
	"errors"
	"testing"
)

func TestMemStore_UpsertAndLookup(t *testing.T) {
	t.Parallel()

	s := NewMemStore()
	ctx := context.Background()

	p := Product{ID: "p1", Name: "Midnight Roast", Category: "dark"}
	if err := s.UpsertProduct(ctx, p); err != nil {
		t.Fatalf("UpsertProduct: %v", err)
	}

	got, err := s.Product(ctx, "p1")
	if err != nil {
		t.Fatalf("Product: %v", err)
	}
	if got.Name != "Midnight Roast" {
		t.Errorf("Name = %q, want %q", got.Name, "Midnight Roast")
	}
	if got.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be set on upsert")
	}

	if _, err := s.Product(ctx, "missing"); !errors.Is(err, ErrProductNotFound) {
		t.Errorf("missing product: err = %v, want ErrProductNotFound", err)
	}

	byName, err := s.ProductByName(ctx, "midnight roast")
	if err != nil {
		t.Fatalf("ProductByName: %v", err)
	}
	if byName.ID != "p1" {
		t.Errorf("ProductByName ID = %q, want p1", byName.ID)
	}
}

func TestMemStore_UpsertReplaces(t *testing.T) {
	t.Parallel()

	s := NewMemStore()
	ctx := context.Background()

	if err := s.UpsertProduct(ctx, Product{ID: "p1", Name: "Old"}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertProduct(ctx, Product{ID: "p1", Name: "New"}); err != nil {
		t.Fatal(err)
	}

	n, err := s.CountProducts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("CountProducts = %d, want 1", n)
	}

	got, _ := s.Product(ctx, "p1")
	if got.Name != "New" {
		t.Errorf("Name = %q, want New", got.Name)
	}
}

func TestMemStore_NearestProducts(t *testing.T) {
	t.Parallel()

	s := NewMemStore()
	ctx := context.Background()

	products := []Product{
		{ID: "close", Embedding: []float32{1, 0, 0}},
		{ID: "far", Embedding: []float32{0, 1, 0}},
		{ID: "mid", Embedding: []float32{1, 1, 0}},
		{ID: "unembedded"},
	}
	for _, p := range products {
		if err := s.UpsertProduct(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.NearestProducts(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("NearestProducts: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Product.ID != "close" {
		t.Errorf("first = %q, want close", got[0].Product.ID)
	}
	if got[1].Product.ID != "mid" {
		t.Errorf("second = %q, want mid", got[1].Product.ID)
	}
	if got[0].Distance > got[1].Distance {
		t.Error("candidates not ordered by ascending distance")
	}
}

func TestMemStore_NearestProducts_Empty(t *testing.T) {
	t.Parallel()

	s := NewMemStore()
	got, err := s.NearestProducts(context.Background(), []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("NearestProducts: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}

func TestMemStore_Locations(t *testing.T) {
	t.Parallel()

	s := NewMemStore()
	ctx := context.Background()

	locs := []StoreLocation{
		{ID: "l1", Name: "Downtown", City: "Portland"},
		{ID: "l2", Name: "Eastside", City: "Portland"},
		{ID: "l3", Name: "Pike", City: "Seattle"},
	}
	for _, loc := range locs {
		if err := s.UpsertLocation(ctx, loc); err != nil {
			t.Fatal(err)
		}
	}

	pdx, err := s.LocationsByCity(ctx, "portland")
	if err != nil {
		t.Fatal(err)
	}
	if len(pdx) != 2 {
		t.Errorf("portland locations = %d, want 2", len(pdx))
	}

	all, err := s.LocationsByCity(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("all locations = %d, want 3", len(all))
	}
}

func TestProduct_EmbeddingText(t *testing.T) {
	t.Parallel()

	p := Product{
		Name:        "Cascade Blend",
		Category:    "medium",
		Description: "Balanced and sweet",
		Notes:       []string{"caramel", "hazelnut"},
	}
	got := p.EmbeddingText()
	want := "Cascade Blend. medium. Balanced and sweet. caramel, hazelnut"
	if got != want {
		t.Errorf("EmbeddingText = %q, want %q", got, want)
	}

	empty := Product{Name: "Solo"}
	if empty.EmbeddingText() != "Solo" {
		t.Errorf("EmbeddingText = %q, want Solo", empty.EmbeddingText())
	}
}
