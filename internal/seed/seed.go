// Package seed loads catalog fixtures from YAML and writes them through
// the stores. It backs the `cuppa seed` command and is safe to run
// repeatedly: products and locations carry their IDs in the file, and
// exemplars are matched by label and phrase so reruns keep their IDs,
// insertion order, and usage counts.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cuppalabs/cuppa/internal/catalog"
	"github.com/cuppalabs/cuppa/internal/intent"
)

// File is the on-disk fixture format.
type File struct {
	Products  []Product  `yaml:"products"`
	Exemplars []Exemplar `yaml:"exemplars"`
	Locations []Location `yaml:"locations"`
}

// Product mirrors catalog.Product without the generated fields.
type Product struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Category    string   `yaml:"category"`
	Origin      string   `yaml:"origin"`
	Description string   `yaml:"description"`
	Notes       []string `yaml:"notes"`
	PriceCents  int64    `yaml:"price_cents"`
}

// Exemplar is a labeled reference phrase for the classifier. A zero
// threshold means the label has no per-label acceptance bar.
type Exemplar struct {
	Intent    string  `yaml:"intent"`
	Phrase    string  `yaml:"phrase"`
	Threshold float64 `yaml:"threshold"`
}

// Location is a physical store.
type Location struct {
	ID        string  `yaml:"id"`
	Name      string  `yaml:"name"`
	Address   string  `yaml:"address"`
	City      string  `yaml:"city"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	Hours     string  `yaml:"hours"`
}

// Load reads and parses a fixture file.
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("seed: reading %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("seed: parsing %s: %w", path, err)
	}
	return &f, nil
}

// Vectorizer produces embeddings for seeded text. Wiring passes the
// embedding cache here so seeded phrases are already warm for live
// queries.
type Vectorizer interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Deps are the stores a seeding run writes through.
type Deps struct {
	Catalog   catalog.Store
	Exemplars intent.Store
	Vectors   Vectorizer
	Logger    *slog.Logger
}

// Options tune a seeding run.
type Options struct {
	// SkipEmbed leaves embeddings nil. Exemplars are picked up by the
	// backfill job; products stay invisible to search until a later run
	// without the flag.
	SkipEmbed bool
}

// Result counts what a run wrote.
type Result struct {
	Products  int
	Exemplars int
	Locations int
}

// exKey identifies an exemplar independently of its generated ID.
type exKey struct {
	intent intent.Intent
	phrase string
}

// Apply writes the fixture through the stores in file order. The first
// error stops the run; everything already written stays written.
func Apply(ctx context.Context, f *File, deps Deps, opts Options) (Result, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(nopHandler{})
	}

	var res Result
	for i, p := range f.Products {
		if p.ID == "" || p.Name == "" {
			return res, fmt.Errorf("seed: product %d: id and name are required", i)
		}
		item := catalog.Product{
			ID:          p.ID,
			Name:        p.Name,
			Category:    p.Category,
			Origin:      p.Origin,
			Description: p.Description,
			Notes:       p.Notes,
			PriceCents:  p.PriceCents,
		}
		if !opts.SkipEmbed {
			vec, err := deps.Vectors.Embed(ctx, item.EmbeddingText())
			if err != nil {
				return res, fmt.Errorf("seed: embedding product %s: %w", p.ID, err)
			}
			item.Embedding = vec
		}
		if err := deps.Catalog.UpsertProduct(ctx, item); err != nil {
			return res, fmt.Errorf("seed: product %s: %w", p.ID, err)
		}
		res.Products++
	}

	if len(f.Exemplars) > 0 {
		existing, err := knownExemplars(ctx, deps.Exemplars)
		if err != nil {
			return res, err
		}
		for i, e := range f.Exemplars {
			label := intent.Intent(e.Intent)
			if !label.Valid() {
				return res, fmt.Errorf("seed: exemplar %d: unknown intent %q", i, e.Intent)
			}
			phrase := strings.TrimSpace(e.Phrase)
			if phrase == "" {
				return res, fmt.Errorf("seed: exemplar %d: phrase is required", i)
			}

			ex, ok := existing[exKey{intent: label, phrase: phrase}]
			if !ok {
				ex, err = intent.NewExemplar(label, phrase, e.Threshold)
				if err != nil {
					return res, err
				}
			}
			ex.Threshold = e.Threshold
			if !opts.SkipEmbed {
				vec, verr := deps.Vectors.Embed(ctx, phrase)
				if verr != nil {
					return res, fmt.Errorf("seed: embedding exemplar %q: %w", phrase, verr)
				}
				ex.Embedding = vec
			}
			if err := deps.Exemplars.Put(ctx, ex); err != nil {
				return res, fmt.Errorf("seed: exemplar %q: %w", phrase, err)
			}
			existing[exKey{intent: label, phrase: phrase}] = ex
			res.Exemplars++
		}
	}

	for i, l := range f.Locations {
		if l.ID == "" || l.Name == "" {
			return res, fmt.Errorf("seed: location %d: id and name are required", i)
		}
		loc := catalog.StoreLocation{
			ID:        l.ID,
			Name:      l.Name,
			Address:   l.Address,
			City:      l.City,
			Latitude:  l.Latitude,
			Longitude: l.Longitude,
			Hours:     l.Hours,
		}
		if err := deps.Catalog.UpsertLocation(ctx, loc); err != nil {
			return res, fmt.Errorf("seed: location %s: %w", l.ID, err)
		}
		res.Locations++
	}

	logger.Info("seed applied",
		"products", res.Products,
		"exemplars", res.Exemplars,
		"locations", res.Locations,
	)
	return res, nil
}

// knownExemplars indexes the stored exemplars by label and phrase.
func knownExemplars(ctx context.Context, store intent.Store) (map[exKey]intent.Exemplar, error) {
	all, err := store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("seed: listing exemplars: %w", err)
	}
	m := make(map[exKey]intent.Exemplar, len(all))
	for _, ex := range all {
		m[exKey{intent: ex.Intent, phrase: ex.Phrase}] = ex
	}
	return m, nil
}

// nopHandler is a slog.Handler that discards all log records.
// Enabled returns false so slog skips formatting entirely (zero cost).
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }
