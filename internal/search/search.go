// Package search turns nearest-neighbor candidates from the catalog
// store into ranked, threshold-filtered matches.
//
// Stores speak cosine distance; everything above this package speaks
// similarity. The conversion similarity = 1 - distance happens here and
// nowhere else, so a store swap cannot silently flip the scale.
package search

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuppalabs/cuppa/internal/catalog"
)

const (
	// DefaultLimit is the result cap when the caller does not set one.
	DefaultLimit = 5

	// DefaultThreshold is the minimum similarity for a match when the
	// caller does not set one.
	DefaultThreshold = 0.5
)

// CandidateSource is the slice of the catalog store the engine needs.
type CandidateSource interface {
	NearestProducts(ctx context.Context, qvec []float32, limit int) ([]catalog.Candidate, error)
}

// Match is a product that cleared the similarity threshold.
type Match struct {
	Product    catalog.Product
	Similarity float64
}

// Timing reports how long the store query took.
type Timing struct {
	Search time.Duration
}

// Engine ranks catalog candidates by similarity.
type Engine struct {
	source CandidateSource
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine builds an engine over the candidate source. A nil logger
// discards output.
func NewEngine(source CandidateSource, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(nopHandler{})
	}
	return &Engine{source: source, logger: logger, now: time.Now}
}

// Search returns up to limit products whose similarity to qvec is at
// least threshold, ordered by descending similarity. A limit <= 0 falls
// back to DefaultLimit; a threshold <= 0 falls back to DefaultThreshold.
// An empty catalog yields an empty slice and nil error.
func (e *Engine) Search(ctx context.Context, qvec []float32, limit int, threshold float64) ([]Match, Timing, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	start := e.now()
	candidates, err := e.source.NearestProducts(ctx, qvec, limit)
	timing := Timing{Search: e.now().Sub(start)}
	if err != nil {
		return nil, timing, err
	}

	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		sim := 1 - c.Distance
		if sim < threshold {
			// Candidates arrive ordered by ascending distance, so the
			// first miss ends the scan.
			break
		}
		matches = append(matches, Match{Product: c.Product, Similarity: sim})
	}

	e.logger.Debug("search: ranked candidates",
		"candidates", len(candidates),
		"matches", len(matches),
		"threshold", threshold,
		"duration", timing.Search)
	return matches, timing, nil
}

// nopHandler is a slog.Handler that discards all log records.
// Enabled returns false so slog skips formatting entirely (zero cost).
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }
