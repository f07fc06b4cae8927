package tools

import (
	"time"

	"github.com/cuppalabs/cuppa/internal/catalog"
	"github.com/cuppalabs/cuppa/internal/intent"
	"github.com/cuppalabs/cuppa/internal/search"
)

// Outcome is the typed result of a tool execution. It is a sealed
// union: the orchestrator switches over the concrete types below and
// the compiler keeps that switch honest. New tools add a new outcome
// type, never a new map key.
type Outcome interface {
	isOutcome()
}

// ClassifyOutcome reports an intent classification.
type ClassifyOutcome struct {
	Intent        intent.Intent
	Confidence    float64
	MatchedPhrase string
	UsedFallback  bool
}

// SearchOutcome reports a product vector search.
type SearchOutcome struct {
	Matches   []search.Match
	Limit     int
	Threshold float64

	// EmbedCacheHit is true when the query embedding came from a cache
	// tier rather than the embedder.
	EmbedCacheHit  bool
	EmbedDuration  time.Duration
	SearchDuration time.Duration
}

// ProductOutcome reports a product detail lookup.
type ProductOutcome struct {
	Product catalog.Product
	Found   bool
}

// MetricOutcome reports a metric append.
type MetricOutcome struct {
	QueryID  string
	Recorded bool
}

// LocationsOutcome reports a store location lookup.
type LocationsOutcome struct {
	Locations []catalog.StoreLocation
}

func (ClassifyOutcome) isOutcome()  {}
func (SearchOutcome) isOutcome()    {}
func (ProductOutcome) isOutcome()   {}
func (MetricOutcome) isOutcome()    {}
func (LocationsOutcome) isOutcome() {}
