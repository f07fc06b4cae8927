// Package intent classifies user queries against a set of labeled
// exemplar phrases by embedding similarity.
//
// Classification uses two thresholds: a global floor every candidate
// must clear, and a per-label bar the winning exemplar must also clear
// before the label is accepted outright. Labels differ in how loosely
// they may match, so the bar travels with the exemplar, not the
// classifier.
package intent

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

var (
	// ErrExemplarNotFound is returned when an exemplar ID is unknown.
	ErrExemplarNotFound = errors.New("intent: exemplar not found")

	// ErrNoExemplars is returned by Classify when the store holds no
	// embedded exemplars at all.
	ErrNoExemplars = errors.New("intent: no embedded exemplars")
)

// Intent is a classification label for a user query.
type Intent string

const (
	// ProductRAG means the query asks about catalog products and the
	// answer must be grounded in a product search.
	ProductRAG Intent = "PRODUCT_RAG"

	// StoreLocation means the query asks where to find a physical store.
	StoreLocation Intent = "STORE_LOCATION"

	// GeneralConversation is chit-chat with no grounding requirement.
	// It is also the fallback when nothing matches.
	GeneralConversation Intent = "GENERAL_CONVERSATION"
)

// RequiresGrounding reports whether answers for this intent must cite
// retrieved data. Workflow validation and the fallback search both key
// off this single predicate.
func (i Intent) RequiresGrounding() bool {
	switch i {
	case ProductRAG, StoreLocation:
		return true
	default:
		return false
	}
}

// Valid reports whether i is one of the known labels.
func (i Intent) Valid() bool {
	switch i {
	case ProductRAG, StoreLocation, GeneralConversation:
		return true
	}
	return false
}

// Exemplar is a labeled reference phrase. Embedding may be nil until
// the backfill pass generates it; an exemplar without an embedding is
// invisible to classification. Immutable once embedded except for
// UsageCount.
type Exemplar struct {
	ID        string
	Intent    Intent
	Phrase    string
	Embedding []float32

	// Threshold is this exemplar's own acceptance bar. A winning
	// similarity below it still reports the label but flags fallback.
	Threshold float64

	// UsageCount increments each time this exemplar is the accepted
	// winner.
	UsageCount int64
}

// Store persists exemplars.
type Store interface {
	// All returns every exemplar in insertion order.
	All(ctx context.Context) ([]Exemplar, error)

	// Put inserts or replaces an exemplar by ID.
	Put(ctx context.Context, ex Exemplar) error

	// SaveEmbedding attaches a generated embedding to an existing
	// exemplar.
	SaveEmbedding(ctx context.Context, id string, vec []float32) error

	// IncrementUsage bumps the usage counter of the winning exemplar.
	IncrementUsage(ctx context.Context, id string) error
}

// Result is the outcome of classifying one query vector.
type Result struct {
	Intent        Intent
	Confidence    float64
	MatchedPhrase string

	// UsedFallback is true when no exemplar cleared the global floor,
	// or when the best match cleared the floor but not its own bar. The
	// caller decides whether a below-bar match is still actionable.
	UsedFallback bool
}

// NewExemplar builds an exemplar with a fresh random ID.
func NewExemplar(in Intent, phrase string, threshold float64) (Exemplar, error) {
	id, err := generateID()
	if err != nil {
		return Exemplar{}, err
	}
	return Exemplar{ID: id, Intent: in, Phrase: phrase, Threshold: threshold}, nil
}

// generateID produces a 32-character hex string from 16 random bytes.
func generateID() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("intent: crypto/rand unavailable: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}
