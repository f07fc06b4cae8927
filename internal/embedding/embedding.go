// Package embedding defines the embedding-provider contract and the
// two-tier text→vector cache in front of it. The first tier is a sharded
// in-process map shared by all requests; the second is a persistent store
// keyed by a content hash of the normalized text.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"unicode"
)

// Sentinel errors for embedding operations.
var (
	// ErrEmptyText is returned when the input normalizes to nothing.
	ErrEmptyText = errors.New("embedding: empty text")

	// ErrProviderUnavailable indicates a transient provider failure.
	// Drivers wrap their transport errors with this sentinel so callers
	// can distinguish retryable failures.
	ErrProviderUnavailable = errors.New("embedding: provider unavailable")
)

// Embedder produces fixed-length float vectors for text. A failed call
// must return an error, never a zero vector, so that similarity search
// is not polluted with spurious near-matches.
type Embedder interface {
	// Embed returns the embedding vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the vector length, or 0 if not yet known.
	Dimension() int

	// ModelName identifies the underlying model. It discriminates cache
	// keys, so two models never share cached vectors.
	ModelName() string
}

// Normalize case-folds text and collapses runs of whitespace into single
// spaces. Both cache tiers and the response cache key off this form, so
// "  Bold Roast " and "bold roast" resolve to the same entry.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	space := false
	for _, r := range strings.TrimSpace(text) {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// CacheKey derives the persistent-tier key: a SHA-256 over the model name
// and the normalized text. The model name is the discriminator required
// to keep vectors from different models apart.
func CacheKey(normalized, model string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{'\n'})
	h.Write([]byte(normalized))
	return hex.EncodeToString(h.Sum(nil))
}
