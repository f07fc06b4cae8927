package intent

import (
	"context"
	"fmt"
	"log/slog"
)

// Vectorizer produces embeddings for exemplar phrases. Satisfied by the
// embedding cache and by raw embedder drivers.
type Vectorizer interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Backfill generates embeddings for every exemplar that lacks one and
// saves them through the store. It returns the number of exemplars
// embedded. A failure to embed one exemplar is logged and that exemplar
// is skipped; a zero vector is never written in its place. Store and
// context failures abort the pass.
func Backfill(ctx context.Context, store Store, vectorizer Vectorizer, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.New(nopHandler{})
	}

	exemplars, err := store.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("intent: backfill: %w", err)
	}

	embedded := 0
	for _, ex := range exemplars {
		if len(ex.Embedding) > 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return embedded, fmt.Errorf("intent: backfill: %w", err)
		}

		vec, err := vectorizer.Embed(ctx, ex.Phrase)
		if err != nil {
			logger.Warn("intent: backfill skipping exemplar",
				"exemplar_id", ex.ID, "phrase", ex.Phrase, "error", err)
			continue
		}
		if err := store.SaveEmbedding(ctx, ex.ID, vec); err != nil {
			return embedded, fmt.Errorf("intent: backfill: save %s: %w", ex.ID, err)
		}
		embedded++
	}
	if embedded > 0 {
		logger.Info("intent: backfill complete", "embedded", embedded)
	}
	return embedded, nil
}
