package intent

import (
	"context"
	"log/slog"
	"sort"

	"github.com/cuppalabs/cuppa/internal/vec"
)

const (
	// DefaultFloor is the global minimum similarity a candidate must
	// clear before it is considered at all.
	DefaultFloor = 0.55

	// DefaultTopK bounds the candidate set after the floor filter.
	DefaultTopK = 3
)

// Classifier matches query vectors against stored exemplars.
type Classifier struct {
	store  Store
	floor  float64
	topK   int
	logger *slog.Logger
}

// ClassifierOption adjusts a Classifier at construction.
type ClassifierOption func(*Classifier)

// WithFloor overrides the global similarity floor.
func WithFloor(f float64) ClassifierOption {
	return func(c *Classifier) { c.floor = f }
}

// WithTopK overrides the candidate set bound.
func WithTopK(k int) ClassifierOption {
	return func(c *Classifier) {
		if k > 0 {
			c.topK = k
		}
	}
}

// NewClassifier builds a classifier over the exemplar store. A nil
// logger discards output.
func NewClassifier(store Store, logger *slog.Logger, opts ...ClassifierOption) *Classifier {
	if logger == nil {
		logger = slog.New(nopHandler{})
	}
	c := &Classifier{
		store:  store,
		floor:  DefaultFloor,
		topK:   DefaultTopK,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// nopHandler is a slog.Handler that discards all log records.
// Enabled returns false so slog skips formatting entirely (zero cost).
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

type candidate struct {
	ex  Exemplar
	sim float64
	pos int
}

// Classify scores qvec against every embedded exemplar and applies the
// two-threshold rule. No candidate above the floor yields the
// general-conversation fallback with confidence 0. A winner above the
// floor but below its own bar is reported with UsedFallback true so the
// caller can decide whether to act on it. Exact similarity ties keep
// the first-seen exemplar.
func (c *Classifier) Classify(ctx context.Context, qvec []float32) (Result, error) {
	exemplars, err := c.store.All(ctx)
	if err != nil {
		return Result{}, err
	}

	candidates := make([]candidate, 0, len(exemplars))
	embedded := 0
	for i, ex := range exemplars {
		if len(ex.Embedding) == 0 {
			continue
		}
		embedded++
		sim, err := vec.Cosine(qvec, ex.Embedding)
		if err != nil {
			c.logger.Warn("intent: skipping exemplar with incompatible embedding",
				"exemplar_id", ex.ID, "error", err)
			continue
		}
		if sim < c.floor {
			continue
		}
		candidates = append(candidates, candidate{ex: ex, sim: sim, pos: i})
	}
	if embedded == 0 {
		return Result{}, ErrNoExemplars
	}

	if len(candidates) == 0 {
		return Result{
			Intent:       GeneralConversation,
			Confidence:   0,
			UsedFallback: true,
		}, nil
	}

	// Strict > on similarity with position as the secondary key keeps
	// the first-seen exemplar ahead on exact ties.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].sim != candidates[j].sim {
			return candidates[i].sim > candidates[j].sim
		}
		return candidates[i].pos < candidates[j].pos
	})
	if len(candidates) > c.topK {
		candidates = candidates[:c.topK]
	}

	best := candidates[0]
	res := Result{
		Intent:        best.ex.Intent,
		Confidence:    best.sim,
		MatchedPhrase: best.ex.Phrase,
	}

	if best.sim < best.ex.Threshold {
		res.UsedFallback = true
		return res, nil
	}

	if err := c.store.IncrementUsage(ctx, best.ex.ID); err != nil {
		c.logger.Warn("intent: usage increment failed",
			"exemplar_id", best.ex.ID, "error", err)
	}
	return res, nil
}
