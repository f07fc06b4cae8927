package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/cuppalabs/cuppa/internal/intent"
)

// Sweepable evicts expired rows from one store.
type Sweepable interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// CacheSweepJob evicts expired rows from the registered stores:
// response cache, embedding cache, and sessions. Expiry is otherwise
// enforced only by comparison on read, so without sweeping the stores
// grow forever.
type CacheSweepJob struct {
	Stores       map[string]Sweepable
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/10 * * * *"
}

var _ Job = (*CacheSweepJob)(nil)

// Name implements Job.
func (j *CacheSweepJob) Name() string { return "cache_sweep" }

// Schedule implements Job.
func (j *CacheSweepJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/10 * * * *"
}

// Run implements Job.
func (j *CacheSweepJob) Run(ctx context.Context) error {
	_, err := j.Sweep(ctx)
	return err
}

// Sweep evicts expired rows from every store and returns the total.
// The gateway's admin endpoint calls this directly. A failing store
// does not stop the others; the first error is reported after all
// stores ran.
func (j *CacheSweepJob) Sweep(ctx context.Context) (int64, error) {
	names := make([]string, 0, len(j.Stores))
	for name := range j.Stores {
		names = append(names, name)
	}
	sort.Strings(names)

	var total int64
	var firstErr error
	for _, name := range names {
		if ctx.Err() != nil {
			return total, fmt.Errorf("maintenance: sweep cancelled: %w", ctx.Err())
		}
		n, err := j.Stores[name].SweepExpired(ctx)
		if err != nil {
			j.logger().Error("maintenance: sweep failed", "store", name, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("maintenance: sweep %s: %w", name, err)
			}
			continue
		}
		total += n
		if n > 0 {
			j.logger().Info("maintenance: swept expired rows", "store", name, "count", n)
		}
	}
	return total, firstErr
}

func (j *CacheSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.New(nopHandler{})
}

// ExemplarBackfillJob embeds intent exemplars that are still missing
// their vector, typically because the embedding provider was down when
// they were seeded.
type ExemplarBackfillJob struct {
	Store        intent.Store
	Vectorizer   intent.Vectorizer
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/15 * * * *"
}

var _ Job = (*ExemplarBackfillJob)(nil)

// Name implements Job.
func (j *ExemplarBackfillJob) Name() string { return "exemplar_backfill" }

// Schedule implements Job.
func (j *ExemplarBackfillJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/15 * * * *"
}

// Run implements Job.
func (j *ExemplarBackfillJob) Run(ctx context.Context) error {
	n, err := intent.Backfill(ctx, j.Store, j.Vectorizer, j.Logger)
	if err != nil {
		return fmt.Errorf("maintenance: exemplar backfill: %w", err)
	}
	if n > 0 && j.Logger != nil {
		j.Logger.Info("maintenance: backfilled exemplar embeddings", "count", n)
	}
	return nil
}
