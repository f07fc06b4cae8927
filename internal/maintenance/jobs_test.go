package maintenance

import (
	"context"
	"errors"
	"testing"

	"github.com/cuppalabs/cuppa/internal/intent"
)

type fakeSweepable struct {
	n     int64
	err   error
	calls int
}

func (f *fakeSweepable) SweepExpired(_ context.Context) (int64, error) {
	f.calls++
	return f.n, f.err
}

func TestCacheSweepJobAggregates(t *testing.T) {
	t.Parallel()

	responses := &fakeSweepable{n: 3}
	sessions := &fakeSweepable{n: 2}
	job := &CacheSweepJob{Stores: map[string]Sweepable{
		"responses": responses,
		"sessions":  sessions,
	}}

	total, err := job.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if responses.calls != 1 || sessions.calls != 1 {
		t.Errorf("store calls = %d, %d, want 1 each", responses.calls, sessions.calls)
	}
}

func TestCacheSweepJobContinuesPastFailure(t *testing.T) {
	t.Parallel()

	// "a" fails but "b" must still be swept; the error surfaces after.
	a := &fakeSweepable{err: errors.New("locked")}
	b := &fakeSweepable{n: 4}
	job := &CacheSweepJob{Stores: map[string]Sweepable{"a": a, "b": b}}

	total, err := job.Sweep(context.Background())
	if err == nil {
		t.Fatal("Sweep() swallowed the store error")
	}
	if total != 4 {
		t.Errorf("total = %d, want 4 from the healthy store", total)
	}
	if b.calls != 1 {
		t.Errorf("healthy store swept %d times, want 1", b.calls)
	}
}

func TestCacheSweepJobCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job := &CacheSweepJob{Stores: map[string]Sweepable{"a": &fakeSweepable{n: 1}}}
	if _, err := job.Sweep(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Sweep() error = %v, want context.Canceled", err)
	}
}

type countingVectorizer struct {
	calls int
}

func (v *countingVectorizer) Embed(_ context.Context, text string) ([]float32, error) {
	v.calls++
	return []float32{float32(len(text)), 1}, nil
}

func TestExemplarBackfillJob(t *testing.T) {
	t.Parallel()

	store := intent.NewMemStore()
	embedded, err := intent.NewExemplar(intent.ProductRAG, "something bold", 0.8)
	if err != nil {
		t.Fatalf("NewExemplar: %v", err)
	}
	embedded.Embedding = []float32{1, 0}
	missing, err := intent.NewExemplar(intent.StoreLocation, "where are you", 0.75)
	if err != nil {
		t.Fatalf("NewExemplar: %v", err)
	}
	for _, ex := range []intent.Exemplar{embedded, missing} {
		if err := store.Put(context.Background(), ex); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	vec := &countingVectorizer{}
	job := &ExemplarBackfillJob{Store: store, Vectorizer: vec}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if vec.calls != 1 {
		t.Errorf("vectorizer called %d times, want 1 (only the missing exemplar)", vec.calls)
	}

	all, err := store.All(context.Background())
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	for _, ex := range all {
		if len(ex.Embedding) == 0 {
			t.Errorf("exemplar %q still missing its embedding", ex.Phrase)
		}
	}
}

func TestJobSchedules(t *testing.T) {
	t.Parallel()

	sweep := &CacheSweepJob{}
	if sweep.Schedule() != "*/10 * * * *" {
		t.Errorf("sweep schedule = %q", sweep.Schedule())
	}
	sweep.ScheduleExpr = "0 3 * * *"
	if sweep.Schedule() != "0 3 * * *" {
		t.Errorf("sweep schedule override = %q", sweep.Schedule())
	}

	backfill := &ExemplarBackfillJob{}
	if backfill.Schedule() != "*/15 * * * *" {
		t.Errorf("backfill schedule = %q", backfill.Schedule())
	}
}
