package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuppalabs/cuppa/internal/intent"
	"github.com/cuppalabs/cuppa/internal/metrics"
	"github.com/cuppalabs/cuppa/internal/session"
)

func TestSessionRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	in := session.Session{
		ID:        "s-1",
		UserID:    "u-9",
		CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		ExpiresAt: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		Data:      map[string]string{"persona": "barista"},
	}
	if err := st.Sessions().PutSession(ctx, in); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := st.Sessions().GetSession(ctx, "s-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UserID != "u-9" || got.Data["persona"] != "barista" {
		t.Errorf("got %+v", got)
	}
	if !got.CreatedAt.Equal(in.CreatedAt) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, in.CreatedAt)
	}
	// Expiry is stored at millisecond precision.
	if got.ExpiresAt.UnixMilli() != in.ExpiresAt.UnixMilli() {
		t.Errorf("expires_at = %v, want %v", got.ExpiresAt, in.ExpiresAt)
	}

	if _, err := st.Sessions().GetSession(ctx, "nope"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("missing session error = %v, want ErrSessionNotFound", err)
	}

	// Replace updates in place.
	in.Data = map[string]string{"persona": "sommelier"}
	if err := st.Sessions().PutSession(ctx, in); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, err = st.Sessions().GetSession(ctx, "s-1")
	if err != nil {
		t.Fatalf("get after replace: %v", err)
	}
	if got.Data["persona"] != "sommelier" {
		t.Errorf("data after replace = %v", got.Data)
	}
}

func TestGetSessionReturnsExpired(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	if err := st.Sessions().PutSession(ctx, session.Session{ID: "s-old", ExpiresAt: past}); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := st.Sessions().GetSession(ctx, "s-old")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Expired(time.Now()) {
		t.Error("session should read back as expired")
	}
}

func TestAppendAndRecentTurns(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.Sessions().PutSession(ctx, session.Session{ID: "s-1", ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("put session: %v", err)
	}

	turns := []session.Turn{
		{SessionID: "s-1", Role: session.RoleUser, Content: "first", Metadata: map[string]string{"query_id": "q1"}},
		{SessionID: "s-1", Role: session.RoleAssistant, Content: "second"},
		{SessionID: "s-1", Role: session.RoleUser, Content: "third"},
	}
	for _, turn := range turns {
		if err := st.Sessions().AppendTurn(ctx, turn); err != nil {
			t.Fatalf("append %q: %v", turn.Content, err)
		}
	}

	got, err := st.Sessions().RecentTurns(ctx, "s-1", 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 || got[0].Content != "third" || got[1].Content != "second" {
		t.Errorf("recent(2) = %v, want newest first", got)
	}

	all, err := st.Sessions().RecentTurns(ctx, "s-1", 0)
	if err != nil {
		t.Fatalf("recent all: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("recent(0) = %d turns, want 3", len(all))
	}
	if all[2].Metadata["query_id"] != "q1" {
		t.Errorf("oldest turn metadata = %v", all[2].Metadata)
	}
	if all[2].Role != session.RoleUser {
		t.Errorf("oldest turn role = %q", all[2].Role)
	}
}

func TestSessionSweepCascadesTurns(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	st.Sessions().now = func() time.Time { return base }

	sessions := []session.Session{
		{ID: "s-dead", ExpiresAt: base.Add(-time.Minute)},
		{ID: "s-live", ExpiresAt: base.Add(time.Hour)},
	}
	for _, s := range sessions {
		if err := st.Sessions().PutSession(ctx, s); err != nil {
			t.Fatalf("put %s: %v", s.ID, err)
		}
		if err := st.Sessions().AppendTurn(ctx, session.Turn{SessionID: s.ID, Role: session.RoleUser, Content: "hi"}); err != nil {
			t.Fatalf("append %s: %v", s.ID, err)
		}
	}

	active, err := st.Sessions().CountActive(ctx)
	if err != nil {
		t.Fatalf("count active: %v", err)
	}
	if active != 1 {
		t.Errorf("active = %d, want 1 (expired sessions excluded)", active)
	}

	swept, err := st.Sessions().SweepExpired(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 1 {
		t.Errorf("swept = %d, want 1", swept)
	}

	if _, err := st.Sessions().GetSession(ctx, "s-dead"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("dead session error = %v, want ErrSessionNotFound", err)
	}
	deadTurns, err := st.Sessions().RecentTurns(ctx, "s-dead", 0)
	if err != nil {
		t.Fatalf("dead turns: %v", err)
	}
	if len(deadTurns) != 0 {
		t.Errorf("dead session kept %d turns", len(deadTurns))
	}

	if _, err := st.Sessions().GetSession(ctx, "s-live"); err != nil {
		t.Errorf("live session: %v", err)
	}
	liveTurns, err := st.Sessions().RecentTurns(ctx, "s-live", 0)
	if err != nil {
		t.Fatalf("live turns: %v", err)
	}
	if len(liveTurns) != 1 {
		t.Errorf("live session has %d turns, want 1", len(liveTurns))
	}
}

func TestExemplarOrderAndUpdates(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	seed := []intent.Exemplar{
		{ID: "e1", Intent: "product_search", Phrase: "something fruity", Threshold: 0.78},
		{ID: "e2", Intent: "store_info", Phrase: "where are you located", Threshold: 0.82},
		{ID: "e3", Intent: "brewing_advice", Phrase: "how do I brew a pour over", Threshold: 0.8},
	}
	for _, ex := range seed {
		if err := st.Exemplars().Put(ctx, ex); err != nil {
			t.Fatalf("put %s: %v", ex.ID, err)
		}
	}

	// Replacing an existing exemplar must not move it.
	if err := st.Exemplars().Put(ctx, intent.Exemplar{ID: "e2", Intent: "store_info", Phrase: "what are your hours", Threshold: 0.82}); err != nil {
		t.Fatalf("replace e2: %v", err)
	}

	all, err := st.Exemplars().All(ctx)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d exemplars, want 3", len(all))
	}
	for i, id := range []string{"e1", "e2", "e3"} {
		if all[i].ID != id {
			t.Errorf("exemplar[%d] = %s, want %s", i, all[i].ID, id)
		}
	}
	if all[1].Phrase != "what are your hours" {
		t.Errorf("e2 phrase = %q after replace", all[1].Phrase)
	}

	if err := st.Exemplars().SaveEmbedding(ctx, "e1", []float32{0.1, 0.9}); err != nil {
		t.Fatalf("save embedding: %v", err)
	}
	all, err = st.Exemplars().All(ctx)
	if err != nil {
		t.Fatalf("all after embedding: %v", err)
	}
	if len(all[0].Embedding) != 2 || all[0].Embedding[1] != 0.9 {
		t.Errorf("e1 embedding = %v", all[0].Embedding)
	}

	if err := st.Exemplars().IncrementUsage(ctx, "e3"); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := st.Exemplars().IncrementUsage(ctx, "e3"); err != nil {
		t.Fatalf("increment again: %v", err)
	}
	all, err = st.Exemplars().All(ctx)
	if err != nil {
		t.Fatalf("all after usage: %v", err)
	}
	if all[2].UsageCount != 2 {
		t.Errorf("e3 usage = %d, want 2", all[2].UsageCount)
	}

	if err := st.Exemplars().SaveEmbedding(ctx, "ghost", []float32{1}); !errors.Is(err, intent.ErrExemplarNotFound) {
		t.Errorf("save on missing = %v, want ErrExemplarNotFound", err)
	}
	if err := st.Exemplars().IncrementUsage(ctx, "ghost"); !errors.Is(err, intent.ErrExemplarNotFound) {
		t.Errorf("increment on missing = %v, want ErrExemplarNotFound", err)
	}
}

func TestSearchMetrics(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	st.Metrics().now = func() time.Time { return base }

	rows := []metrics.SearchMetric{
		{QueryID: "q1", UserID: "u1", Query: "fruity roast", Intent: "product_search", EmbeddingMs: 12, SearchMs: 3, TotalMs: 40, SimilarityScore: 0.91, ResultCount: 3},
		{QueryID: "q2", UserID: "u1", Query: "store hours", Intent: "store_info", TotalMs: 25, FromCache: true},
		{QueryID: "q3", UserID: "u2", Query: "grind size", Intent: "brewing_advice", TotalMs: 60},
	}
	for _, m := range rows {
		if err := st.Metrics().AppendSearchMetric(ctx, m); err != nil {
			t.Fatalf("append %s: %v", m.QueryID, err)
		}
	}

	got, err := st.Metrics().RecentSearchMetrics(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 || got[0].QueryID != "q3" || got[1].QueryID != "q2" {
		t.Errorf("recent(2) = %v, want q3 then q2", got)
	}
	if !got[1].FromCache {
		t.Error("q2 should be from cache")
	}

	all, err := st.Metrics().RecentSearchMetrics(ctx, 0)
	if err != nil {
		t.Fatalf("recent all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("recent(0) = %d rows, want 3", len(all))
	}
	oldest := all[2]
	if oldest.QueryID != "q1" || oldest.EmbeddingMs != 12 || oldest.SimilarityScore != 0.91 || oldest.ResultCount != 3 {
		t.Errorf("oldest = %+v", oldest)
	}
	if !oldest.CreatedAt.Equal(base) {
		t.Errorf("created_at = %v, want %v", oldest.CreatedAt, base)
	}
}
