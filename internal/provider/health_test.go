package provider

import (
	"testing"
	"time"
)

func newTestHealth(cfg HealthConfig) (*Health, *time.Time) {
	h := NewHealth(cfg)
	clock := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return clock }
	return h, &clock
}

func TestHealthStartsHealthy(t *testing.T) {
	t.Parallel()

	h, _ := newTestHealth(HealthConfig{})
	if h.State() != StateHealthy {
		t.Errorf("state = %v, want healthy", h.State())
	}
	if !h.Available() {
		t.Error("new tracker not available")
	}
}

func TestHealthFailureEntersCooldown(t *testing.T) {
	t.Parallel()

	h, clock := newTestHealth(HealthConfig{InitialBackoff: time.Second, MaxFailures: 5})

	h.RecordFailure()
	if h.State() != StateCooldown {
		t.Fatalf("state = %v, want cooldown", h.State())
	}
	if h.Available() {
		t.Error("available during cooldown")
	}

	*clock = clock.Add(2 * time.Second)
	if !h.Available() {
		t.Error("not available after cooldown expired")
	}
}

func TestHealthBackoffDoublesAndCaps(t *testing.T) {
	t.Parallel()

	h, _ := newTestHealth(HealthConfig{
		InitialBackoff: time.Second,
		MaxBackoff:     3 * time.Second,
		MaxFailures:    10,
	})

	h.RecordFailure()
	if h.currentBackoff != time.Second {
		t.Errorf("backoff = %v, want 1s", h.currentBackoff)
	}
	h.RecordFailure()
	if h.currentBackoff != 2*time.Second {
		t.Errorf("backoff = %v, want 2s", h.currentBackoff)
	}
	h.RecordFailure()
	if h.currentBackoff != 3*time.Second {
		t.Errorf("backoff = %v, want capped at 3s", h.currentBackoff)
	}
}

func TestHealthDeadAfterMaxFailures(t *testing.T) {
	t.Parallel()

	h, clock := newTestHealth(HealthConfig{InitialBackoff: time.Millisecond, MaxFailures: 3})

	for range 3 {
		h.RecordFailure()
	}
	if h.State() != StateDead {
		t.Fatalf("state = %v, want dead", h.State())
	}

	// Dead providers stay unavailable no matter how long we wait.
	*clock = clock.Add(time.Hour)
	if h.Available() {
		t.Error("dead provider reported available")
	}
}

func TestHealthSuccessResets(t *testing.T) {
	t.Parallel()

	h, _ := newTestHealth(HealthConfig{MaxFailures: 3})
	for range 3 {
		h.RecordFailure()
	}
	h.RecordSuccess()

	if h.State() != StateHealthy {
		t.Errorf("state = %v, want healthy after success", h.State())
	}
	if h.Failures() != 0 {
		t.Errorf("failures = %d, want 0", h.Failures())
	}
	if !h.Available() {
		t.Error("not available after recovery")
	}
}

func TestHealthStateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state HealthState
		want  string
	}{
		{StateHealthy, "healthy"},
		{StateCooldown, "cooldown"},
		{StateDead, "dead"},
		{HealthState(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
