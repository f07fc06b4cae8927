package agent

import (
	"encoding/json"
	"testing"

	"github.com/cuppalabs/cuppa/internal/provider"
)

func TestLoopDetectorThreshold(t *testing.T) {
	t.Parallel()

	d := newLoopDetector(3)
	args := json.RawMessage(`{"query":"bold"}`)

	if d.record("search", args) {
		t.Error("first call tripped the detector")
	}
	if d.record("search", args) {
		t.Error("second call tripped the detector")
	}
	if !d.record("search", args) {
		t.Error("third identical call did not trip the detector")
	}
}

func TestLoopDetectorNormalizesKeyOrder(t *testing.T) {
	t.Parallel()

	d := newLoopDetector(2)
	if d.record("search", json.RawMessage(`{"a":1,"b":2}`)) {
		t.Error("first call tripped the detector")
	}
	if !d.record("search", json.RawMessage(`{"b":2,"a":1}`)) {
		t.Error("reordered keys not recognized as the same call")
	}
}

func TestLoopDetectorDistinguishesArgs(t *testing.T) {
	t.Parallel()

	d := newLoopDetector(2)
	d.record("search", json.RawMessage(`{"query":"bold"}`))
	if d.record("search", json.RawMessage(`{"query":"mild"}`)) {
		t.Error("different args counted as the same call")
	}
}

func TestTokenTrackerBudget(t *testing.T) {
	t.Parallel()

	tr := newTokenTracker(100)
	tr.add(provider.TokenUsage{PromptTokens: 40, CompletionTokens: 20, TotalTokens: 60})
	if tr.exceeded() {
		t.Error("under budget reported as exceeded")
	}
	tr.add(provider.TokenUsage{TotalTokens: 40})
	if !tr.exceeded() {
		t.Error("at budget not reported as exceeded")
	}
	if tr.total().TotalTokens != 100 {
		t.Errorf("total = %d, want 100", tr.total().TotalTokens)
	}
}

func TestTokenTrackerZeroBudgetUnlimited(t *testing.T) {
	t.Parallel()

	tr := newTokenTracker(0)
	tr.add(provider.TokenUsage{TotalTokens: 1 << 20})
	if tr.exceeded() {
		t.Error("zero budget reported as exceeded")
	}
}

func TestLoopConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := LoopConfig{}.withDefaults()
	if cfg.MaxIterations != DefaultMaxIterations {
		t.Errorf("MaxIterations = %d, want default", cfg.MaxIterations)
	}
	if cfg.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want default", cfg.Timeout)
	}
	if cfg.LoopThreshold != DefaultLoopThreshold {
		t.Errorf("LoopThreshold = %d, want default", cfg.LoopThreshold)
	}
	if cfg.TokenBudget != 0 {
		t.Errorf("TokenBudget = %d, want 0 (unlimited)", cfg.TokenBudget)
	}

	custom := LoopConfig{MaxIterations: 2, LoopThreshold: 5}.withDefaults()
	if custom.MaxIterations != 2 || custom.LoopThreshold != 5 {
		t.Errorf("custom values overwritten: %+v", custom)
	}
}
