package provider

import (
	"sync"
	"time"
)

// HealthState represents the current availability state of the provider.
type HealthState int

const (
	StateHealthy  HealthState = iota
	StateCooldown             // transient failure, backing off
	StateDead                 // too many consecutive failures
)

// String returns a human-readable label for the health state.
func (s HealthState) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateCooldown:
		return "cooldown"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// HealthConfig controls health tracking behavior.
type HealthConfig struct {
	// InitialBackoff is the cooldown duration after the first failure.
	// Default: 1s.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff duration.
	// Default: 60s.
	MaxBackoff time.Duration

	// MaxFailures is the number of consecutive failures before the
	// provider is marked dead. Default: 5.
	MaxFailures int
}

// defaults fills zero-value fields with sensible defaults.
func (c *HealthConfig) defaults() {
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 60 * time.Second
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
}

// Health monitors the availability of the provider. The orchestrator
// records the outcome of every invocation; a success from any state
// resets the tracker, and failures back off exponentially until the
// provider is marked dead. A dead provider stays dead until the next
// success.
type Health struct {
	cfg HealthConfig

	mu              sync.Mutex
	state           HealthState
	failures        int
	currentBackoff  time.Duration
	cooldownExpires time.Time

	// now is injectable for testing. Defaults to time.Now.
	now func() time.Time
}

// NewHealth creates a healthy tracker with the given config.
func NewHealth(cfg HealthConfig) *Health {
	cfg.defaults()
	return &Health{
		cfg:   cfg,
		state: StateHealthy,
		now:   time.Now,
	}
}

// Available reports whether the provider can accept requests.
// A provider in cooldown becomes available once its backoff expires.
func (h *Health) Available() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case StateHealthy:
		return true
	case StateCooldown:
		return !h.now().Before(h.cooldownExpires)
	default: // StateDead
		return false
	}
}

// RecordSuccess resets the tracker to the healthy state.
func (h *Health) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = StateHealthy
	h.failures = 0
	h.currentBackoff = 0
}

// RecordFailure records a failed request. It transitions the tracker
// to cooldown (with exponential backoff) or dead after MaxFailures.
func (h *Health) RecordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures++

	if h.failures >= h.cfg.MaxFailures {
		h.state = StateDead
		return
	}
	h.state = StateCooldown
	if h.currentBackoff == 0 {
		h.currentBackoff = h.cfg.InitialBackoff
	} else {
		h.currentBackoff *= 2
	}
	if h.currentBackoff > h.cfg.MaxBackoff {
		h.currentBackoff = h.cfg.MaxBackoff
	}
	h.cooldownExpires = h.now().Add(h.currentBackoff)
}

// State returns the current health state.
func (h *Health) State() HealthState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Failures returns the current consecutive failure count.
func (h *Health) Failures() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.failures
}
