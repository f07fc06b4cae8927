// Package orchestrator runs the chat pipeline: session resolution,
// response cache, embedding, intent classification, agent invocation,
// workflow validation with fallback recovery, persistence, and metrics.
//
// Process never lets an internal failure reach the caller. Input
// validation aside, every path ends in an answer, worst case a canned
// apology with the error flag set in metadata.
package orchestrator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/cuppalabs/cuppa/internal/agent"
	"github.com/cuppalabs/cuppa/internal/metrics"
	"github.com/cuppalabs/cuppa/internal/provider"
	"github.com/cuppalabs/cuppa/internal/respcache"
	"github.com/cuppalabs/cuppa/internal/search"
	"github.com/cuppalabs/cuppa/internal/session"
	"github.com/cuppalabs/cuppa/internal/tools"
)

// Validation errors, the only errors Process returns. The gateway maps
// them to HTTP 400.
var (
	ErrQueryEmpty   = errors.New("orchestrator: query is empty")
	ErrQueryTooLong = errors.New("orchestrator: query exceeds maximum length")
)

// Apology is the canned last-resort answer. The pipeline returns it
// whenever an internal failure cannot be recovered.
const Apology = "I'm sorry — something went wrong on my end. Please try again in a moment."

// Default configuration values.
const (
	DefaultMaxQueryLen    = 2000
	DefaultAgentAttempts  = 3
	DefaultAgentRetryBase = 500 * time.Millisecond
	DefaultHistoryTurns   = 10
	DefaultPersona        = "enthusiast"
)

// Config tunes the pipeline.
type Config struct {
	// MaxQueryLen is the maximum query length in runes.
	MaxQueryLen int

	// AgentAttempts bounds agent invocations per request on transient
	// failures.
	AgentAttempts int

	// AgentRetryBase is the first retry delay; it doubles per attempt.
	AgentRetryBase time.Duration

	// SearchLimit and SearchThreshold parameterize grounding searches.
	SearchLimit     int
	SearchThreshold float64

	// HistoryTurns is how many recent turns feed the prompt.
	HistoryTurns int

	// DefaultPersona applies when the request does not set one.
	DefaultPersona string
}

func (c Config) withDefaults() Config {
	if c.MaxQueryLen <= 0 {
		c.MaxQueryLen = DefaultMaxQueryLen
	}
	if c.AgentAttempts <= 0 {
		c.AgentAttempts = DefaultAgentAttempts
	}
	if c.AgentRetryBase <= 0 {
		c.AgentRetryBase = DefaultAgentRetryBase
	}
	if c.SearchLimit <= 0 {
		c.SearchLimit = search.DefaultLimit
	}
	if c.SearchThreshold <= 0 {
		c.SearchThreshold = search.DefaultThreshold
	}
	if c.HistoryTurns <= 0 {
		c.HistoryTurns = DefaultHistoryTurns
	}
	if c.DefaultPersona == "" {
		c.DefaultPersona = DefaultPersona
	}
	return c
}

// Request is one chat query.
type Request struct {
	Query     string
	SessionID string
	UserID    string
	Persona   string

	// Sink, when set, receives streaming progress events for this
	// request.
	Sink Sink
}

// Meta annotates a response for clients and operators.
type Meta struct {
	Intent         string   `json:"intent"`
	Confidence     float64  `json:"confidence"`
	UsedFallback   bool     `json:"used_fallback"`
	FromCache      bool     `json:"from_cache"`
	Products       []string `json:"products,omitempty"`
	ProductCount   int      `json:"product_count"`
	LocationCount  int      `json:"location_count"`
	Recovered      bool     `json:"recovered,omitempty"`
	RecoveryMethod string   `json:"recovery_method,omitempty"`
	Error          bool     `json:"error,omitempty"`
	DurationMs     int64    `json:"duration_ms"`
}

// Response is the pipeline's answer.
type Response struct {
	Answer    string `json:"answer"`
	SessionID string `json:"session_id"`
	QueryID   string `json:"query_id"`
	Meta      Meta   `json:"meta"`
}

// StreamEvent is one progress event for a streaming consumer.
type StreamEvent struct {
	Type  string `json:"type"` // stage | tool | text | done
	Stage string `json:"stage,omitempty"`
	Text  string `json:"text,omitempty"`
}

// Sink receives progress events for a single request. Implementations
// must tolerate being called from the request goroutine only.
type Sink interface {
	Send(event StreamEvent)
}

// Pipeline stage names, emitted to sinks and used as span and histogram
// labels.
const (
	StageSessionResolved = "session_resolved"
	StageCacheChecked    = "cache_checked"
	StageEmbedding       = "embedding"
	StageClassified      = "intent_classified"
	StageProductSearch   = "product_search"
	StageAgentInvoked    = "agent_invoked"
	StageValidated       = "validated"
	StageFallback        = "fallback_search"
	StagePersisted       = "response_persisted"
	StageMetrics         = "metrics_recorded"
)

// AgentRunner is the slice of the agent loop the orchestrator drives.
type AgentRunner interface {
	Run(ctx context.Context, req agent.Request) (<-chan agent.Event, error)
}

// Deps carries the orchestrator's collaborators.
type Deps struct {
	Vectors    tools.Vectors
	Classifier tools.Classifier
	Engine     tools.Searcher
	Responses  *respcache.Cache
	Sessions   *session.Manager
	Metrics    metrics.Store
	Agent      AgentRunner
	Registry   *tools.Registry
	Locations  tools.LocationReader
	Health     *provider.Health
	Logger     *slog.Logger
}

// Orchestrator ties the pipeline together.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// New builds an orchestrator. A nil Deps.Logger discards output.
func New(deps Deps, cfg Config) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(nopHandler{})
	}
	return &Orchestrator{
		deps:   deps,
		cfg:    cfg.withDefaults(),
		logger: logger,
		tracer: otel.Tracer("cuppa/orchestrator"),
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// generateID produces a 32-character hex string from 16 random bytes.
func generateID() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("orchestrator: crypto/rand unavailable: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}

// sessionTurnPreview bounds how much of a turn we log.
const sessionTurnPreview = 80

func preview(s string) string {
	runes := []rune(s)
	if len(runes) <= sessionTurnPreview {
		return s
	}
	return string(runes[:sessionTurnPreview]) + "..."
}

// nopHandler is a slog.Handler that discards all log records.
// Enabled returns false so slog skips formatting entirely (zero cost).
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }
