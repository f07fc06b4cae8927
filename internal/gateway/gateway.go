// Package gateway exposes the chat pipeline over HTTP: a JSON chat
// endpoint, a WebSocket streaming variant, health and Prometheus
// endpoints, and bearer-protected admin operations.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cuppalabs/cuppa/internal/metrics"
	"github.com/cuppalabs/cuppa/internal/orchestrator"
	"github.com/cuppalabs/cuppa/internal/provider"
	"github.com/cuppalabs/cuppa/internal/session"
)

// Processor is the slice of the orchestrator the gateway drives.
type Processor interface {
	Process(ctx context.Context, req orchestrator.Request) (orchestrator.Response, error)
}

// TurnReader serves conversation history for the admin API.
type TurnReader interface {
	RecentTurns(ctx context.Context, sessionID string, limit int) ([]session.Turn, error)
}

// Sweeper evicts expired cache rows on demand.
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// MetricReader serves recent per-query metrics for the admin API.
type MetricReader interface {
	RecentSearchMetrics(ctx context.Context, limit int) ([]metrics.SearchMetric, error)
}

// SessionCounter reports how many sessions are currently live.
type SessionCounter interface {
	CountActive(ctx context.Context) (int, error)
}

// Pinger reports storage reachability for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps carries the gateway's collaborators. Health, Store, Sessions,
// and the admin readers are optional; their endpoints degrade or
// disappear when nil.
type Deps struct {
	Processor Processor
	Turns     TurnReader
	Sweeper   Sweeper
	Metrics   MetricReader
	Sessions  SessionCounter
	Store     Pinger
	Health    *provider.Health
	Logger    *slog.Logger
}

// Gateway is the HTTP server for the chat service.
type Gateway struct {
	cfg       Config
	processor Processor
	turns     TurnReader
	sweeper   Sweeper
	metrics   MetricReader
	sessions  SessionCounter
	store     Pinger
	health    *provider.Health
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New builds a gateway. A nil Deps.Logger discards output.
func New(deps Deps, cfg Config) *Gateway {
	cfg.defaults()
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(nopHandler{})
	}
	return &Gateway{
		cfg:       cfg,
		processor: deps.Processor,
		turns:     deps.Turns,
		sweeper:   deps.Sweeper,
		metrics:   deps.Metrics,
		sessions:  deps.Sessions,
		store:     deps.Store,
		health:    deps.Health,
		logger:    logger,
	}
}

// Router returns the HTTP handler with all routes wired.
func (g *Gateway) Router() http.Handler {
	r := chi.NewRouter()

	// Public.
	r.Get("/healthz", g.handleHealth())
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/v1/chat", g.handleChat())
	r.Get("/v1/chat/stream", g.handleStream())

	// Admin. Not mounted without a token; there is no unauthenticated
	// admin mode.
	if g.cfg.AdminToken != "" {
		r.Group(func(r chi.Router) {
			r.Use(bearerAuth(g.cfg.AdminToken))
			r.Get("/v1/sessions/{id}/turns", g.handleSessionTurns())
			r.Get("/v1/metrics/recent", g.handleRecentMetrics())
			r.Post("/v1/cache/sweep", g.handleCacheSweep())
		})
	}

	return r
}

// Start begins serving in a background goroutine.
func (g *Gateway) Start() error {
	g.startedAt = time.Now()
	g.server = &http.Server{
		Addr:         g.cfg.Bind,
		Handler:      g.Router(),
		ReadTimeout:  g.cfg.ReadTimeout,
		WriteTimeout: g.cfg.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.cfg.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen on %s: %w", g.cfg.Bind, err)
	}

	go func() {
		g.logger.Info("gateway listening", "addr", g.cfg.Bind)
		if serr := g.server.Serve(ln); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", serr)
		}
	}()
	return nil
}

// Stop shuts the server down gracefully within the configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, g.cfg.ShutdownTimeout)
	defer cancel()
	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}

// nopHandler is a slog.Handler that discards all log records.
// Enabled returns false so slog skips formatting entirely (zero cost).
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }
