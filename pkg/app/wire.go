package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuppalabs/cuppa/internal/agent"
	"github.com/cuppalabs/cuppa/internal/catalog"
	"github.com/cuppalabs/cuppa/internal/config"
	"github.com/cuppalabs/cuppa/internal/embedding"
	"github.com/cuppalabs/cuppa/internal/gateway"
	"github.com/cuppalabs/cuppa/internal/intent"
	"github.com/cuppalabs/cuppa/internal/maintenance"
	"github.com/cuppalabs/cuppa/internal/metrics"
	"github.com/cuppalabs/cuppa/internal/orchestrator"
	"github.com/cuppalabs/cuppa/internal/provider"
	"github.com/cuppalabs/cuppa/internal/respcache"
	"github.com/cuppalabs/cuppa/internal/search"
	"github.com/cuppalabs/cuppa/internal/session"
	"github.com/cuppalabs/cuppa/internal/telemetry"
	"github.com/cuppalabs/cuppa/internal/tools"
	embopenai "github.com/cuppalabs/cuppa/modules/embedder/openai"
	"github.com/cuppalabs/cuppa/modules/provider/anthropic"
	"github.com/cuppalabs/cuppa/modules/store/sqlite"
)

// Stores groups the per-concern stores behind their interfaces so the
// rest of wiring does not care which driver is active. Vectors is nil
// for the memory driver; the embedding cache then runs single-tier.
type Stores struct {
	Catalog   catalog.Store
	Vectors   embedding.Store
	Responses respcache.Store
	Sessions  session.Store
	Exemplars intent.Store
	Metrics   metrics.Store

	// Sweepable names the stores the cache sweep job covers.
	Sweepable map[string]maintenance.Sweepable

	ping  func(context.Context) error
	close func() error
}

// Ping verifies the backing database. The memory driver has nothing to
// check and always reports success.
func (s *Stores) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

// Close releases the underlying database, if any.
func (s *Stores) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenStores builds the storage layer selected by cfg.Storage.Driver.
func OpenStores(cfg *config.Config, logger *slog.Logger) (*Stores, error) {
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		st, err := sqlite.Open(sqlite.Config{
			Path:        cfg.Storage.SQLite.Path,
			WAL:         cfg.Storage.SQLite.WAL,
			BusyTimeout: cfg.Storage.SQLite.BusyTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Catalog:   st.Catalog(),
			Vectors:   st.Vectors(),
			Responses: st.Responses(),
			Sessions:  st.Sessions(),
			Exemplars: st.Exemplars(),
			Metrics:   st.Metrics(),
			Sweepable: map[string]maintenance.Sweepable{
				"embeddings": st.Vectors(),
				"responses":  st.Responses(),
				"sessions":   st.Sessions(),
			},
			ping:  st.Ping,
			close: st.Close,
		}, nil

	case config.DriverMemory:
		responses := respcache.NewMemStore()
		sessions := session.NewMemStore()
		return &Stores{
			Catalog:   catalog.NewMemStore(),
			Responses: responses,
			Sessions:  sessions,
			Exemplars: intent.NewMemStore(),
			Metrics:   metrics.NewMemStore(),
			Sweepable: map[string]maintenance.Sweepable{
				"responses": responses,
				"sessions":  sessions,
			},
		}, nil

	default:
		return nil, fmt.Errorf("app: unknown storage driver %q", cfg.Storage.Driver)
	}
}

// Pipeline is the offline core of the service: stores, the embedding
// cache, the classifier, the search engine, and the tool registry.
// Commands that never talk to the chat provider (seed, sweep, mcp)
// build just this; Run wires the full system around it.
type Pipeline struct {
	Stores     *Stores
	Vectors    *embedding.Cache
	Classifier *intent.Classifier
	Engine     *search.Engine
	Registry   *tools.Registry
}

// NewPipeline opens the stores and assembles everything up to the tool
// registry. Close the pipeline when done.
func NewPipeline(cfg *config.Config, logger *slog.Logger) (*Pipeline, error) {
	stores, err := OpenStores(cfg, logger)
	if err != nil {
		return nil, err
	}

	embedder, err := embopenai.New(embopenai.Config{
		APIKey:     cfg.Embedder.APIKey,
		Model:      cfg.Embedder.Model,
		BaseURL:    cfg.Embedder.BaseURL,
		Dimensions: cfg.Embedder.Dimensions,
		Timeout:    cfg.Embedder.Timeout,
	}, logger)
	if err != nil {
		stores.Close()
		return nil, err
	}
	vectors := embedding.NewCache(embedder, stores.Vectors, duration(cfg.Embedder.CacheTTL, 0), logger)

	var copts []intent.ClassifierOption
	if cfg.Classifier.Floor > 0 {
		copts = append(copts, intent.WithFloor(cfg.Classifier.Floor))
	}
	if cfg.Classifier.TopK > 0 {
		copts = append(copts, intent.WithTopK(cfg.Classifier.TopK))
	}
	classifier := intent.NewClassifier(stores.Exemplars, logger, copts...)

	engine := search.NewEngine(stores.Catalog, logger)

	registry := tools.NewRegistry(logger)
	for _, t := range []tools.Tool{
		tools.NewClassifyTool(vectors, classifier),
		tools.NewSearchTool(vectors, engine),
		tools.NewProductTool(stores.Catalog),
		tools.NewLocationsTool(stores.Catalog),
		tools.NewMetricTool(stores.Metrics),
	} {
		if err := registry.Register(t); err != nil {
			stores.Close()
			return nil, err
		}
	}

	return &Pipeline{
		Stores:     stores,
		Vectors:    vectors,
		Classifier: classifier,
		Engine:     engine,
		Registry:   registry,
	}, nil
}

// Close releases the pipeline's stores.
func (p *Pipeline) Close() error {
	return p.Stores.Close()
}

// system is the wired application: the HTTP gateway, the maintenance
// scheduler, and the resources they borrow. Stop tears everything down
// in reverse of construction order.
type system struct {
	gateway   *gateway.Gateway
	scheduler *maintenance.Scheduler
	traceStop func(context.Context) error
	pipeline  *Pipeline
	logger    *slog.Logger
}

// Start brings the scheduler up before the gateway so the admin sweep
// endpoint never observes a half-started scheduler.
func (s *system) Start() error {
	if err := s.scheduler.Start(); err != nil {
		return err
	}
	if err := s.gateway.Start(); err != nil {
		s.scheduler.Stop(context.Background())
		return err
	}
	return nil
}

// Stop shuts down in LIFO order: HTTP first so no new requests arrive,
// then the scheduler, the trace exporter, and finally the database.
func (s *system) Stop(ctx context.Context) {
	if err := s.gateway.Stop(ctx); err != nil {
		s.logger.Error("gateway shutdown", "error", err)
	}
	if err := s.scheduler.Stop(ctx); err != nil {
		s.logger.Error("scheduler shutdown", "error", err)
	}
	if err := s.traceStop(ctx); err != nil {
		s.logger.Error("trace exporter shutdown", "error", err)
	}
	if err := s.pipeline.Close(); err != nil {
		s.logger.Error("store close", "error", err)
	}
}

// wire assembles the full service from configuration. The returned
// system has not been started yet.
func wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*system, error) {
	traceStop, err := telemetry.Setup(ctx, cfg.Telemetry, logger)
	if err != nil {
		return nil, err
	}

	pipe, err := NewPipeline(cfg, logger)
	if err != nil {
		traceStop(context.Background())
		return nil, err
	}
	fail := func(err error) (*system, error) {
		pipe.Close()
		traceStop(context.Background())
		return nil, err
	}

	responses := respcache.NewCache(pipe.Stores.Responses, duration(cfg.Chat.ResponseTTL, 0), logger)

	prov, err := anthropic.New(anthropic.Config{
		APIKey:    cfg.Provider.APIKey,
		Model:     cfg.Provider.Model,
		BaseURL:   cfg.Provider.BaseURL,
		MaxTokens: cfg.Provider.MaxTokens,
		Timeout:   duration(cfg.Provider.Timeout, 0),
	}, logger)
	if err != nil {
		return fail(err)
	}
	health := provider.NewHealth(provider.HealthConfig{
		InitialBackoff: duration(cfg.Provider.Health.InitialBackoff, 0),
		MaxBackoff:     duration(cfg.Provider.Health.MaxBackoff, 0),
		MaxFailures:    cfg.Provider.Health.MaxFailures,
	})

	loop := agent.NewLoop(prov, pipe.Registry, agent.LoopConfig{
		MaxIterations: cfg.Agent.MaxIterations,
		TokenBudget:   cfg.Agent.TokenBudget,
		Timeout:       duration(cfg.Agent.Timeout, 0),
		LoopThreshold: cfg.Agent.LoopThreshold,
	}, logger)

	sessions := session.NewManager(pipe.Stores.Sessions, duration(cfg.Chat.SessionTTL, 0))

	orch := orchestrator.New(orchestrator.Deps{
		Vectors:    pipe.Vectors,
		Classifier: pipe.Classifier,
		Engine:     pipe.Engine,
		Responses:  responses,
		Sessions:   sessions,
		Metrics:    pipe.Stores.Metrics,
		Agent:      loop,
		Registry:   pipe.Registry,
		Locations:  pipe.Stores.Catalog,
		Health:     health,
		Logger:     logger,
	}, orchestrator.Config{
		MaxQueryLen:     cfg.Chat.MaxQueryLen,
		AgentAttempts:   cfg.Chat.AgentAttempts,
		AgentRetryBase:  duration(cfg.Chat.AgentRetryBase, 0),
		SearchLimit:     cfg.Search.Limit,
		SearchThreshold: cfg.Search.Threshold,
		HistoryTurns:    cfg.Chat.HistoryTurns,
		DefaultPersona:  cfg.Chat.DefaultPersona,
	})

	sweep := &maintenance.CacheSweepJob{
		Stores:       pipe.Stores.Sweepable,
		Logger:       logger,
		ScheduleExpr: cfg.Maintenance.SweepSchedule,
	}
	backfill := &maintenance.ExemplarBackfillJob{
		Store:        pipe.Stores.Exemplars,
		Vectorizer:   pipe.Vectors,
		Logger:       logger,
		ScheduleExpr: cfg.Maintenance.BackfillSchedule,
	}
	scheduler := maintenance.NewScheduler(logger)
	if err := scheduler.RegisterJob(sweep); err != nil {
		return fail(err)
	}
	if err := scheduler.RegisterJob(backfill); err != nil {
		return fail(err)
	}

	gw := gateway.New(gateway.Deps{
		Processor: orch,
		Turns:     pipe.Stores.Sessions,
		Sweeper:   sweep,
		Metrics:   pipe.Stores.Metrics,
		Sessions:  pipe.Stores.Sessions,
		Store:     pipe.Stores,
		Health:    health,
		Logger:    logger,
	}, gateway.Config{
		Bind:            cfg.Server.Bind,
		AdminToken:      cfg.Server.AdminToken,
		ReadTimeout:     duration(cfg.Server.ReadTimeout, 0),
		WriteTimeout:    duration(cfg.Server.WriteTimeout, 0),
		ShutdownTimeout: duration(cfg.Server.ShutdownTimeout, 0),
	})

	return &system{
		gateway:   gw,
		scheduler: scheduler,
		traceStop: traceStop,
		pipeline:  pipe,
		logger:    logger,
	}, nil
}

// duration parses a config duration string. Empty strings and values
// Validate already rejected fall back, letting each package apply its
// own default for zero.
func duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
