package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/cuppalabs/cuppa/internal/maintenance"
)

// Validate checks the structural validity of a Config. It verifies the
// version field, the driver selections, the duration strings, and the
// numeric ranges of the tuning knobs. All problems are reported at once
// so an operator fixes the file in a single pass.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateEmbedder(&cfg.Embedder)...)
	errs = append(errs, validateProvider(&cfg.Provider)...)
	errs = append(errs, validateTuning(cfg)...)
	errs = append(errs, validateSchedules(&cfg.Maintenance)...)
	errs = append(errs, validateDurations(cfg)...)

	return errors.Join(errs...)
}

func validateStorage(sc *StorageConfig) []error {
	var errs []error

	switch sc.Driver {
	case DriverMemory, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("config: unknown storage driver %q (supported: %q, %q)",
			sc.Driver, DriverMemory, DriverSQLite))
	}
	if sc.SQLite.BusyTimeout < 0 {
		errs = append(errs, fmt.Errorf("config: storage.sqlite.busy_timeout must be non-negative, got %d",
			sc.SQLite.BusyTimeout))
	}

	return errs
}

func validateEmbedder(ec *EmbedderConfig) []error {
	var errs []error

	if ec.Driver != EmbedderOpenAI {
		errs = append(errs, fmt.Errorf("config: unknown embedder driver %q (supported: %q)",
			ec.Driver, EmbedderOpenAI))
	}
	if ec.APIKey == "" {
		errs = append(errs, errors.New("config: embedder.api_key is required"))
	}
	if ec.Dimensions < 0 {
		errs = append(errs, fmt.Errorf("config: embedder.dimensions must be non-negative, got %d", ec.Dimensions))
	}

	return errs
}

func validateProvider(pc *ProviderConfig) []error {
	var errs []error

	if pc.Driver != ProviderAnthropic {
		errs = append(errs, fmt.Errorf("config: unknown provider driver %q (supported: %q)",
			pc.Driver, ProviderAnthropic))
	}
	// An empty api_key is allowed: the driver falls back to
	// ANTHROPIC_API_KEY and the SDK rejects requests without either.
	if pc.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("config: provider.max_tokens must be non-negative, got %d", pc.MaxTokens))
	}
	if pc.Health.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("config: provider.health.max_failures must be non-negative, got %d",
			pc.Health.MaxFailures))
	}

	return errs
}

// validateTuning checks the numeric knobs. Zero always means "use the
// package default", so only out-of-range values are rejected.
func validateTuning(cfg *Config) []error {
	var errs []error

	if f := cfg.Classifier.Floor; f < 0 || f > 1 {
		errs = append(errs, fmt.Errorf("config: classifier.floor must be in [0, 1], got %v", f))
	}
	if cfg.Classifier.TopK < 0 {
		errs = append(errs, fmt.Errorf("config: classifier.top_k must be non-negative, got %d", cfg.Classifier.TopK))
	}
	if t := cfg.Search.Threshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("config: search.threshold must be in [0, 1], got %v", t))
	}
	if cfg.Search.Limit < 0 {
		errs = append(errs, fmt.Errorf("config: search.limit must be non-negative, got %d", cfg.Search.Limit))
	}
	if cfg.Chat.MaxQueryLen < 0 {
		errs = append(errs, fmt.Errorf("config: chat.max_query_len must be non-negative, got %d", cfg.Chat.MaxQueryLen))
	}
	if cfg.Chat.AgentAttempts < 0 {
		errs = append(errs, fmt.Errorf("config: chat.agent_attempts must be non-negative, got %d", cfg.Chat.AgentAttempts))
	}
	if cfg.Chat.HistoryTurns < 0 {
		errs = append(errs, fmt.Errorf("config: chat.history_turns must be non-negative, got %d", cfg.Chat.HistoryTurns))
	}
	if cfg.Agent.MaxIterations < 0 {
		errs = append(errs, fmt.Errorf("config: agent.max_iterations must be non-negative, got %d", cfg.Agent.MaxIterations))
	}
	if r := cfg.Telemetry.SampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("config: telemetry.sample_ratio must be in [0, 1], got %v", r))
	}

	return errs
}

func validateSchedules(mc *MaintenanceConfig) []error {
	var errs []error

	if s := mc.SweepSchedule; s != "" {
		if err := maintenance.ValidateSchedule(s); err != nil {
			errs = append(errs, fmt.Errorf("config: maintenance.sweep_schedule: %w", err))
		}
	}
	if s := mc.BackfillSchedule; s != "" {
		if err := maintenance.ValidateSchedule(s); err != nil {
			errs = append(errs, fmt.Errorf("config: maintenance.backfill_schedule: %w", err))
		}
	}

	return errs
}

// validateDurations checks every duration string in the config. Empty
// strings are fine (the consuming package picks its default).
func validateDurations(cfg *Config) []error {
	checks := []struct {
		name  string
		value string
	}{
		{"server.read_timeout", cfg.Server.ReadTimeout},
		{"server.write_timeout", cfg.Server.WriteTimeout},
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeout},
		{"embedder.timeout", cfg.Embedder.Timeout},
		{"embedder.cache_ttl", cfg.Embedder.CacheTTL},
		{"provider.timeout", cfg.Provider.Timeout},
		{"provider.health.initial_backoff", cfg.Provider.Health.InitialBackoff},
		{"provider.health.max_backoff", cfg.Provider.Health.MaxBackoff},
		{"agent.timeout", cfg.Agent.Timeout},
		{"chat.agent_retry_base", cfg.Chat.AgentRetryBase},
		{"chat.session_ttl", cfg.Chat.SessionTTL},
		{"chat.response_ttl", cfg.Chat.ResponseTTL},
	}

	var errs []error
	for _, c := range checks {
		if c.value == "" {
			continue
		}
		if _, err := time.ParseDuration(c.value); err != nil {
			errs = append(errs, fmt.Errorf("config: %s: invalid duration %q", c.name, c.value))
		}
	}
	return errs
}
