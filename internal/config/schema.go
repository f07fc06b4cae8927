// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for cuppa.
package config

import "github.com/cuppalabs/cuppa/internal/telemetry"

// Storage driver IDs.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Embedder and provider driver IDs.
const (
	EmbedderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config is the top-level configuration structure. Duration knobs are
// Go duration strings ("30s", "1h30m"); Validate rejects malformed
// values and zero values fall back to each package's default.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Server configures the HTTP gateway.
	Server ServerConfig `yaml:"server"`

	// Storage selects the persistence backing the catalog, the caches,
	// sessions, and metrics.
	Storage StorageConfig `yaml:"storage"`

	// Embedder configures the text embedding backend and its cache.
	Embedder EmbedderConfig `yaml:"embedder"`

	// Provider configures the chat model backend.
	Provider ProviderConfig `yaml:"provider"`

	// Agent bounds the model's tool-use loop.
	Agent AgentConfig `yaml:"agent"`

	// Chat tunes the request pipeline.
	Chat ChatConfig `yaml:"chat"`

	// Classifier tunes exemplar-based intent classification.
	Classifier ClassifierConfig `yaml:"classifier"`

	// Search tunes catalog vector search.
	Search SearchConfig `yaml:"search"`

	// Maintenance sets the background job schedules.
	Maintenance MaintenanceConfig `yaml:"maintenance"`

	// Telemetry configures OTLP trace export.
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// ServerConfig configures the HTTP gateway.
type ServerConfig struct {
	// Bind is the listen address. Defaults to 127.0.0.1:8080.
	Bind string `yaml:"bind"`

	// AdminToken guards the admin endpoints. Empty disables them.
	AdminToken string `yaml:"admin_token"`

	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// StorageConfig selects where durable state lives.
type StorageConfig struct {
	// Driver is "memory" or "sqlite". Defaults to "memory".
	Driver string `yaml:"driver"`

	// SQLite holds driver settings used when Driver is "sqlite".
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// SQLiteConfig holds the SQLite store settings.
type SQLiteConfig struct {
	// Path is the database file path. Defaults to cuppa.db.
	Path string `yaml:"path"`

	// BusyTimeout is the milliseconds to wait on a busy lock. Defaults to 5000.
	BusyTimeout int `yaml:"busy_timeout"`

	// WAL enables WAL journal mode for concurrent reads. Defaults to true.
	WAL *bool `yaml:"wal"`
}

// EmbedderConfig configures the embedding backend and its cache tier.
type EmbedderConfig struct {
	// Driver selects the backend. Currently only "openai", which also
	// covers OpenAI-compatible endpoints via BaseURL.
	Driver string `yaml:"driver"`

	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	// Dimensions requests a fixed vector size from models that support
	// truncation. Zero lets the model decide.
	Dimensions int `yaml:"dimensions"`

	Timeout string `yaml:"timeout"`

	// CacheTTL bounds persistent-tier embedding cache entries.
	CacheTTL string `yaml:"cache_ttl"`
}

// ProviderConfig configures the chat model backend.
type ProviderConfig struct {
	// Driver selects the backend. Currently only "anthropic".
	Driver string `yaml:"driver"`

	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	MaxTokens int    `yaml:"max_tokens"`
	Timeout   string `yaml:"timeout"`

	// Health tunes the availability tracker guarding the provider.
	Health HealthConfig `yaml:"health"`
}

// HealthConfig tunes provider failure tracking and cooldown backoff.
type HealthConfig struct {
	// MaxFailures is the consecutive failure count before the provider
	// is marked dead. Defaults to 5.
	MaxFailures int `yaml:"max_failures"`

	InitialBackoff string `yaml:"initial_backoff"`
	MaxBackoff     string `yaml:"max_backoff"`
}

// AgentConfig bounds the model's tool-use loop.
type AgentConfig struct {
	// MaxIterations is the maximum number of reason-act cycles.
	MaxIterations int `yaml:"max_iterations"`

	// TokenBudget is the cumulative token limit. Zero means unlimited.
	TokenBudget int `yaml:"token_budget"`

	// Timeout is the maximum wall-clock duration for one loop.
	Timeout string `yaml:"timeout"`

	// LoopThreshold is how many times the same tool call may repeat
	// before the loop is considered stuck.
	LoopThreshold int `yaml:"loop_threshold"`
}

// ChatConfig tunes the request pipeline.
type ChatConfig struct {
	// MaxQueryLen caps user query length in runes.
	MaxQueryLen int `yaml:"max_query_len"`

	// AgentAttempts is how many times a transient provider failure is
	// retried before the canned apology goes out.
	AgentAttempts int `yaml:"agent_attempts"`

	// AgentRetryBase is the first retry delay; it doubles per attempt.
	AgentRetryBase string `yaml:"agent_retry_base"`

	// HistoryTurns is how many prior turns are replayed to the model.
	HistoryTurns int `yaml:"history_turns"`

	// DefaultPersona is used when a request does not name one.
	DefaultPersona string `yaml:"default_persona"`

	// SessionTTL is how long an idle session stays resumable.
	SessionTTL string `yaml:"session_ttl"`

	// ResponseTTL bounds response cache entries.
	ResponseTTL string `yaml:"response_ttl"`
}

// ClassifierConfig tunes exemplar-based intent classification.
type ClassifierConfig struct {
	// Floor is the global minimum similarity for a candidate exemplar.
	Floor float64 `yaml:"floor"`

	// TopK bounds the candidate set after the floor filter.
	TopK int `yaml:"top_k"`
}

// SearchConfig tunes catalog vector search.
type SearchConfig struct {
	Limit     int     `yaml:"limit"`
	Threshold float64 `yaml:"threshold"`
}

// MaintenanceConfig sets background job schedules. Expressions use
// 5-field cron syntax; empty falls back to each job's default.
type MaintenanceConfig struct {
	SweepSchedule    string `yaml:"sweep_schedule"`
	BackfillSchedule string `yaml:"backfill_schedule"`
}

// defaults fills the driver selections so a minimal config runs
// in-memory against the stock backends. Numeric and duration knobs are
// defaulted by the packages that consume them.
func (c *Config) defaults() {
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverMemory
	}
	if c.Embedder.Driver == "" {
		c.Embedder.Driver = EmbedderOpenAI
	}
	if c.Provider.Driver == "" {
		c.Provider.Driver = ProviderAnthropic
	}
}
