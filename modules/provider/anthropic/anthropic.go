// Package anthropic implements the provider.Provider contract against the
// Anthropic Messages API, including SSE streaming and tool use.
package anthropic

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cuppalabs/cuppa/internal/provider"
)

// Interface guards.
var (
	_ provider.Provider      = (*Anthropic)(nil)
	_ provider.HealthChecker = (*Anthropic)(nil)
)

// Anthropic drives the Anthropic Messages API. It performs a single
// attempt per call; retry and failover policy belongs to the caller.
type Anthropic struct {
	config        Config
	client        *sdkanthropic.Client
	logger        *slog.Logger
	contextWindow int
}

// New returns an Anthropic provider for the given config. A nil logger
// disables logging.
func New(cfg Config, logger *slog.Logger) (*Anthropic, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(nopHandler{})
	}

	// Resolve API key: config takes precedence over environment variable.
	apiKey := cfg.APIKey
	if apiKey == "" {
		if envKey, ok := os.LookupEnv("ANTHROPIC_API_KEY"); ok {
			apiKey = envKey
		}
	}

	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	// Disable SDK-level retries; the health-tracking wrapper decides
	// when a request is worth repeating.
	opts = append(opts, option.WithMaxRetries(0))

	// The timeout bounds the connection phase only. A response-header
	// timeout leaves long-lived SSE streams alone once the first byte
	// arrives.
	opts = append(opts, option.WithHTTPClient(&http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: cfg.Timeout,
		},
	}))

	client := sdkanthropic.NewClient(opts...)

	a := &Anthropic{
		config:        cfg,
		client:        &client,
		logger:        logger,
		contextWindow: cfg.contextWindowForModel(),
	}
	if cfg.ContextWindow == 0 {
		logger.Info("resolved context window from model default",
			"model", cfg.Model,
			"context_window", a.contextWindow,
		)
	}
	return a, nil
}

// ContextWindowSize implements provider.Provider.
func (a *Anthropic) ContextWindowSize() int {
	return a.contextWindow
}

// ModelName implements provider.Provider.
func (a *Anthropic) ModelName() string {
	return a.config.Model
}

// nopHandler is a slog.Handler that discards all log records.
// Enabled returns false so slog skips formatting entirely (zero cost).
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }
