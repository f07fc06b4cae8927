// Package app provides the shared entry point for the cuppa binary.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cuppalabs/cuppa/internal/config"
	"github.com/cuppalabs/cuppa/internal/redact"
)

// stopGrace bounds how long Stop waits for in-flight requests, the
// scheduler, and the trace exporter before the process exits anyway.
const stopGrace = 30 * time.Second

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// LogLevel sets the minimum log level. Defaults to slog.LevelInfo.
	LogLevel slog.Level
}

// Run loads configuration, wires the pipeline, starts the gateway and
// the maintenance scheduler, and blocks until SIGINT or SIGTERM.
func Run(params RunParams) error {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	logger := NewLogger(cfg, params.LogLevel)

	sys, err := wire(context.Background(), cfg, logger)
	if err != nil {
		return err
	}

	if err := sys.Start(); err != nil {
		sys.Stop(context.Background())
		return err
	}
	logger.Info("cuppa started",
		"version", params.Version,
		"storage", cfg.Storage.Driver,
		"config", cfgPath,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	sig := <-sigCh
	logger.Info("shutdown signal received", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), stopGrace)
	defer cancel()
	sys.Stop(ctx)
	logger.Info("shutdown complete")
	return nil
}

// NewLogger builds the process logger: a stderr text handler wrapped
// in a redacting layer that masks the API keys and admin token loaded
// from cfg. Every command shares it so no surface logs a raw secret.
func NewLogger(cfg *config.Config, level slog.Level) *slog.Logger {
	red := redact.New()
	red.AddLiteral(cfg.Embedder.APIKey)
	red.AddLiteral(cfg.Provider.APIKey)
	red.AddLiteral(cfg.Server.AdminToken)

	inner := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(redact.NewHandler(inner, red))
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/cuppa/cuppa.yaml, then
// ~/.config/cuppa/cuppa.yaml, then ./cuppa.yaml.
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "cuppa", "cuppa.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "cuppa", "cuppa.yaml"))
	}

	candidates = append(candidates, "cuppa.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}
