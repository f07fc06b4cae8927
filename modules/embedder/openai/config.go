package openai

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the configuration for the OpenAI embeddings driver.
type Config struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`

	// BaseURL points at any OpenAI-compatible embeddings endpoint, so
	// self-hosted gateways work by swapping the URL.
	BaseURL string `yaml:"base_url"`

	// Dimensions asks the API to truncate vectors to this length.
	// Zero keeps the model's native dimensionality.
	Dimensions int    `yaml:"dimensions"`
	Timeout    string `yaml:"timeout"`
}

// defaults fills zero-valued fields with sensible defaults.
func (c *Config) defaults() {
	if c.Model == "" {
		c.Model = "text-embedding-3-small"
	}
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.Timeout == "" {
		c.Timeout = "30s"
	}
}

// parsedTimeout returns the timeout as a time.Duration.
// Assumes the value has been validated by validate.
func (c *Config) parsedTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// validate checks the config after defaults have been applied.
func (c *Config) validate() error {
	if c.APIKey == "" {
		return errors.New("embedder.openai: api_key is required")
	}
	if c.Dimensions < 0 {
		return fmt.Errorf("embedder.openai: dimensions must not be negative, got %d", c.Dimensions)
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("embedder.openai: invalid timeout %q: %w", c.Timeout, err)
	}
	return nil
}
