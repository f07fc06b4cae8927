// Package openai implements the embedding.Embedder contract against the
// OpenAI embeddings API. Any OpenAI-compatible endpoint works through the
// base_url setting.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/cuppalabs/cuppa/internal/embedding"
)

// maxResponseSize is the maximum response body size (10 MB).
// Protects against OOM from malformed or huge responses.
const maxResponseSize = 10 * 1024 * 1024

// Compile-time interface guard.
var _ embedding.Embedder = (*Embedder)(nil)

// Embedder calls the OpenAI embeddings endpoint. It performs a single
// attempt per call; retry policy belongs to the caller.
type Embedder struct {
	config Config
	logger *slog.Logger
	client *http.Client

	// mu guards dim, which is learned from the first response when the
	// config does not pin a dimensionality.
	mu  sync.Mutex
	dim int
}

// New returns an Embedder for the given config. A nil logger disables
// logging.
func New(cfg Config, logger *slog.Logger) (*Embedder, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(nopHandler{})
	}
	return &Embedder{
		config: cfg,
		logger: logger,
		client: &http.Client{Timeout: cfg.parsedTimeout()},
		dim:    cfg.Dimensions,
	}, nil
}

// embedRequest is the JSON body for POST /embeddings.
type embedRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	Dimensions     int      `json:"dimensions,omitempty"`
	EncodingFormat string   `json:"encoding_format"`
}

// embedResponse is the JSON body of a successful embeddings call.
type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// Embed implements embedding.Embedder. A failed call returns an error,
// never a zero vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, embedding.ErrEmptyText
	}

	payload := embedRequest{
		Input:          []string{text},
		Model:          e.config.Model,
		Dimensions:     e.config.Dimensions,
		EncodingFormat: "float",
	}

	body, statusCode, err := e.doPost(ctx, "/embeddings", payload)
	if err != nil {
		return nil, err
	}
	if httpErr := mapHTTPError(statusCode, body); httpErr != nil {
		return nil, httpErr
	}

	var resp embedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("openai: unmarshal response: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding in response", embedding.ErrProviderUnavailable)
	}

	vec := resp.Data[0].Embedding
	e.mu.Lock()
	if e.dim == 0 {
		e.dim = len(vec)
	}
	e.mu.Unlock()

	e.logger.Debug("embedded text",
		"model", e.config.Model,
		"dimensions", len(vec),
		"prompt_tokens", resp.Usage.PromptTokens)

	return vec, nil
}

// Dimension implements embedding.Embedder. Returns 0 until the first
// successful call when no dimensionality is configured.
func (e *Embedder) Dimension() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dim
}

// ModelName implements embedding.Embedder.
func (e *Embedder) ModelName() string {
	return e.config.Model
}

// doPost sends an authenticated POST request and returns the response body
// and status code. The body is limited to maxResponseSize bytes.
func (e *Embedder) doPost(ctx context.Context, path string, payload any) ([]byte, int, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, 0, fmt.Errorf("openai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.config.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, 0, mapConnectionError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("openai: read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// nopHandler is a slog.Handler that discards all log records.
// Enabled returns false so slog skips formatting entirely (zero cost).
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }
