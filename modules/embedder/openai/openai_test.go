package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cuppalabs/cuppa/internal/embedding"
)

func newTestEmbedder(t *testing.T, handler http.Handler) *Embedder {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &Embedder{
		config: Config{
			APIKey:  "sk-test",
			Model:   "text-embedding-3-small",
			BaseURL: srv.URL,
		},
		logger: slog.New(nopHandler{}),
		client: srv.Client(),
	}
}

func readEmbedRequest(t *testing.T, r *http.Request) embedRequest {
	t.Helper()
	body, _ := io.ReadAll(r.Body)
	var req embedRequest
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("invalid request body: %v", err)
	}
	return req
}

func TestEmbed_Success(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Error("missing authorization header")
		}
		if r.URL.Path != "/embeddings" {
			t.Errorf("path = %q, want /embeddings", r.URL.Path)
		}

		req := readEmbedRequest(t, r)
		if req.Model != "text-embedding-3-small" {
			t.Errorf("model = %q", req.Model)
		}
		if len(req.Input) != 1 || req.Input[0] != "bold dark roast" {
			t.Errorf("input = %v", req.Input)
		}
		if req.EncodingFormat != "float" {
			t.Errorf("encoding_format = %q, want float", req.EncodingFormat)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3],"index":0}],"model":"text-embedding-3-small","usage":{"prompt_tokens":4,"total_tokens":4}}`))
	})

	e := newTestEmbedder(t, handler)
	vec, err := e.Embed(context.Background(), "bold dark roast")
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 || vec[2] != 0.3 {
		t.Errorf("vector = %v", vec)
	}
	if e.Dimension() != 3 {
		t.Errorf("Dimension() = %d, want 3 (learned from response)", e.Dimension())
	}
}

func TestEmbed_EmptyText(t *testing.T) {
	e := newTestEmbedder(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no HTTP call expected for empty text")
	}))

	if _, err := e.Embed(context.Background(), ""); !errors.Is(err, embedding.ErrEmptyText) {
		t.Errorf("error = %v, want ErrEmptyText", err)
	}
}

func TestEmbed_RateLimited(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limit exceeded","type":"rate_limit_error"}}`))
	})

	e := newTestEmbedder(t, handler)
	_, err := e.Embed(context.Background(), "latte")
	if !errors.Is(err, embedding.ErrProviderUnavailable) {
		t.Errorf("error = %v, want ErrProviderUnavailable", err)
	}
	if !strings.Contains(err.Error(), "rate limit exceeded") {
		t.Errorf("error should carry the API message, got %v", err)
	}
}

func TestEmbed_ServerError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	e := newTestEmbedder(t, handler)
	if _, err := e.Embed(context.Background(), "latte"); !errors.Is(err, embedding.ErrProviderUnavailable) {
		t.Errorf("error = %v, want ErrProviderUnavailable", err)
	}
}

func TestEmbed_AuthFailure(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	})

	e := newTestEmbedder(t, handler)
	_, err := e.Embed(context.Background(), "latte")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, embedding.ErrProviderUnavailable) {
		t.Error("auth failures must not read as retryable")
	}
	if !strings.Contains(err.Error(), "authentication failed") {
		t.Errorf("error = %v", err)
	}
}

func TestEmbed_EmptyVector(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	})

	e := newTestEmbedder(t, handler)
	if _, err := e.Embed(context.Background(), "latte"); err == nil {
		t.Fatal("expected error for empty data, got vector")
	}
}

func TestEmbed_SendsConfiguredDimensions(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := readEmbedRequest(t, r)
		if req.Dimensions != 256 {
			t.Errorf("dimensions = %d, want 256", req.Dimensions)
		}
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1],"index":0}]}`))
	})

	e := newTestEmbedder(t, handler)
	e.config.Dimensions = 256
	e.dim = 256

	if _, err := e.Embed(context.Background(), "latte"); err != nil {
		t.Fatalf("Embed() error: %v", err)
	}
	if e.Dimension() != 256 {
		t.Errorf("Dimension() = %d, want configured 256", e.Dimension())
	}
}

func TestNew_Defaults(t *testing.T) {
	e, err := New(Config{APIKey: "sk-test"}, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if e.ModelName() != "text-embedding-3-small" {
		t.Errorf("model = %q", e.ModelName())
	}
	if e.config.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("base_url = %q", e.config.BaseURL)
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}, nil); err == nil {
		t.Fatal("expected error for missing api_key")
	}
}
