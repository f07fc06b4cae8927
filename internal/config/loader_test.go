package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cuppa.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("CUPPA_TEST_EMBED_KEY", "sk-embed-123")

	path := writeConfig(t, `
version: "1"
server:
  bind: 127.0.0.1:9090
  read_timeout: 15s
storage:
  driver: sqlite
  sqlite:
    path: /tmp/cuppa.db
embedder:
  api_key: ${CUPPA_TEST_EMBED_KEY}
  model: text-embedding-3-small
  cache_ttl: 168h
provider:
  api_key: ${CUPPA_TEST_CHAT_KEY:-sk-chat-fallback}
  model: claude-sonnet-4-5
classifier:
  floor: 0.6
  top_k: 5
chat:
  default_persona: barista
  session_ttl: 45m
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Bind != "127.0.0.1:9090" {
		t.Errorf("Server.Bind = %q, want 127.0.0.1:9090", cfg.Server.Bind)
	}
	if cfg.Server.ReadTimeout != "15s" {
		t.Errorf("Server.ReadTimeout = %q, want 15s", cfg.Server.ReadTimeout)
	}
	if cfg.Storage.Driver != DriverSQLite {
		t.Errorf("Storage.Driver = %q, want sqlite", cfg.Storage.Driver)
	}
	if cfg.Embedder.APIKey != "sk-embed-123" {
		t.Errorf("Embedder.APIKey = %q, want expanded env value", cfg.Embedder.APIKey)
	}
	if cfg.Provider.APIKey != "sk-chat-fallback" {
		t.Errorf("Provider.APIKey = %q, want fallback default", cfg.Provider.APIKey)
	}
	if cfg.Classifier.Floor != 0.6 || cfg.Classifier.TopK != 5 {
		t.Errorf("Classifier = %+v, want floor 0.6 top_k 5", cfg.Classifier)
	}
	if cfg.Chat.SessionTTL != "45m" {
		t.Errorf("Chat.SessionTTL = %q, want 45m", cfg.Chat.SessionTTL)
	}

	// Drivers left unset in YAML get filled by defaults.
	if cfg.Embedder.Driver != EmbedderOpenAI {
		t.Errorf("Embedder.Driver = %q, want default %q", cfg.Embedder.Driver, EmbedderOpenAI)
	}
	if cfg.Provider.Driver != ProviderAnthropic {
		t.Errorf("Provider.Driver = %q, want default %q", cfg.Provider.Driver, ProviderAnthropic)
	}

	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate after Load: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "version: [unclosed")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for malformed YAML")
	}
	if !strings.Contains(err.Error(), "parsing") {
		t.Errorf("error should mention parsing: %v", err)
	}
}

func TestLoad_UnresolvedVariable(t *testing.T) {
	path := writeConfig(t, `
version: "1"
provider:
  api_key: ${CUPPA_TEST_DEFINITELY_UNSET}
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unresolved variable")
	}
	if !strings.Contains(err.Error(), "CUPPA_TEST_DEFINITELY_UNSET") {
		t.Errorf("error should name the variable: %v", err)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("CUPPA_TEST_SET", "value")

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"set variable", "key: ${CUPPA_TEST_SET}", "key: value"},
		{"set variable ignores default", "key: ${CUPPA_TEST_SET:-other}", "key: value"},
		{"unset with default", "key: ${CUPPA_TEST_UNSET_XYZ:-fallback}", "key: fallback"},
		{"unset with empty default", "key: ${CUPPA_TEST_UNSET_XYZ:-}", "key: "},
		{"no expression", "key: plain", "key: plain"},
	}

	for _, tc := range cases {
		got, err := expandEnv([]byte(tc.in))
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tc.name, err)
			continue
		}
		if string(got) != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestExpandEnv_ReportsEveryUnresolved(t *testing.T) {
	_, err := expandEnv([]byte("a: ${CUPPA_UNSET_ONE}\nb: ${CUPPA_UNSET_TWO}"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "CUPPA_UNSET_ONE") || !strings.Contains(err.Error(), "CUPPA_UNSET_TWO") {
		t.Errorf("error should name both variables: %v", err)
	}
}
