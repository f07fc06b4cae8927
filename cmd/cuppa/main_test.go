package main

import (
	"log/slog"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"ERROR":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRenderConfigIsValidYAML(t *testing.T) {
	out := renderConfig(initAnswers{
		Path:        "cuppa.yaml",
		Driver:      "sqlite",
		SQLitePath:  "data/cuppa.db",
		Bind:        "127.0.0.1:9090",
		AdminToken:  "s3cret",
		EmbedderKey: "${OPENAI_API_KEY}",
		ProviderKey: "${ANTHROPIC_API_KEY}",
	})

	var doc map[string]any
	if err := yaml.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("rendered config is not valid YAML: %v", err)
	}
	if doc["version"] != "1" {
		t.Errorf("version = %v, want \"1\"", doc["version"])
	}
	if !strings.Contains(out, "127.0.0.1:9090") {
		t.Error("bind address missing from rendered config")
	}
	if !strings.Contains(out, "${OPENAI_API_KEY}") {
		t.Error("env reference missing from rendered config")
	}
}

func TestRootCmdRegistersSubcommands(t *testing.T) {
	root := rootCmd()
	want := []string{"version", "serve", "seed", "sweep", "init", "mcp", "config"}
	for _, name := range want {
		found := false
		for _, c := range root.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}
