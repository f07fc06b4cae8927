package redact

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func redactingLogger(r *Redactor) (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(NewHandler(inner, r)), &buf
}

func TestHandler_RedactsMessage(t *testing.T) {
	t.Parallel()

	logger, buf := redactingLogger(New())
	logger.Info("key is sk-abcdefghijklmnopqrstuvwxyz")

	output := buf.String()
	if strings.Contains(output, "sk-abcdefghijklmnopqrstuvwxyz") {
		t.Errorf("secret found in log output: %s", output)
	}
	if !strings.Contains(output, Placeholder) {
		t.Errorf("expected placeholder in output: %s", output)
	}
}

func TestHandler_RedactsAttributes(t *testing.T) {
	t.Parallel()

	r := New()
	r.AddLiteral("super-secret-value")
	logger, buf := redactingLogger(r)

	logger.Info("test", "token", "super-secret-value", "safe", "visible")

	output := buf.String()
	if strings.Contains(output, "super-secret-value") {
		t.Errorf("secret found in attributes: %s", output)
	}
	if !strings.Contains(output, "visible") {
		t.Errorf("safe value missing from output: %s", output)
	}
}

func TestHandler_RedactsErrorValues(t *testing.T) {
	t.Parallel()

	logger, buf := redactingLogger(New())
	logger.Error("embed failed", "err", errors.New("401 for key sk-ant-REDACTED"))

	output := buf.String()
	if strings.Contains(output, "sk-ant-") {
		t.Errorf("secret found in error attribute: %s", output)
	}
}

func TestHandler_WithAttrs(t *testing.T) {
	t.Parallel()

	r := New()
	r.AddLiteral("persistent-secret")
	logger, buf := redactingLogger(r)

	logger.With("api_key", "persistent-secret").Info("test message")

	output := buf.String()
	if strings.Contains(output, "persistent-secret") {
		t.Errorf("secret found in WithAttrs output: %s", output)
	}
}

func TestHandler_WithGroup(t *testing.T) {
	t.Parallel()

	logger, buf := redactingLogger(New())
	logger.WithGroup("auth").Info("attempt", "key", "sk-abcdefghijklmnopqrstuvwxyz")

	output := buf.String()
	if strings.Contains(output, "sk-abcdefghijklmnopqrstuvwxyz") {
		t.Errorf("secret found in group output: %s", output)
	}
}

func TestHandler_GroupAttr(t *testing.T) {
	t.Parallel()

	r := New()
	r.AddLiteral("nested-secret")
	logger, buf := redactingLogger(r)

	logger.Info("test",
		slog.Group("request",
			slog.String("token", "nested-secret"),
			slog.String("path", "/v1/chat"),
		),
	)

	output := buf.String()
	if strings.Contains(output, "nested-secret") {
		t.Errorf("secret found in group attribute: %s", output)
	}
	if !strings.Contains(output, "/v1/chat") {
		t.Errorf("safe group value missing from output: %s", output)
	}
}

func TestHandler_Enabled(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})
	handler := NewHandler(inner, New())

	if handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected debug to be disabled with warn level")
	}
	if !handler.Enabled(context.Background(), slog.LevelError) {
		t.Error("expected error to be enabled with warn level")
	}
}

func TestHandler_NoSecrets(t *testing.T) {
	t.Parallel()

	logger, buf := redactingLogger(New())
	logger.Info("normal message", "key", "value")

	output := buf.String()
	if strings.Contains(output, Placeholder) {
		t.Errorf("unexpected redaction in output: %s", output)
	}
	if !strings.Contains(output, "normal message") {
		t.Errorf("message missing from output: %s", output)
	}
}
