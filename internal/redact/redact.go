// Package redact keeps credentials out of log output. Provider and
// embedder calls, gateway auth failures, and config dumps all flow
// through slog; wrapping the root handler here masks a leaked key no
// matter which call site let it through.
package redact

import (
	"regexp"
	"strings"
	"sync"
)

// Placeholder is the replacement string for redacted secrets.
const Placeholder = "***REDACTED***"

// Redactor replaces secret values in strings with Placeholder. It
// matches known API key shapes by regex and exact values registered
// at startup (keys and tokens read from configuration). All methods
// are safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
}

// New creates a Redactor pre-loaded with patterns for the key formats
// the service holds: OpenAI embedder keys and Anthropic provider keys.
func New() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			// OpenAI: sk-... (at least 20 chars after prefix)
			regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`),
			// Anthropic: sk-ant-... (at least 20 chars after prefix)
			regexp.MustCompile(`sk-ant-[a-zA-Z0-9\-]{20,}`),
		},
	}
}

// AddLiteral registers an exact secret value to redact on sight.
// Admin tokens have no recognizable shape, so the loaded config value
// is registered here. Empty strings are ignored.
func (r *Redactor) AddLiteral(secret string) {
	if secret == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = append(r.literals, secret)
}

// Redact replaces every known secret pattern and literal value in s
// with Placeholder.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	patterns := r.patterns
	literals := r.literals
	r.mu.RUnlock()

	for _, p := range patterns {
		s = p.ReplaceAllString(s, Placeholder)
	}
	for _, lit := range literals {
		if strings.Contains(s, lit) {
			s = strings.ReplaceAll(s, lit, Placeholder)
		}
	}
	return s
}
