package tools

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/cuppalabs/cuppa/internal/provider"
)

// Registry holds registered tools. It is instance-based (not global)
// for better testability.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	logger *slog.Logger
}

// NewRegistry creates an empty tool registry. A nil logger discards
// output.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(nopHandler{})
	}
	return &Registry{
		tools:  make(map[string]Tool),
		logger: logger,
	}
}

// Register adds a tool to the registry. It returns ErrEmptyToolName for
// blank names and ErrDuplicateTool if the name is already taken.
func (r *Registry) Register(t Tool) error {
	name := strings.TrimSpace(t.Name())
	if name == "" {
		return ErrEmptyToolName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}
	r.tools[name] = t
	return nil
}

// Get returns the tool with the given name, or ErrToolNotFound.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return t, nil
}

// Names returns all registered tool names sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Definitions returns provider-shaped definitions for every registered
// tool, sorted by name for a stable prompt layout.
func (r *Registry) Definitions() []provider.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]provider.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, provider.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema(),
		})
	}
	slices.SortFunc(defs, func(a, b provider.ToolDefinition) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return defs
}

// Execute looks up and runs a tool. An unknown name or a panicking tool
// produces an error-flagged Output rather than a Go error, so the model
// sees the failure and can correct itself; only context cancellation
// surfaces as an error.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (out Output, err error) {
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}

	t, lookupErr := r.Get(name)
	if lookupErr != nil {
		return errorOutput(fmt.Sprintf("unknown tool %q", name)), nil
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tools: tool panicked", "tool", name, "panic", rec)
			out = errorOutput(fmt.Sprintf("tool %q failed internally", name))
			err = nil
		}
	}()

	out, execErr := t.Execute(ctx, args)
	if execErr != nil {
		r.logger.Warn("tools: tool execution failed", "tool", name, "error", execErr)
		return errorOutput(fmt.Sprintf("tool %q: %v", name, execErr)), nil
	}
	return out, nil
}

// nopHandler is a slog.Handler that discards all log records.
// Enabled returns false so slog skips formatting entirely (zero cost).
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }
