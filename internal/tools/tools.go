// Package tools defines the tool surface the agent drives. Every
// capability the model can invoke goes through a registered tool, and
// every tool reports a typed outcome the orchestrator can validate
// without probing strings.
package tools

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrToolNotFound is returned when a tool is not found in the registry.
	ErrToolNotFound = errors.New("tools: tool not found")

	// ErrEmptyToolName is returned when a tool name is empty.
	ErrEmptyToolName = errors.New("tools: tool name must not be empty")

	// ErrDuplicateTool is returned when registering a tool with a name
	// that already exists in the registry.
	ErrDuplicateTool = errors.New("tools: tool already registered")
)

// Tool is the interface all cuppa tools implement.
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns what the tool does, phrased for the model.
	Description() string

	// Schema returns a JSON Schema describing the tool's parameters.
	Schema() json.RawMessage

	// Execute runs the tool with the given arguments.
	Execute(ctx context.Context, args json.RawMessage) (Output, error)
}

// Output is the result of a tool execution. Content is what the model
// sees; Outcome is what the orchestrator validates.
type Output struct {
	Content string
	IsError bool
	Outcome Outcome
}

// errorOutput builds an IsError output with no outcome.
func errorOutput(msg string) Output {
	return Output{Content: msg, IsError: true}
}
