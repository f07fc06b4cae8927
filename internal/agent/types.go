// Package agent implements the reasoning loop that turns a prompt into
// a final answer through iterative provider calls and tool executions.
// Consumers watch the loop through an event channel rather than waiting
// for a blocking call to return.
package agent

import (
	"encoding/json"
	"time"

	"github.com/cuppalabs/cuppa/internal/provider"
	"github.com/cuppalabs/cuppa/internal/tools"
)

// EventType identifies the kind of loop event.
type EventType string

// EventType constants for loop events.
const (
	EventText       EventType = "text"
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	EventDone       EventType = "done"
	EventError      EventType = "error"
)

// CallRecord tracks one tool invocation during the loop.
type CallRecord struct {
	ID        string
	Name      string
	Arguments json.RawMessage
	Output    tools.Output
	Duration  time.Duration
}

// Event is a single event emitted while the loop runs. Exactly one
// terminal event arrives per run: done (Final=true) or error.
type Event struct {
	Type EventType

	// Text carries a streamed fragment for text events and the full
	// aggregated answer for done events.
	Text string

	// Call is set on tool_call and tool_result events.
	Call *CallRecord

	// Outcome is the typed result of a tool execution, set on
	// tool_result events when the tool produced one.
	Outcome tools.Outcome

	// Usage is the cumulative token usage, set on done events.
	Usage *provider.TokenUsage

	// Err is set on error events.
	Err error

	// Final marks the done event.
	Final bool
}

// Request is the input to the loop.
type Request struct {
	SystemPrompt string
	Messages     []provider.Message
	Tools        []provider.ToolDefinition
}
