package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cuppalabs/cuppa/internal/provider"
	"github.com/cuppalabs/cuppa/internal/tools"
)

// Sentinel errors for loop termination.
var (
	ErrNoMessages           = errors.New("agent: request has no messages")
	ErrTokenBudgetExceeded  = errors.New("agent: token budget exceeded")
	ErrMaxIterationsReached = errors.New("agent: max iterations reached")
	ErrLoopDetected         = errors.New("agent: loop detected")
)

// Loop drives the provider and the tool registry until the model stops
// asking for tools.
type Loop struct {
	provider provider.Provider
	registry *tools.Registry
	config   LoopConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewLoop creates a Loop with the given provider, registry, and config.
// A nil logger discards output.
func NewLoop(p provider.Provider, registry *tools.Registry, cfg LoopConfig, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.New(nopHandler{})
	}
	return &Loop{
		provider: p,
		registry: registry,
		config:   cfg.withDefaults(),
		logger:   logger,
		now:      time.Now,
	}
}

// Run starts the loop and returns its event channel. Text fragments are
// forwarded as they arrive from the provider; tool calls execute in
// input order with their results re-injected into the conversation.
// Exactly one terminal event closes the run: done with the aggregated
// answer, or error.
//
// A context.WithTimeout is applied using the loop's Timeout. If the
// caller's context carries a shorter deadline, the shorter one wins.
func (l *Loop) Run(ctx context.Context, req Request) (<-chan Event, error) {
	if len(req.Messages) == 0 {
		return nil, ErrNoMessages
	}

	ch := make(chan Event, 16)
	go func() {
		defer close(ch)
		l.run(ctx, req, ch)
	}()
	return ch, nil
}

func (l *Loop) run(ctx context.Context, req Request, ch chan<- Event) {
	ctx, cancel := context.WithTimeout(ctx, l.config.Timeout)
	defer cancel()

	detector := newLoopDetector(l.config.LoopThreshold)
	tracker := newTokenTracker(l.config.TokenBudget)
	messages := buildInitialMessages(req)

	for i := 0; i < l.config.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			ch <- Event{Type: EventError, Err: err}
			return
		}
		if tracker.exceeded() {
			ch <- Event{Type: EventError, Err: ErrTokenBudgetExceeded}
			return
		}

		streamCh, err := l.provider.Stream(ctx, provider.CompletionRequest{
			Messages: messages,
			Tools:    req.Tools,
		})
		if err != nil {
			ch <- Event{Type: EventError, Err: err}
			return
		}

		// Consume the stream, forwarding text and accumulating tool calls.
		var content string
		var toolCalls []provider.ToolCall
		var usage *provider.TokenUsage
		var streamErr error
		for chunk := range streamCh {
			if chunk.Err != nil {
				streamErr = chunk.Err
				break
			}
			if chunk.Content != "" {
				content += chunk.Content
				ch <- Event{Type: EventText, Text: chunk.Content}
			}
			if len(chunk.ToolCalls) > 0 {
				toolCalls = append(toolCalls, chunk.ToolCalls...)
			}
			if chunk.Usage != nil {
				usage = chunk.Usage
			}
		}
		if streamErr != nil {
			// Drain remaining chunks to prevent provider goroutine leak.
			for range streamCh {
			}
			ch <- Event{Type: EventError, Err: streamErr}
			return
		}

		if usage != nil {
			tracker.add(*usage)
			if tracker.exceeded() {
				ch <- Event{Type: EventError, Err: ErrTokenBudgetExceeded}
				return
			}
		}

		// No tool calls means the model is done reasoning.
		if len(toolCalls) == 0 {
			total := tracker.total()
			ch <- Event{Type: EventDone, Text: content, Usage: &total, Final: true}
			return
		}

		// Check loops before appending the assistant message to avoid
		// leaving an orphan assistant message without tool results.
		for _, tc := range toolCalls {
			if detector.record(tc.Name, tc.Arguments) {
				l.logger.Warn("agent: loop detected", "tool", tc.Name)
				ch <- Event{Type: EventError, Err: ErrLoopDetected}
				return
			}
		}

		messages = append(messages, provider.Message{
			Role:      provider.MessageRoleAssistant,
			Content:   content,
			ToolCalls: toolCalls,
		})

		// Execute in input order; each result goes back into the
		// conversation as a tool message.
		for _, tc := range toolCalls {
			rec := l.executeCall(ctx, tc, ch)
			messages = append(messages, provider.Message{
				Role:    provider.MessageRoleTool,
				Content: rec.Output.Content,
				ToolID:  rec.ID,
				IsError: rec.Output.IsError,
			})
		}
	}

	ch <- Event{Type: EventError, Err: ErrMaxIterationsReached}
}

// executeCall runs one tool call, emitting tool_call before and
// tool_result after.
func (l *Loop) executeCall(ctx context.Context, tc provider.ToolCall, ch chan<- Event) CallRecord {
	rec := CallRecord{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments}
	ch <- Event{Type: EventToolCall, Call: &rec}

	start := l.now()
	out, err := l.registry.Execute(ctx, tc.Name, tc.Arguments)
	rec.Duration = l.now().Sub(start)
	if err != nil {
		// Only cancellation reaches here; report it as an error output
		// so the record stays self-describing.
		out = tools.Output{Content: err.Error(), IsError: true}
	}
	rec.Output = out

	done := rec
	ch <- Event{Type: EventToolResult, Call: &done, Outcome: out.Outcome}
	return rec
}

// buildInitialMessages assembles the starting history from the request.
func buildInitialMessages(req Request) []provider.Message {
	var messages []provider.Message
	if req.SystemPrompt != "" {
		messages = append(messages, provider.Message{
			Role:    provider.MessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	return append(messages, req.Messages...)
}

// nopHandler is a slog.Handler that discards all log records.
// Enabled returns false so slog skips formatting entirely (zero cost).
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }
