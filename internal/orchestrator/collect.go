package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/cuppalabs/cuppa/internal/agent"
	"github.com/cuppalabs/cuppa/internal/catalog"
	"github.com/cuppalabs/cuppa/internal/intent"
	"github.com/cuppalabs/cuppa/internal/provider"
	"github.com/cuppalabs/cuppa/internal/search"
	"github.com/cuppalabs/cuppa/internal/session"
	"github.com/cuppalabs/cuppa/internal/tools"
)

// collected is what one agent run produced.
type collected struct {
	answer   string
	outcomes []tools.Outcome
	usage    *provider.TokenUsage
	err      error
}

// narrationMarkers flag text fragments that leak internal tool-call
// narration. Matching is case-insensitive substring.
var narrationMarkers = []string{
	"tool_call",
	"tool call",
	"calling tool",
	"invoking",
	"function_call",
	"<thinking",
	"[tool",
}

func looksLikeNarration(s string) bool {
	ls := strings.ToLower(s)
	for _, marker := range narrationMarkers {
		if strings.Contains(ls, marker) {
			return true
		}
	}
	return false
}

// collect drains the agent event channel, assembling the answer from
// text fragments (narration filtered out) and gathering typed tool
// outcomes. Fragments are forwarded to the request sink as they arrive.
func (o *Orchestrator) collect(p *pipeline, events <-chan agent.Event) collected {
	var col collected
	var b strings.Builder
	for ev := range events {
		switch ev.Type {
		case agent.EventText:
			if looksLikeNarration(ev.Text) {
				o.logger.Debug("orchestrator: narration fragment filtered",
					"query_id", p.queryID)
				continue
			}
			b.WriteString(ev.Text)
			p.emitText(ev.Text)
		case agent.EventToolCall:
			if ev.Call != nil {
				o.logger.Debug("orchestrator: agent calling tool",
					"query_id", p.queryID, "tool", ev.Call.Name)
				p.emit(StreamEvent{Type: "tool", Stage: ev.Call.Name})
			}
		case agent.EventToolResult:
			if ev.Outcome != nil {
				col.outcomes = append(col.outcomes, ev.Outcome)
			}
		case agent.EventDone:
			col.usage = ev.Usage
			// Fragments already carry the answer; the done text only
			// matters if every fragment was filtered or absent.
			if b.Len() == 0 && ev.Text != "" && !looksLikeNarration(ev.Text) {
				b.WriteString(ev.Text)
			}
		case agent.EventError:
			col.err = ev.Err
		}
	}
	col.answer = strings.TrimSpace(b.String())
	return col
}

// latestSearchOutcome returns the most recent product search outcome.
func latestSearchOutcome(outcomes []tools.Outcome) (tools.SearchOutcome, bool) {
	for i := len(outcomes) - 1; i >= 0; i-- {
		if so, ok := outcomes[i].(tools.SearchOutcome); ok {
			return so, true
		}
	}
	return tools.SearchOutcome{}, false
}

// latestLocationsOutcome returns the most recent location lookup outcome.
func latestLocationsOutcome(outcomes []tools.Outcome) (tools.LocationsOutcome, bool) {
	for i := len(outcomes) - 1; i >= 0; i-- {
		if lo, ok := outcomes[i].(tools.LocationsOutcome); ok {
			return lo, true
		}
	}
	return tools.LocationsOutcome{}, false
}

// systemPrompt builds the agent's system prompt from the persona and,
// for grounded product queries, the pre-searched candidates.
func (o *Orchestrator) systemPrompt(p *pipeline) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are Cuppa, a coffee roaster's catalog concierge. Speak as a %s.\n", p.persona)
	b.WriteString("Answer questions about the roaster's coffees and store locations.\n")
	b.WriteString("For product recommendations, call search_products_by_vector first and only recommend products it returns.\n")
	b.WriteString("For store questions, call find_store_locations first.\n")
	b.WriteString("Keep answers short and conversational. Never narrate your tool usage.\n")
	if len(p.preMatches) > 0 {
		b.WriteString("\nCandidate products for this query, verify with the search tool before recommending:\n")
		for _, m := range p.preMatches {
			fmt.Fprintf(&b, "- %s", m.Product.Name)
			if m.Product.Origin != "" {
				fmt.Fprintf(&b, " (%s)", m.Product.Origin)
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// promptMessages assembles the conversation: recent session history in
// chronological order, then the current query. History failures degrade
// to a single-message conversation.
func (o *Orchestrator) promptMessages(ctx context.Context, p *pipeline, query string) []provider.Message {
	turns, err := o.deps.Sessions.History(ctx, p.sess.ID, o.cfg.HistoryTurns)
	if err != nil {
		o.logger.Warn("orchestrator: history unavailable",
			"session_id", p.sess.ID, "error", err)
		turns = nil
	}
	msgs := make([]provider.Message, 0, len(turns)+1)
	for _, t := range turns {
		role := provider.MessageRoleUser
		if t.Role == session.RoleAssistant {
			role = provider.MessageRoleAssistant
		}
		msgs = append(msgs, provider.Message{Role: role, Content: t.Content})
	}
	msgs = append(msgs, provider.Message{Role: provider.MessageRoleUser, Content: query})
	return msgs
}

// reminderFor is the sentence appended to the query on the first
// recovery rung.
func reminderFor(in intent.Intent) string {
	if in == intent.StoreLocation {
		return "Reminder: call the find_store_locations tool and base your answer on its results."
	}
	return "Reminder: call the search_products_by_vector tool and only recommend products it returns."
}

// synthesizeProducts renders a direct answer from search matches when
// the agent could not be made to ground itself.
func synthesizeProducts(matches []search.Match) string {
	if len(matches) == 0 {
		return "I couldn't find a matching coffee in our catalog right now. " +
			"Try describing the flavor you're after, like \"bold and chocolatey\" or \"bright and fruity\"."
	}
	var b strings.Builder
	b.WriteString("Here's what I found in our catalog:\n")
	for _, m := range matches {
		pr := m.Product
		fmt.Fprintf(&b, "- %s", pr.Name)
		if pr.Origin != "" {
			fmt.Fprintf(&b, " (%s)", pr.Origin)
		}
		if len(pr.Notes) > 0 {
			fmt.Fprintf(&b, ": %s", strings.Join(pr.Notes, ", "))
		}
		if pr.PriceCents > 0 {
			fmt.Fprintf(&b, " - $%.2f", float64(pr.PriceCents)/100)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// synthesizeLocations renders a direct answer from store locations.
func synthesizeLocations(locs []catalog.StoreLocation) string {
	if len(locs) == 0 {
		return "I couldn't look up our store locations right now. Please try again in a moment."
	}
	var b strings.Builder
	b.WriteString("You can find us at:\n")
	for _, l := range locs {
		fmt.Fprintf(&b, "- %s, %s, %s", l.Name, l.Address, l.City)
		if l.Hours != "" {
			fmt.Fprintf(&b, " (%s)", l.Hours)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
