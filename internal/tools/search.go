package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cuppalabs/cuppa/internal/search"
)

// Searcher ranks catalog products against a query vector.
type Searcher interface {
	Search(ctx context.Context, qvec []float32, limit int, threshold float64) ([]search.Match, search.Timing, error)
}

// SearchTool exposes product vector search to the model.
type SearchTool struct {
	vectors  Vectors
	searcher Searcher
	now      func() time.Time
}

var _ Tool = (*SearchTool)(nil)

// NewSearchTool builds the search_products_by_vector tool.
func NewSearchTool(vectors Vectors, searcher Searcher) *SearchTool {
	return &SearchTool{vectors: vectors, searcher: searcher, now: time.Now}
}

func (t *SearchTool) Name() string { return "search_products_by_vector" }

func (t *SearchTool) Description() string {
	return "Find catalog products semantically similar to a customer query. Returns name, origin, tasting notes, and similarity per match."
}

func (t *SearchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "What the customer is looking for"},
			"limit": {"type": "integer", "description": "Maximum number of matches"},
			"threshold": {"type": "number", "description": "Minimum similarity in [0,1]"}
		},
		"required": ["query"]
	}`)
}

type searchArgs struct {
	Query     string  `json:"query"`
	Limit     int     `json:"limit"`
	Threshold float64 `json:"threshold"`
}

// Execute embeds the query through the cache and runs the search.
func (t *SearchTool) Execute(ctx context.Context, args json.RawMessage) (Output, error) {
	var in searchArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return errorOutput(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if in.Query == "" {
		return errorOutput("query must not be empty"), nil
	}

	embedStart := t.now()
	qvec, cacheHit, err := t.vectors.GetOrCreate(ctx, in.Query)
	embedDur := t.now().Sub(embedStart)
	if err != nil {
		return Output{}, fmt.Errorf("search_products_by_vector: embed: %w", err)
	}

	matches, timing, err := t.searcher.Search(ctx, qvec, in.Limit, in.Threshold)
	if err != nil {
		return Output{}, fmt.Errorf("search_products_by_vector: %w", err)
	}

	return Output{
		Content: formatMatches(matches),
		Outcome: SearchOutcome{
			Matches:        matches,
			Limit:          in.Limit,
			Threshold:      in.Threshold,
			EmbedCacheHit:  cacheHit,
			EmbedDuration:  embedDur,
			SearchDuration: timing.Search,
		},
	}, nil
}

// formatMatches renders matches as compact lines the model can quote.
func formatMatches(matches []search.Match) string {
	if len(matches) == 0 {
		return "no products matched"
	}
	var b strings.Builder
	for i, m := range matches {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s (%s", m.Product.Name, m.Product.Origin)
		if len(m.Product.Notes) > 0 {
			fmt.Fprintf(&b, ", %s", strings.Join(m.Product.Notes, ", "))
		}
		fmt.Fprintf(&b, ") similarity=%.2f id=%s", m.Similarity, m.Product.ID)
	}
	return b.String()
}
