package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cuppalabs/cuppa/internal/metrics"
)

// MetricTool exposes search-metric recording to the model so agent
// workflows can report their own timings.
type MetricTool struct {
	store metrics.Store
}

var _ Tool = (*MetricTool)(nil)

// NewMetricTool builds the record_search_metric tool.
func NewMetricTool(store metrics.Store) *MetricTool {
	return &MetricTool{store: store}
}

func (t *MetricTool) Name() string { return "record_search_metric" }

func (t *MetricTool) Description() string {
	return "Record timing and result-count telemetry for a completed product search."
}

func (t *MetricTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query_id": {"type": "string"},
			"user_id": {"type": "string"},
			"query": {"type": "string"},
			"intent": {"type": "string"},
			"embedding_ms": {"type": "integer"},
			"search_ms": {"type": "integer"},
			"total_ms": {"type": "integer"},
			"similarity_score": {"type": "number"},
			"result_count": {"type": "integer"}
		},
		"required": ["query_id"]
	}`)
}

type metricArgs struct {
	QueryID         string  `json:"query_id"`
	UserID          string  `json:"user_id"`
	Query           string  `json:"query"`
	Intent          string  `json:"intent"`
	EmbeddingMs     int64   `json:"embedding_ms"`
	SearchMs        int64   `json:"search_ms"`
	TotalMs         int64   `json:"total_ms"`
	SimilarityScore float64 `json:"similarity_score"`
	ResultCount     int     `json:"result_count"`
}

// Execute appends one metric row. Appends are idempotent from the
// pipeline's point of view; there is nothing to roll back on failure.
func (t *MetricTool) Execute(ctx context.Context, args json.RawMessage) (Output, error) {
	var in metricArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return errorOutput(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if in.QueryID == "" {
		return errorOutput("query_id must not be empty"), nil
	}

	m := metrics.SearchMetric{
		QueryID:         in.QueryID,
		UserID:          in.UserID,
		Query:           in.Query,
		Intent:          in.Intent,
		EmbeddingMs:     in.EmbeddingMs,
		SearchMs:        in.SearchMs,
		TotalMs:         in.TotalMs,
		SimilarityScore: in.SimilarityScore,
		ResultCount:     in.ResultCount,
	}
	if err := t.store.AppendSearchMetric(ctx, m); err != nil {
		return Output{}, fmt.Errorf("record_search_metric: %w", err)
	}

	return Output{
		Content: fmt.Sprintf("metric recorded for query %s", in.QueryID),
		Outcome: MetricOutcome{QueryID: in.QueryID, Recorded: true},
	}, nil
}
