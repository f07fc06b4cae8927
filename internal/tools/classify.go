package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cuppalabs/cuppa/internal/intent"
)

// Vectors supplies query embeddings, normally through the two-tier
// cache so repeated tool calls for the same text cost nothing.
type Vectors interface {
	GetOrCreate(ctx context.Context, text string) ([]float32, bool, error)
}

// Classifier matches a query vector to an intent.
type Classifier interface {
	Classify(ctx context.Context, qvec []float32) (intent.Result, error)
}

// ClassifyTool exposes intent classification to the model.
type ClassifyTool struct {
	vectors    Vectors
	classifier Classifier
}

var _ Tool = (*ClassifyTool)(nil)

// NewClassifyTool builds the classify_intent tool.
func NewClassifyTool(vectors Vectors, classifier Classifier) *ClassifyTool {
	return &ClassifyTool{vectors: vectors, classifier: classifier}
}

func (t *ClassifyTool) Name() string { return "classify_intent" }

func (t *ClassifyTool) Description() string {
	return "Classify a customer query into PRODUCT_RAG, STORE_LOCATION, or GENERAL_CONVERSATION."
}

func (t *ClassifyTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "The customer query to classify"}
		},
		"required": ["query"]
	}`)
}

type classifyArgs struct {
	Query string `json:"query"`
}

// Execute embeds the query and classifies it.
func (t *ClassifyTool) Execute(ctx context.Context, args json.RawMessage) (Output, error) {
	var in classifyArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return errorOutput(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if in.Query == "" {
		return errorOutput("query must not be empty"), nil
	}

	qvec, _, err := t.vectors.GetOrCreate(ctx, in.Query)
	if err != nil {
		return Output{}, fmt.Errorf("classify_intent: embed: %w", err)
	}
	res, err := t.classifier.Classify(ctx, qvec)
	if err != nil {
		return Output{}, fmt.Errorf("classify_intent: %w", err)
	}

	content := fmt.Sprintf("intent=%s confidence=%.2f", res.Intent, res.Confidence)
	if res.MatchedPhrase != "" {
		content += fmt.Sprintf(" matched=%q", res.MatchedPhrase)
	}
	return Output{
		Content: content,
		Outcome: ClassifyOutcome{
			Intent:        res.Intent,
			Confidence:    res.Confidence,
			MatchedPhrase: res.MatchedPhrase,
			UsedFallback:  res.UsedFallback,
		},
	}, nil
}
