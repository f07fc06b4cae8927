package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cuppalabs/cuppa/internal/catalog"
)

// ProductReader is the slice of the catalog store the detail tool needs.
type ProductReader interface {
	Product(ctx context.Context, id string) (catalog.Product, error)
	ProductByName(ctx context.Context, name string) (catalog.Product, error)
}

// ProductTool exposes single-product lookup to the model.
type ProductTool struct {
	store ProductReader
}

var _ Tool = (*ProductTool)(nil)

// NewProductTool builds the get_product_details tool.
func NewProductTool(store ProductReader) *ProductTool {
	return &ProductTool{store: store}
}

func (t *ProductTool) Name() string { return "get_product_details" }

func (t *ProductTool) Description() string {
	return "Fetch full details for one product by its ID or exact name."
}

func (t *ProductTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"id_or_name": {"type": "string", "description": "Product ID or product name"}
		},
		"required": ["id_or_name"]
	}`)
}

type productArgs struct {
	IDOrName string `json:"id_or_name"`
}

// Execute tries the exact ID first, then a case-insensitive name match.
func (t *ProductTool) Execute(ctx context.Context, args json.RawMessage) (Output, error) {
	var in productArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return errorOutput(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if in.IDOrName == "" {
		return errorOutput("id_or_name must not be empty"), nil
	}

	p, err := t.store.Product(ctx, in.IDOrName)
	if errors.Is(err, catalog.ErrProductNotFound) {
		p, err = t.store.ProductByName(ctx, in.IDOrName)
	}
	if errors.Is(err, catalog.ErrProductNotFound) {
		return Output{
			Content: fmt.Sprintf("no product found for %q", in.IDOrName),
			Outcome: ProductOutcome{Found: false},
		}, nil
	}
	if err != nil {
		return Output{}, fmt.Errorf("get_product_details: %w", err)
	}

	content := fmt.Sprintf("%s: %s roast from %s. %s Notes: %s. Price: $%.2f.",
		p.Name, p.Category, p.Origin, p.Description,
		strings.Join(p.Notes, ", "), float64(p.PriceCents)/100)
	return Output{
		Content: content,
		Outcome: ProductOutcome{Product: p, Found: true},
	}, nil
}
