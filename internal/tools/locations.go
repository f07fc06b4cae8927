package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cuppalabs/cuppa/internal/catalog"
)

// LocationReader is the slice of the catalog store the location tool
// needs.
type LocationReader interface {
	LocationsByCity(ctx context.Context, city string) ([]catalog.StoreLocation, error)
}

// LocationsTool exposes store location lookup to the model.
type LocationsTool struct {
	store LocationReader
}

var _ Tool = (*LocationsTool)(nil)

// NewLocationsTool builds the find_store_locations tool.
func NewLocationsTool(store LocationReader) *LocationsTool {
	return &LocationsTool{store: store}
}

func (t *LocationsTool) Name() string { return "find_store_locations" }

func (t *LocationsTool) Description() string {
	return "List physical store locations, optionally filtered by city."
}

func (t *LocationsTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"city": {"type": "string", "description": "City to filter by; omit for all locations"}
		}
	}`)
}

type locationsArgs struct {
	City string `json:"city"`
}

// Execute lists locations, all of them when no city is given.
func (t *LocationsTool) Execute(ctx context.Context, args json.RawMessage) (Output, error) {
	var in locationsArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &in); err != nil {
			return errorOutput(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
	}

	locations, err := t.store.LocationsByCity(ctx, in.City)
	if err != nil {
		return Output{}, fmt.Errorf("find_store_locations: %w", err)
	}

	return Output{
		Content: formatLocations(locations, in.City),
		Outcome: LocationsOutcome{Locations: locations},
	}, nil
}

func formatLocations(locations []catalog.StoreLocation, city string) string {
	if len(locations) == 0 {
		if city != "" {
			return fmt.Sprintf("no store locations in %s", city)
		}
		return "no store locations on file"
	}
	var b strings.Builder
	for i, loc := range locations {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s, %s, %s (hours: %s)", loc.Name, loc.Address, loc.City, loc.Hours)
	}
	return b.String()
}
