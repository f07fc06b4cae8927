package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cuppalabs/cuppa/internal/catalog"
	"github.com/cuppalabs/cuppa/internal/vec"
)

// CatalogStore implements catalog.Store backed by SQLite. Nearest-
// neighbour queries rank rows with the vec_distance_cosine function,
// breaking ties by rowid so results are deterministic.
type CatalogStore struct {
	db  *sql.DB
	now func() time.Time
}

// UpsertProduct inserts the product or replaces an existing row with the
// same ID. The upsert keeps the original rowid, preserving insertion
// order for tie-breaks.
func (c *CatalogStore) UpsertProduct(ctx context.Context, p catalog.Product) error {
	notesJSON, err := json.Marshal(p.Notes)
	if err != nil {
		return fmt.Errorf("sqlite: marshal notes: %w", err)
	}

	var blob []byte
	if len(p.Embedding) > 0 {
		blob = vec.Encode(p.Embedding)
	}

	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = c.now().UTC()
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO products (id, name, category, origin, description, notes, price_cents, embedding, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			origin = excluded.origin,
			description = excluded.description,
			notes = excluded.notes,
			price_cents = excluded.price_cents,
			embedding = excluded.embedding,
			updated_at = excluded.updated_at`,
		p.ID, p.Name, p.Category, p.Origin, p.Description,
		string(notesJSON), p.PriceCents, blob,
		updatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("sqlite: upsert product: %w", err)
	}

	return nil
}

// Product returns the product with the given ID, or
// catalog.ErrProductNotFound.
func (c *CatalogStore) Product(ctx context.Context, id string) (catalog.Product, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, name, category, origin, description, notes, price_cents, embedding, updated_at
		FROM products WHERE id = ?`, id)
	return scanProduct(row)
}

// ProductByName returns the first product whose name matches
// case-insensitively, or catalog.ErrProductNotFound.
func (c *CatalogStore) ProductByName(ctx context.Context, name string) (catalog.Product, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, name, category, origin, description, notes, price_cents, embedding, updated_at
		FROM products WHERE name = ? COLLATE NOCASE
		ORDER BY rowid LIMIT 1`, name)
	return scanProduct(row)
}

// NearestProducts returns up to limit products ordered by ascending
// cosine distance to qvec. Products without an embedding are skipped.
func (c *CatalogStore) NearestProducts(ctx context.Context, qvec []float32, limit int) ([]catalog.Candidate, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, name, category, origin, description, notes, price_cents, embedding, updated_at,
		       vec_distance_cosine(embedding, ?) AS distance
		FROM products
		WHERE embedding IS NOT NULL
		ORDER BY distance ASC, rowid ASC
		LIMIT ?`,
		vec.Encode(qvec), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: nearest products: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []catalog.Candidate
	for rows.Next() {
		var (
			p            catalog.Product
			notesJSON    string
			blob         []byte
			updatedAtStr string
			distance     float64
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Origin, &p.Description,
			&notesJSON, &p.PriceCents, &blob, &updatedAtStr, &distance); err != nil {
			return nil, fmt.Errorf("sqlite: scan candidate: %w", err)
		}
		if err := hydrateProduct(&p, notesJSON, blob, updatedAtStr); err != nil {
			return nil, err
		}
		out = append(out, catalog.Candidate{Product: p, Distance: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: nearest products rows: %w", err)
	}

	return out, nil
}

// CountProducts returns the number of stored products.
func (c *CatalogStore) CountProducts(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM products").Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count products: %w", err)
	}
	return n, nil
}

// UpsertLocation inserts or replaces a store location.
func (c *CatalogStore) UpsertLocation(ctx context.Context, loc catalog.StoreLocation) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO store_locations (id, name, address, city, latitude, longitude, hours)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			address = excluded.address,
			city = excluded.city,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			hours = excluded.hours`,
		loc.ID, loc.Name, loc.Address, loc.City, loc.Latitude, loc.Longitude, loc.Hours)
	if err != nil {
		return fmt.Errorf("sqlite: upsert location: %w", err)
	}
	return nil
}

// LocationsByCity returns locations in the given city (case-insensitive),
// ordered by ID. An empty city returns all locations.
func (c *CatalogStore) LocationsByCity(ctx context.Context, city string) ([]catalog.StoreLocation, error) {
	query := `
		SELECT id, name, address, city, latitude, longitude, hours
		FROM store_locations`
	args := []any{}
	if city != "" {
		query += " WHERE city = ? COLLATE NOCASE"
		args = append(args, city)
	}
	query += " ORDER BY id"

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: locations by city: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []catalog.StoreLocation
	for rows.Next() {
		var loc catalog.StoreLocation
		if err := rows.Scan(&loc.ID, &loc.Name, &loc.Address, &loc.City,
			&loc.Latitude, &loc.Longitude, &loc.Hours); err != nil {
			return nil, fmt.Errorf("sqlite: scan location: %w", err)
		}
		out = append(out, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: locations rows: %w", err)
	}

	return out, nil
}

// scanProduct reads a single product row, translating sql.ErrNoRows to
// the catalog sentinel.
func scanProduct(row *sql.Row) (catalog.Product, error) {
	var (
		p            catalog.Product
		notesJSON    string
		blob         []byte
		updatedAtStr string
	)
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Origin, &p.Description,
		&notesJSON, &p.PriceCents, &blob, &updatedAtStr)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	if err != nil {
		return catalog.Product{}, fmt.Errorf("sqlite: scan product: %w", err)
	}
	if err := hydrateProduct(&p, notesJSON, blob, updatedAtStr); err != nil {
		return catalog.Product{}, err
	}
	return p, nil
}

// hydrateProduct decodes the serialized columns into the product.
func hydrateProduct(p *catalog.Product, notesJSON string, blob []byte, updatedAtStr string) error {
	if notesJSON != "" && notesJSON != "[]" {
		if err := json.Unmarshal([]byte(notesJSON), &p.Notes); err != nil {
			return fmt.Errorf("sqlite: unmarshal notes: %w", err)
		}
	}
	if len(blob) > 0 {
		v, err := vec.Decode(blob)
		if err != nil {
			return fmt.Errorf("sqlite: decode embedding: %w", err)
		}
		p.Embedding = v
	}
	if updatedAtStr != "" {
		t, err := time.Parse(time.RFC3339Nano, updatedAtStr)
		if err != nil {
			return fmt.Errorf("sqlite: parse updated_at: %w", err)
		}
		p.UpdatedAt = t
	}
	return nil
}
