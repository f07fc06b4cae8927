package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cuppalabs/cuppa/internal/intent"
	"github.com/cuppalabs/cuppa/internal/vec"
)

// ExemplarStore implements intent.Store backed by SQLite. The upsert
// keeps the original rowid, so All preserves first-insertion order even
// after a phrase is edited.
type ExemplarStore struct {
	db *sql.DB
}

// All returns every exemplar in insertion order.
func (e *ExemplarStore) All(ctx context.Context) ([]intent.Exemplar, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT id, intent, phrase, embedding, threshold, usage_count
		FROM intent_exemplars ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list exemplars: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []intent.Exemplar
	for rows.Next() {
		var (
			ex    intent.Exemplar
			label string
			blob  []byte
		)
		if err := rows.Scan(&ex.ID, &label, &ex.Phrase, &blob, &ex.Threshold, &ex.UsageCount); err != nil {
			return nil, fmt.Errorf("sqlite: scan exemplar: %w", err)
		}
		ex.Intent = intent.Intent(label)
		if len(blob) > 0 {
			v, err := vec.Decode(blob)
			if err != nil {
				return nil, fmt.Errorf("sqlite: decode exemplar embedding: %w", err)
			}
			ex.Embedding = v
		}
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list exemplars rows: %w", err)
	}

	return out, nil
}

// Put inserts or replaces an exemplar by ID.
func (e *ExemplarStore) Put(ctx context.Context, ex intent.Exemplar) error {
	var blob []byte
	if len(ex.Embedding) > 0 {
		blob = vec.Encode(ex.Embedding)
	}

	_, err := e.db.ExecContext(ctx, `
		INSERT INTO intent_exemplars (id, intent, phrase, embedding, threshold, usage_count)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			intent = excluded.intent,
			phrase = excluded.phrase,
			embedding = excluded.embedding,
			threshold = excluded.threshold,
			usage_count = excluded.usage_count`,
		ex.ID, string(ex.Intent), ex.Phrase, blob, ex.Threshold, ex.UsageCount)
	if err != nil {
		return fmt.Errorf("sqlite: put exemplar: %w", err)
	}
	return nil
}

// SaveEmbedding attaches a generated embedding to an existing exemplar.
// Returns intent.ErrExemplarNotFound for unknown IDs.
func (e *ExemplarStore) SaveEmbedding(ctx context.Context, id string, v []float32) error {
	res, err := e.db.ExecContext(ctx, "UPDATE intent_exemplars SET embedding = ? WHERE id = ?", vec.Encode(v), id)
	if err != nil {
		return fmt.Errorf("sqlite: save exemplar embedding: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: save exemplar embedding rows: %w", err)
	}
	if n == 0 {
		return intent.ErrExemplarNotFound
	}
	return nil
}

// IncrementUsage bumps the usage counter of the winning exemplar.
// Returns intent.ErrExemplarNotFound for unknown IDs.
func (e *ExemplarStore) IncrementUsage(ctx context.Context, id string) error {
	res, err := e.db.ExecContext(ctx, "UPDATE intent_exemplars SET usage_count = usage_count + 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("sqlite: increment exemplar usage: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: increment exemplar usage rows: %w", err)
	}
	if n == 0 {
		return intent.ErrExemplarNotFound
	}
	return nil
}
