package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cuppalabs/cuppa/internal/respcache"
	"github.com/cuppalabs/cuppa/internal/vec"
)

// VectorStore implements the persistent tier of the embedding cache.
// Expiry is enforced on read and by SweepExpired; rows linger in
// between.
type VectorStore struct {
	db  *sql.DB
	now func() time.Time
}

// GetVector returns the vector stored under key. An expired row is a
// miss; a hit increments the row's counter.
func (v *VectorStore) GetVector(ctx context.Context, key string) ([]float32, bool, error) {
	var blob []byte
	err := v.db.QueryRowContext(ctx, `
		SELECT vector FROM embedding_cache
		WHERE key = ? AND expires_at > ?`,
		key, v.now().UnixMilli()).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: get vector: %w", err)
	}

	vector, err := vec.Decode(blob)
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: decode cached vector: %w", err)
	}

	if _, err := v.db.ExecContext(ctx, "UPDATE embedding_cache SET hit_count = hit_count + 1 WHERE key = ?", key); err != nil {
		return nil, false, fmt.Errorf("sqlite: bump vector hits: %w", err)
	}

	return vector, true, nil
}

// PutVector inserts or replaces the row for key. Replacing resets the
// hit counter.
func (v *VectorStore) PutVector(ctx context.Context, key, text string, vector []float32, ttl time.Duration) error {
	now := v.now()
	_, err := v.db.ExecContext(ctx, `
		INSERT INTO embedding_cache (key, text, vector, hit_count, created_at, expires_at)
		VALUES (?, ?, ?, 0, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			text = excluded.text,
			vector = excluded.vector,
			hit_count = 0,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at`,
		key, text, vec.Encode(vector),
		now.UTC().Format(time.RFC3339Nano), now.Add(ttl).UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite: put vector: %w", err)
	}
	return nil
}

// SweepExpired deletes expired embedding rows and reports how many were
// dropped.
func (v *VectorStore) SweepExpired(ctx context.Context) (int64, error) {
	res, err := v.db.ExecContext(ctx, "DELETE FROM embedding_cache WHERE expires_at <= ?", v.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sqlite: sweep embedding cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: sweep embedding cache rows: %w", err)
	}
	return n, nil
}

// HitCount returns the hit counter for key, or 0 if absent. Expiry is
// ignored; the counter is an operability signal, not cache state.
func (v *VectorStore) HitCount(ctx context.Context, key string) (int64, error) {
	var n int64
	err := v.db.QueryRowContext(ctx, "SELECT hit_count FROM embedding_cache WHERE key = ?", key).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite: vector hit count: %w", err)
	}
	return n, nil
}

// ResponseStore implements the persistent response cache.
type ResponseStore struct {
	db  *sql.DB
	now func() time.Time
}

// GetResponse returns the payload stored under key. An expired row is a
// miss; a hit increments the row's counter.
func (r *ResponseStore) GetResponse(ctx context.Context, key string) (respcache.CachedResponse, bool, error) {
	var (
		resp    respcache.CachedResponse
		idsJSON string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT answer, intent, product_ids FROM response_cache
		WHERE key = ? AND expires_at > ?`,
		key, r.now().UnixMilli()).Scan(&resp.Answer, &resp.Intent, &idsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return respcache.CachedResponse{}, false, nil
	}
	if err != nil {
		return respcache.CachedResponse{}, false, fmt.Errorf("sqlite: get response: %w", err)
	}

	if idsJSON != "" && idsJSON != "[]" {
		if err := json.Unmarshal([]byte(idsJSON), &resp.ProductIDs); err != nil {
			return respcache.CachedResponse{}, false, fmt.Errorf("sqlite: unmarshal product ids: %w", err)
		}
	}

	if _, err := r.db.ExecContext(ctx, "UPDATE response_cache SET hit_count = hit_count + 1 WHERE key = ?", key); err != nil {
		return respcache.CachedResponse{}, false, fmt.Errorf("sqlite: bump response hits: %w", err)
	}

	return resp, true, nil
}

// PutResponse inserts or replaces the row for key. Replacing resets the
// hit counter.
func (r *ResponseStore) PutResponse(ctx context.Context, key string, resp respcache.CachedResponse, ttl time.Duration) error {
	idsJSON, err := json.Marshal(resp.ProductIDs)
	if err != nil {
		return fmt.Errorf("sqlite: marshal product ids: %w", err)
	}

	now := r.now()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO response_cache (key, answer, intent, product_ids, hit_count, created_at, expires_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			answer = excluded.answer,
			intent = excluded.intent,
			product_ids = excluded.product_ids,
			hit_count = 0,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at`,
		key, resp.Answer, resp.Intent, string(idsJSON),
		now.UTC().Format(time.RFC3339Nano), now.Add(ttl).UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite: put response: %w", err)
	}
	return nil
}

// SweepExpired deletes expired response rows and reports how many were
// dropped.
func (r *ResponseStore) SweepExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM response_cache WHERE expires_at <= ?", r.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sqlite: sweep response cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: sweep response cache rows: %w", err)
	}
	return n, nil
}
