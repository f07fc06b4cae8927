package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cuppalabs/cuppa/internal/metrics"
)

// MetricStore implements metrics.Store backed by SQLite. Metrics are
// write-once appends; the AUTOINCREMENT id doubles as the recency order.
type MetricStore struct {
	db  *sql.DB
	now func() time.Time
}

// AppendSearchMetric implements metrics.Store.
func (m *MetricStore) AppendSearchMetric(ctx context.Context, sm metrics.SearchMetric) error {
	createdAt := sm.CreatedAt
	if createdAt.IsZero() {
		createdAt = m.now().UTC()
	}

	fromCache := 0
	if sm.FromCache {
		fromCache = 1
	}

	_, err := m.db.ExecContext(ctx, `
		INSERT INTO search_metrics
			(query_id, user_id, query, intent, embedding_ms, search_ms, total_ms,
			 similarity, result_count, from_cache, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sm.QueryID, sm.UserID, sm.Query, sm.Intent,
		sm.EmbeddingMs, sm.SearchMs, sm.TotalMs,
		sm.SimilarityScore, sm.ResultCount, fromCache,
		createdAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("sqlite: append search metric: %w", err)
	}
	return nil
}

// RecentSearchMetrics implements metrics.Store, newest first. A
// non-positive limit returns everything.
func (m *MetricStore) RecentSearchMetrics(ctx context.Context, limit int) ([]metrics.SearchMetric, error) {
	if limit <= 0 {
		limit = -1 // SQLite treats a negative LIMIT as "no limit".
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT query_id, user_id, query, intent, embedding_ms, search_ms, total_ms,
		       similarity, result_count, from_cache, created_at
		FROM search_metrics
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: recent metrics: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []metrics.SearchMetric
	for rows.Next() {
		var (
			sm           metrics.SearchMetric
			fromCache    int
			createdAtStr string
		)
		if err := rows.Scan(&sm.QueryID, &sm.UserID, &sm.Query, &sm.Intent,
			&sm.EmbeddingMs, &sm.SearchMs, &sm.TotalMs,
			&sm.SimilarityScore, &sm.ResultCount, &fromCache, &createdAtStr); err != nil {
			return nil, fmt.Errorf("sqlite: scan metric: %w", err)
		}
		sm.FromCache = fromCache != 0
		if createdAtStr != "" {
			t, err := time.Parse(time.RFC3339Nano, createdAtStr)
			if err != nil {
				return nil, fmt.Errorf("sqlite: parse metric created_at: %w", err)
			}
			sm.CreatedAt = t
		}
		out = append(out, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: recent metrics rows: %w", err)
	}

	return out, nil
}
