package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaVersion = 1

// schemaStatements are executed in order to create the database schema.
// All use IF NOT EXISTS for idempotent re-application.
//
// Vectors are little-endian float32 blobs (see internal/vec); expiry
// columns are unix milliseconds so range scans need no parsing; payload
// timestamps are RFC 3339 text for inspectability.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id          TEXT    PRIMARY KEY,
		name        TEXT    NOT NULL,
		category    TEXT    NOT NULL DEFAULT '',
		origin      TEXT    NOT NULL DEFAULT '',
		description TEXT    NOT NULL DEFAULT '',
		notes       TEXT    NOT NULL DEFAULT '[]',
		price_cents INTEGER NOT NULL DEFAULT 0,
		embedding   BLOB,
		updated_at  TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	)`,

	`CREATE INDEX IF NOT EXISTS idx_products_name ON products(name COLLATE NOCASE)`,

	`CREATE TABLE IF NOT EXISTS store_locations (
		id        TEXT PRIMARY KEY,
		name      TEXT NOT NULL,
		address   TEXT NOT NULL DEFAULT '',
		city      TEXT NOT NULL DEFAULT '',
		latitude  REAL NOT NULL DEFAULT 0,
		longitude REAL NOT NULL DEFAULT 0,
		hours     TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE INDEX IF NOT EXISTS idx_locations_city ON store_locations(city COLLATE NOCASE)`,

	`CREATE TABLE IF NOT EXISTS embedding_cache (
		key        TEXT    PRIMARY KEY,
		text       TEXT    NOT NULL DEFAULT '',
		vector     BLOB    NOT NULL,
		hit_count  INTEGER NOT NULL DEFAULT 0,
		created_at TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
		expires_at INTEGER NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_embedding_cache_expiry ON embedding_cache(expires_at)`,

	`CREATE TABLE IF NOT EXISTS response_cache (
		key         TEXT    PRIMARY KEY,
		answer      TEXT    NOT NULL,
		intent      TEXT    NOT NULL DEFAULT '',
		product_ids TEXT    NOT NULL DEFAULT '[]',
		hit_count   INTEGER NOT NULL DEFAULT 0,
		created_at  TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
		expires_at  INTEGER NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_response_cache_expiry ON response_cache(expires_at)`,

	`CREATE TABLE IF NOT EXISTS sessions (
		id         TEXT    PRIMARY KEY,
		user_id    TEXT    NOT NULL DEFAULT '',
		data       TEXT    NOT NULL DEFAULT '{}',
		created_at TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
		expires_at INTEGER NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS conversation_turns (
		session_id TEXT    NOT NULL,
		seq        INTEGER NOT NULL,
		role       TEXT    NOT NULL,
		content    TEXT    NOT NULL DEFAULT '',
		metadata   TEXT    NOT NULL DEFAULT '{}',
		created_at TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
		PRIMARY KEY (session_id, seq)
	)`,

	`CREATE TABLE IF NOT EXISTS intent_exemplars (
		id          TEXT    PRIMARY KEY,
		intent      TEXT    NOT NULL,
		phrase      TEXT    NOT NULL,
		embedding   BLOB,
		threshold   REAL    NOT NULL DEFAULT 0,
		usage_count INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS search_metrics (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		query_id     TEXT    NOT NULL DEFAULT '',
		user_id      TEXT    NOT NULL DEFAULT '',
		query        TEXT    NOT NULL DEFAULT '',
		intent       TEXT    NOT NULL DEFAULT '',
		embedding_ms INTEGER NOT NULL DEFAULT 0,
		search_ms    INTEGER NOT NULL DEFAULT 0,
		total_ms     INTEGER NOT NULL DEFAULT 0,
		similarity   REAL    NOT NULL DEFAULT 0,
		result_count INTEGER NOT NULL DEFAULT 0,
		from_cache   INTEGER NOT NULL DEFAULT 0,
		created_at   TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	)`,
}

// migrate creates or updates the database schema to the latest version.
// All DDL uses IF NOT EXISTS, making migration idempotent.
func migrate(db *sql.DB) error {
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("sqlite: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}

	if current >= schemaVersion {
		return nil
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migrate: %w\nstatement: %s", err, stmt)
		}
	}

	if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("sqlite: record schema version: %w", err)
	}

	return nil
}
