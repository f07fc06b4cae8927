// Package sqlite implements the persistent storage driver backing the
// catalog, both cache tiers, sessions, intent exemplars, and search
// metrics with a single database file. It uses modernc.org/sqlite
// (pure Go, no CGO) with WAL mode and a process-registered
// vec_distance_cosine function for nearest-neighbour queries.
package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cuppalabs/cuppa/internal/catalog"
	"github.com/cuppalabs/cuppa/internal/embedding"
	"github.com/cuppalabs/cuppa/internal/intent"
	"github.com/cuppalabs/cuppa/internal/metrics"
	"github.com/cuppalabs/cuppa/internal/respcache"
	"github.com/cuppalabs/cuppa/internal/session"
	"github.com/cuppalabs/cuppa/internal/vec"

	sqlite3 "modernc.org/sqlite"
)

func init() {
	// The driver keeps one global function registry per process, so
	// registration happens here rather than in Open.
	if err := sqlite3.RegisterDeterministicScalarFunction("vec_distance_cosine", 2, cosineDistance); err != nil {
		panic(fmt.Sprintf("sqlite: register vec_distance_cosine: %v", err))
	}
}

// cosineDistance implements the vec_distance_cosine SQL function over
// two little-endian float32 blobs.
func cosineDistance(_ *sqlite3.FunctionContext, args []driver.Value) (driver.Value, error) {
	a, ok := args[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("sqlite: vec_distance_cosine: first argument is not a blob")
	}
	b, ok := args[1].([]byte)
	if !ok {
		return nil, fmt.Errorf("sqlite: vec_distance_cosine: second argument is not a blob")
	}

	va, err := vec.Decode(a)
	if err != nil {
		return nil, fmt.Errorf("sqlite: vec_distance_cosine: %w", err)
	}
	vb, err := vec.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("sqlite: vec_distance_cosine: %w", err)
	}

	d, err := vec.CosineDistance(va, vb)
	if err != nil {
		return nil, fmt.Errorf("sqlite: vec_distance_cosine: %w", err)
	}
	return d, nil
}

// Compile-time interface guards.
var (
	_ catalog.Store   = (*CatalogStore)(nil)
	_ embedding.Store = (*VectorStore)(nil)
	_ respcache.Store = (*ResponseStore)(nil)
	_ session.Store   = (*SessionStore)(nil)
	_ intent.Store    = (*ExemplarStore)(nil)
	_ metrics.Store   = (*MetricStore)(nil)
)

// Store owns the database handle and hands out the per-concern stores.
// All sub-stores share the same file and connection pool.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	catalog   *CatalogStore
	vectors   *VectorStore
	responses *ResponseStore
	sessions  *SessionStore
	exemplars *ExemplarStore
	metrics   *MetricStore
}

// Open opens (creating if necessary) the database at cfg.Path, applies
// the PRAGMAs, and migrates the schema. A nil logger discards output.
func Open(cfg Config, logger *slog.Logger) (*Store, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(nopHandler{})
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.Path, err)
	}

	// SQLite handles one writer at a time; limit pool to 1 connection
	// so PRAGMAs apply consistently.
	db.SetMaxOpenConns(1)

	ctx := context.Background()

	if cfg.walEnabled() {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: enable WAL: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set busy_timeout: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db, logger: logger}
	s.catalog = &CatalogStore{db: db, now: time.Now}
	s.vectors = &VectorStore{db: db, now: time.Now}
	s.responses = &ResponseStore{db: db, now: time.Now}
	s.sessions = &SessionStore{db: db, now: time.Now}
	s.exemplars = &ExemplarStore{db: db}
	s.metrics = &MetricStore{db: db, now: time.Now}

	logger.Info("sqlite store opened", "path", cfg.Path, "wal", cfg.walEnabled())
	return s, nil
}

// Ping verifies the database is reachable and the distance function is
// callable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping failed: %w", err)
	}

	probe := vec.Encode([]float32{1, 0})
	var d float64
	if err := s.db.QueryRowContext(ctx, "SELECT vec_distance_cosine(?, ?)", probe, probe).Scan(&d); err != nil {
		return fmt.Errorf("sqlite: vec_distance_cosine not available: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Catalog returns the product and location store.
func (s *Store) Catalog() *CatalogStore { return s.catalog }

// Vectors returns the persistent embedding cache tier.
func (s *Store) Vectors() *VectorStore { return s.vectors }

// Responses returns the persistent response cache tier.
func (s *Store) Responses() *ResponseStore { return s.responses }

// Sessions returns the session and turn store.
func (s *Store) Sessions() *SessionStore { return s.sessions }

// Exemplars returns the intent exemplar store.
func (s *Store) Exemplars() *ExemplarStore { return s.exemplars }

// Metrics returns the search metric store.
func (s *Store) Metrics() *MetricStore { return s.metrics }

// nopHandler is a slog.Handler that discards all log records.
// Enabled returns false so slog skips formatting entirely (zero cost).
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }
