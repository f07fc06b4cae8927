package gateway

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

const defaultTurnLimit = 50

// bearerAuth validates the Authorization header against the configured
// admin token using constant-time comparison.
func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			after, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || !constantTimeEqual(after, token) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// constantTimeEqual compares two strings in constant time.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

type turnView struct {
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type turnsResponse struct {
	SessionID string     `json:"session_id"`
	Turns     []turnView `json:"turns"`
}

// handleSessionTurns serves GET /v1/sessions/{id}/turns. Turns come
// back newest first, matching the store's native order.
func (g *Gateway) handleSessionTurns() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.turns == nil {
			writeError(w, http.StatusNotFound, "session history not available")
			return
		}
		id := chi.URLParam(r, "id")
		limit := queryLimit(r, defaultTurnLimit)

		turns, err := g.turns.RecentTurns(r.Context(), id, limit)
		if err != nil {
			g.logger.Error("gateway: turns lookup failed", "session_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		resp := turnsResponse{SessionID: id, Turns: make([]turnView, 0, len(turns))}
		for _, t := range turns {
			resp.Turns = append(resp.Turns, turnView{
				Role:      string(t.Role),
				Content:   t.Content,
				Metadata:  t.Metadata,
				CreatedAt: t.CreatedAt,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type metricView struct {
	QueryID         string    `json:"query_id"`
	UserID          string    `json:"user_id,omitempty"`
	Query           string    `json:"query"`
	Intent          string    `json:"intent"`
	EmbeddingMs     int64     `json:"embedding_ms"`
	SearchMs        int64     `json:"search_ms"`
	TotalMs         int64     `json:"total_ms"`
	SimilarityScore float64   `json:"similarity_score"`
	ResultCount     int       `json:"result_count"`
	FromCache       bool      `json:"from_cache"`
	CreatedAt       time.Time `json:"created_at"`
}

// handleRecentMetrics serves GET /v1/metrics/recent.
func (g *Gateway) handleRecentMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.metrics == nil {
			writeError(w, http.StatusNotFound, "metrics not available")
			return
		}
		rows, err := g.metrics.RecentSearchMetrics(r.Context(), queryLimit(r, defaultTurnLimit))
		if err != nil {
			g.logger.Error("gateway: metrics lookup failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		views := make([]metricView, 0, len(rows))
		for _, m := range rows {
			views = append(views, metricView{
				QueryID:         m.QueryID,
				UserID:          m.UserID,
				Query:           m.Query,
				Intent:          m.Intent,
				EmbeddingMs:     m.EmbeddingMs,
				SearchMs:        m.SearchMs,
				TotalMs:         m.TotalMs,
				SimilarityScore: m.SimilarityScore,
				ResultCount:     m.ResultCount,
				FromCache:       m.FromCache,
				CreatedAt:       m.CreatedAt,
			})
		}
		writeJSON(w, http.StatusOK, map[string][]metricView{"metrics": views})
	}
}

type sweepResponse struct {
	Swept int64 `json:"swept"`
}

// handleCacheSweep serves POST /v1/cache/sweep.
func (g *Gateway) handleCacheSweep() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.sweeper == nil {
			writeError(w, http.StatusNotFound, "sweeping not available")
			return
		}
		swept, err := g.sweeper.Sweep(r.Context())
		if err != nil {
			g.logger.Error("gateway: cache sweep failed", "error", err)
			writeError(w, http.StatusInternalServerError, "sweep failed")
			return
		}
		g.logger.Info("gateway: cache sweep completed", "swept", swept)
		writeJSON(w, http.StatusOK, sweepResponse{Swept: swept})
	}
}

// queryLimit parses the limit query parameter, falling back on garbage.
func queryLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
