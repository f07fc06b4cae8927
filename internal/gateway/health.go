package gateway

import (
	"net/http"
	"time"
)

// HealthResponse is the JSON body for GET /healthz. Returns 200 while
// the provider accepts requests and storage answers, 503 otherwise.
type HealthResponse struct {
	Status        string `json:"status"` // "ok" or "degraded"
	UptimeSeconds int64  `json:"uptime_seconds"`
	Sessions      int    `json:"sessions"`
	Store         string `json:"store,omitempty"`
	Provider      string `json:"provider,omitempty"`
	Failures      int    `json:"failures,omitempty"`
}

func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:        "ok",
			UptimeSeconds: int64(time.Since(g.startedAt).Seconds()),
		}
		if g.sessions != nil {
			// A session-count failure is a store problem; the ping below
			// reports it, so the count just stays zero here.
			if n, err := g.sessions.CountActive(r.Context()); err == nil {
				resp.Sessions = n
			}
		}
		if g.store != nil {
			if err := g.store.Ping(r.Context()); err != nil {
				resp.Store = "unreachable"
				resp.Status = "degraded"
				g.logger.Error("gateway: store ping failed", "error", err)
			} else {
				resp.Store = "ok"
			}
		}
		if g.health != nil {
			resp.Provider = g.health.State().String()
			resp.Failures = g.health.Failures()
			if !g.health.Available() {
				resp.Status = "degraded"
			}
		}
		status := http.StatusOK
		if resp.Status == "degraded" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}
