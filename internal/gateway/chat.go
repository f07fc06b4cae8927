package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cuppalabs/cuppa/internal/orchestrator"
)

// maxChatBody bounds the request body; queries are validated separately
// but a malicious body should die before JSON decoding buffers it.
const maxChatBody = 1 << 20

type chatRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Persona   string `json:"persona,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleChat serves POST /v1/chat.
func (g *Gateway) handleChat() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxChatBody)
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		resp, err := g.processor.Process(r.Context(), orchestrator.Request{
			Query:     req.Query,
			SessionID: req.SessionID,
			UserID:    req.UserID,
			Persona:   req.Persona,
		})
		if err != nil {
			switch {
			case errors.Is(err, orchestrator.ErrQueryEmpty):
				writeError(w, http.StatusBadRequest, "query must not be empty")
			case errors.Is(err, orchestrator.ErrQueryTooLong):
				writeError(w, http.StatusBadRequest, "query exceeds maximum length")
			default:
				g.logger.Error("gateway: chat processing failed", "error", err)
				writeError(w, http.StatusInternalServerError, "internal error")
			}
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
