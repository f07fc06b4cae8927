package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/cuppalabs/cuppa/internal/orchestrator"
)

// streamReadTimeout bounds how long a client may sit on an open socket
// before sending its request frame.
const streamReadTimeout = 10 * time.Second

// responseFrame is the final authoritative frame on the stream. Clients
// should render it over any text fragments they assembled, since
// fallback recovery can replace a partially streamed answer.
type responseFrame struct {
	Type     string                 `json:"type"`
	Response *orchestrator.Response `json:"response"`
}

// handleStream serves GET /v1/chat/stream. The client sends one JSON
// request frame, then receives stage, tool, and text events while the
// pipeline runs, followed by a response frame.
func (g *Gateway) handleStream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			g.logger.Error("gateway: websocket accept failed", "error", err)
			return
		}
		defer func() {
			_ = conn.Close(websocket.StatusInternalError, "unexpected close")
		}()

		readCtx, cancel := context.WithTimeout(r.Context(), streamReadTimeout)
		_, data, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			g.logger.Debug("gateway: stream request read failed", "error", err)
			return
		}

		var req chatRequest
		if err := json.Unmarshal(data, &req); err != nil {
			_ = writeFrame(r.Context(), conn, errorResponse{Error: "invalid request frame"})
			_ = conn.Close(websocket.StatusUnsupportedData, "invalid request")
			return
		}

		sink := &wsSink{ctx: r.Context(), conn: conn, logger: g.logger}
		resp, err := g.processor.Process(r.Context(), orchestrator.Request{
			Query:     req.Query,
			SessionID: req.SessionID,
			UserID:    req.UserID,
			Persona:   req.Persona,
			Sink:      sink,
		})
		if err != nil {
			msg := "internal error"
			switch {
			case errors.Is(err, orchestrator.ErrQueryEmpty):
				msg = "query must not be empty"
			case errors.Is(err, orchestrator.ErrQueryTooLong):
				msg = "query exceeds maximum length"
			default:
				g.logger.Error("gateway: stream processing failed", "error", err)
			}
			_ = writeFrame(r.Context(), conn, errorResponse{Error: msg})
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		}

		if werr := writeFrame(r.Context(), conn, responseFrame{Type: "response", Response: &resp}); werr != nil {
			g.logger.Debug("gateway: stream response write failed", "error", werr)
		}
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// wsSink forwards pipeline events to the socket. After the first write
// failure it goes quiet; the connection is gone and the pipeline should
// finish without logging a wall of duplicate errors.
type wsSink struct {
	ctx    context.Context
	conn   *websocket.Conn
	logger *slog.Logger
	failed atomic.Bool
}

func (s *wsSink) Send(ev orchestrator.StreamEvent) {
	if s.failed.Load() {
		return
	}
	if err := writeFrame(s.ctx, s.conn, ev); err != nil {
		s.failed.Store(true)
		s.logger.Debug("gateway: stream event write failed", "error", err)
	}
}
