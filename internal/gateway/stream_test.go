package gateway

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/cuppalabs/cuppa/internal/orchestrator"
)

type streamFrame struct {
	Type     string                 `json:"type"`
	Stage    string                 `json:"stage"`
	Text     string                 `json:"text"`
	Error    string                 `json:"error"`
	Response *orchestrator.Response `json:"response"`
}

func TestHandleStream(t *testing.T) {
	t.Parallel()

	proc := &fakeProcessor{
		resp: orchestrator.Response{
			Answer:    "Try the Midnight Roast.",
			SessionID: "sess-1",
			QueryID:   "q-1",
			Meta:      orchestrator.Meta{Intent: "PRODUCT_RAG"},
		},
		sinkScript: []orchestrator.StreamEvent{
			{Type: "stage", Stage: orchestrator.StageSessionResolved},
			{Type: "text", Text: "Try the "},
			{Type: "text", Text: "Midnight Roast."},
			{Type: "done"},
		},
	}
	g := newTestGateway(proc, Config{})
	srv := httptest.NewServer(g.Router())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, srv.URL+"/v1/chat/stream", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"query":"I need something bold"}`)); err != nil {
		t.Fatalf("write request frame: %v", err)
	}

	var stages, texts int
	var final *orchestrator.Response
	for final == nil {
		_, data, rerr := conn.Read(ctx)
		if rerr != nil {
			t.Fatalf("read frame: %v", rerr)
		}
		var f streamFrame
		if uerr := json.Unmarshal(data, &f); uerr != nil {
			t.Fatalf("decode frame %q: %v", data, uerr)
		}
		switch f.Type {
		case "stage":
			stages++
		case "text":
			texts++
		case "response":
			final = f.Response
		}
	}

	if stages == 0 || texts != 2 {
		t.Errorf("frames before response: stages=%d texts=%d, want stages>0 texts=2", stages, texts)
	}
	if final.Answer != "Try the Midnight Roast." || final.SessionID != "sess-1" {
		t.Errorf("final response = %+v", final)
	}
}

func TestHandleStreamRejectsInvalidFrame(t *testing.T) {
	t.Parallel()

	g := newTestGateway(&fakeProcessor{}, Config{})
	srv := httptest.NewServer(g.Router())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, srv.URL+"/v1/chat/stream", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if err := conn.Write(ctx, websocket.MessageText, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read error frame: %v", err)
	}
	var f streamFrame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Error != "invalid request frame" {
		t.Errorf("error frame = %+v, want invalid request frame", f)
	}
}

func TestHandleStreamValidationError(t *testing.T) {
	t.Parallel()

	g := newTestGateway(&fakeProcessor{err: orchestrator.ErrQueryEmpty}, Config{})
	srv := httptest.NewServer(g.Router())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, srv.URL+"/v1/chat/stream", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"query":""}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read error frame: %v", err)
	}
	var f streamFrame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Error != "query must not be empty" {
		t.Errorf("error frame = %+v", f)
	}
}
