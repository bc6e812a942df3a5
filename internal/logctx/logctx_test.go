package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestHandlerAddsContextGroups(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(New(slog.NewJSONHandler(&buf, nil))).With(slog.String("component", "test"))

	ctx := WithRequestData(context.Background(), &RequestData{RequestID: "r1", Method: "POST", Path: "/messages"})
	ctx = WithSessionData(ctx, &SessionData{SessionID: "s1"})
	ctx = WithRPCMessage(ctx, &RPCMessage{Method: "tools/call", ID: "7", Type: "request"})
	ctx = WithToolCallData(ctx, &ToolCallData{ToolName: "get_cart"})

	log.InfoContext(ctx, "engine.handle_request.ok")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log record: %v", err)
	}
	if want, got := "test", rec["component"]; want != got {
		t.Fatalf("component: want %v, got %v", want, got)
	}
	if want, got := "s1", rec["sess"].(map[string]any)["id"]; want != got {
		t.Fatalf("sess.id: want %v, got %v", want, got)
	}
	if want, got := "tools/call", rec["rpc"].(map[string]any)["method"]; want != got {
		t.Fatalf("rpc.method: want %v, got %v", want, got)
	}
	if want, got := "get_cart", rec["tool"].(map[string]any)["name"]; want != got {
		t.Fatalf("tool.name: want %v, got %v", want, got)
	}
	if want, got := "/messages", rec["req"].(map[string]any)["path"]; want != got {
		t.Fatalf("req.path: want %v, got %v", want, got)
	}
}
