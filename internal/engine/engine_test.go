package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ggoodman/mcp-sse-commerce/internal/jsonrpc"
	"github.com/ggoodman/mcp-sse-commerce/mcp"
)

type stubTools struct {
	calls []string
}

func (s *stubTools) List() []mcp.Tool {
	return []mcp.Tool{{Name: "echo", InputSchema: mcp.ToolInputSchema{Type: "object"}}}
}

func (s *stubTools) Call(_ context.Context, name string, args json.RawMessage) (any, error) {
	s.calls = append(s.calls, name)
	switch name {
	case "echo":
		return map[string]any{"ok": true, "args": json.RawMessage(args)}, nil
	case "explode":
		panic("kaboom")
	case "fail":
		return nil, errors.New("collaborator down")
	}
	return nil, errors.New("unknown tool: " + name)
}

func handle(t *testing.T, e *Engine, in string) *jsonrpc.Response {
	t.Helper()
	return e.Handle(context.Background(), []byte(in))
}

func TestInitialize(t *testing.T) {
	e := NewEngine(&stubTools{}, WithServerInfo("gw", "9.9.9"))
	res := handle(t, e, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"c","version":"1"}}}`)
	if res == nil || res.Error != nil {
		t.Fatalf("unexpected response: %+v", res)
	}
	var got mcp.InitializeResult
	if err := json.Unmarshal(res.Result, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if want := mcp.LatestProtocolVersion; got.ProtocolVersion != want {
		t.Fatalf("protocolVersion: want %q, got %q", want, got.ProtocolVersion)
	}
	if got.Capabilities.Tools == nil {
		t.Fatalf("expected tools capability")
	}
	if got.ServerInfo.Name != "gw" || got.ServerInfo.Version != "9.9.9" {
		t.Fatalf("unexpected serverInfo: %+v", got.ServerInfo)
	}
	if want, got := "1", res.ID.String(); want != got {
		t.Fatalf("id: want %q, got %q", want, got)
	}
}

func TestToolsList(t *testing.T) {
	e := NewEngine(&stubTools{})
	res := handle(t, e, `{"jsonrpc":"2.0","id":"a","method":"tools/list"}`)
	var got mcp.ListToolsResult
	if err := json.Unmarshal(res.Result, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Tools) != 1 || got.Tools[0].Name != "echo" {
		t.Fatalf("unexpected tools: %+v", got.Tools)
	}
}

func TestToolsCallWrapsResultInSingleTextBlock(t *testing.T) {
	e := NewEngine(&stubTools{})
	res := handle(t, e, `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"echo","arguments":{"x":1}}}`)
	if res.Error != nil {
		t.Fatalf("unexpected error: %+v", res.Error)
	}
	var got mcp.CallToolResult
	if err := json.Unmarshal(res.Result, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Content) != 1 || got.Content[0].Type != mcp.ContentTypeText {
		t.Fatalf("expected exactly one text block, got %+v", got.Content)
	}
	if want := `{"args":{"x":1},"ok":true}`; got.Content[0].Text != want {
		t.Fatalf("want %s, got %s", want, got.Content[0].Text)
	}
}

func TestErrorsAreServerErrorsWithMessage(t *testing.T) {
	e := NewEngine(&stubTools{})
	cases := map[string]string{
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"nope"}}`:    "unknown tool: nope",
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"fail"}}`:    "collaborator down",
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"explode"}}`: "internal error: kaboom",
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{}}`:                 "invalid params: name is required",
	}
	for in, msg := range cases {
		res := handle(t, e, in)
		if res == nil || res.Error == nil {
			t.Fatalf("%s: expected error response, got %+v", in, res)
		}
		if want, got := jsonrpc.ErrorCodeServerError, res.Error.Code; want != got {
			t.Fatalf("%s: code want %d, got %d", in, want, got)
		}
		if res.Error.Message != msg {
			t.Fatalf("%s: message want %q, got %q", in, msg, res.Error.Message)
		}
	}
}

func TestUnknownMethod(t *testing.T) {
	e := NewEngine(&stubTools{})
	for _, tc := range []struct {
		in string
		id string
	}{
		{`{"jsonrpc":"2.0","id":9,"method":"resources/list"}`, "9"},
		{`{"jsonrpc":"2.0","id":7,"method":"notifications/initialized"}`, "7"},
		{`{"jsonrpc":"2.0","id":"n","method":"notifications/cancelled","params":{}}`, "n"},
	} {
		res := handle(t, e, tc.in)
		if res == nil || res.Error == nil || res.Error.Code != jsonrpc.ErrorCodeMethodNotFound {
			t.Fatalf("%s: expected -32601, got %+v", tc.in, res)
		}
		if want, got := tc.id, res.ID.String(); want != got {
			t.Fatalf("%s: id want %q, got %q", tc.in, want, got)
		}
	}
}

func TestPing(t *testing.T) {
	e := NewEngine(&stubTools{})
	res := handle(t, e, `{"jsonrpc":"2.0","id":2,"method":"ping"}`)
	if res == nil || res.Error != nil || string(res.Result) != "{}" {
		t.Fatalf("unexpected ping response: %+v", res)
	}
}

func TestNotificationsNeverRespond(t *testing.T) {
	tools := &stubTools{}
	e := NewEngine(tools)
	for _, in := range []string{
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","method":"resources/list"}`,
		`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"fail"}}`,
		`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"explode"}}`,
		`{"jsonrpc":"2.0","id":null,"method":"tools/call","params":{"name":"echo"}}`,
		`{"jsonrpc":"2.0","id":3,"result":{}}`,
	} {
		if res := handle(t, e, in); res != nil {
			t.Fatalf("%s: expected no response, got %+v", in, res)
		}
	}
	if want, got := 3, len(tools.calls); want != got {
		t.Fatalf("notification handlers should still run: want %d calls, got %d", want, got)
	}
}

func TestInvalidEnvelope(t *testing.T) {
	e := NewEngine(&stubTools{})

	res := handle(t, e, `{"jsonrpc":"1.0","id":4,"method":"tools/list"}`)
	if res == nil || res.Error == nil || res.Error.Code != jsonrpc.ErrorCodeInvalidRequest {
		t.Fatalf("expected -32600, got %+v", res)
	}
	if want, got := "4", res.ID.String(); want != got {
		t.Fatalf("id: want %q, got %q", want, got)
	}

	res = handle(t, e, `[{"jsonrpc":"2.0","id":1,"method":"ping"}]`)
	if res == nil || res.Error == nil || !res.ID.IsNil() {
		t.Fatalf("expected -32600 with null id, got %+v", res)
	}
}
