package jsonrpc

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestAnyMessageClassification(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"request with number id", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, TypeRequest},
		{"request with string id", `{"jsonrpc":"2.0","id":"abc","method":"tools/list"}`, TypeRequest},
		{"notification", `{"jsonrpc":"2.0","method":"notifications/initialized"}`, TypeNotification},
		{"null id is a notification", `{"jsonrpc":"2.0","id":null,"method":"notifications/initialized"}`, TypeNotification},
		{"response", `{"jsonrpc":"2.0","id":1,"result":{}}`, TypeResponse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var msg AnyMessage
			if err := json.Unmarshal([]byte(tc.in), &msg); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if want, got := tc.want, msg.Type(); want != got {
				t.Fatalf("want %q, got %q", want, got)
			}
		})
	}
}

func TestAnyMessageRejectsInvalidEnvelopes(t *testing.T) {
	for _, in := range []string{
		`{"jsonrpc":"1.0","id":1,"method":"x"}`,
		`{"jsonrpc":"2.0","id":1}`,
		`{"jsonrpc":"2.0","id":{"a":1},"method":"x"}`,
		`{"jsonrpc":"2.0","id":1,"method":"x","result":{}}`,
	} {
		var msg AnyMessage
		if err := json.Unmarshal([]byte(in), &msg); err == nil {
			t.Fatalf("expected error for %s", in)
		}
	}

	var msg AnyMessage
	err := json.Unmarshal([]byte(`[{"jsonrpc":"2.0","id":1,"method":"x"}]`), &msg)
	if !errors.Is(err, ErrBatchUnsupported) {
		t.Fatalf("expected ErrBatchUnsupported, got %v", err)
	}
}

func TestResponseEchoesRequestID(t *testing.T) {
	for _, raw := range []string{`7`, `"req-7"`, `1.5e3`} {
		var msg AnyMessage
		in := `{"jsonrpc":"2.0","id":` + raw + `,"method":"ping"}`
		if err := json.Unmarshal([]byte(in), &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		res, err := NewResultResponse(msg.ID, struct{}{})
		if err != nil {
			t.Fatalf("result: %v", err)
		}
		b, err := json.Marshal(res)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		want := `{"jsonrpc":"2.0","result":{},"id":` + raw + `}`
		if got := string(b); want != got {
			t.Fatalf("want %s, got %s", want, got)
		}
	}
}

func TestErrorResponseWithoutIDMarshalsNull(t *testing.T) {
	b, err := json.Marshal(NewErrorResponse(nil, ErrorCodeInvalidRequest, "invalid request", nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"jsonrpc":"2.0","error":{"code":-32600,"message":"invalid request"},"id":null}`
	if got := string(b); want != got {
		t.Fatalf("want %s, got %s", want, got)
	}
}

func TestProbeID(t *testing.T) {
	id := ProbeID([]byte(`{"jsonrpc":"1.0","id":"x"}`))
	if want, got := "x", id.String(); want != got {
		t.Fatalf("want %q, got %q", want, got)
	}
	if id := ProbeID([]byte(`[1,2]`)); !id.IsNil() {
		t.Fatalf("expected nil id, got %v", id)
	}
}
