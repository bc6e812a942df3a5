package sse

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ggoodman/mcp-sse-commerce/auth"
	"github.com/ggoodman/mcp-sse-commerce/commerce/commercetest"
	"github.com/ggoodman/mcp-sse-commerce/commerce/memory"
	"github.com/ggoodman/mcp-sse-commerce/internal/engine"
	"github.com/ggoodman/mcp-sse-commerce/mcpservice"
	"github.com/ggoodman/mcp-sse-commerce/sessions"
	"github.com/ggoodman/mcp-sse-commerce/sessions/memoryhost"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, opts ...Option) *httptest.Server {
	t.Helper()
	log := discardLogger()

	tools := mcpservice.NewTools(memory.New(commercetest.Fixture()...), mcpservice.WithLogger(log))
	eng := engine.NewEngine(tools, engine.WithLogger(log))
	reg := sessions.NewRegistry(memoryhost.New(), eng, sessions.WithLogger(log))

	h, err := New(reg, append([]Option{WithLogger(log)}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

type frame struct {
	event string
	data  string
}

// openStream issues GET /sse and decodes frames in the background.
func openStream(t *testing.T, ctx context.Context, url string, header http.Header) (*http.Response, <-chan frame) {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/sse", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	for k, v := range header {
		req.Header[k] = v
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /sse: %v", err)
	}
	t.Cleanup(func() { _ = res.Body.Close() })

	frames := make(chan frame, 16)
	go func() {
		defer close(frames)
		sc := bufio.NewScanner(res.Body)
		var cur frame
		var data []string
		for sc.Scan() {
			line := sc.Text()
			switch {
			case line == "":
				cur.data = strings.Join(data, "\n")
				frames <- cur
				cur, data = frame{}, nil
			case strings.HasPrefix(line, "event: "):
				cur.event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = append(data, strings.TrimPrefix(line, "data: "))
			}
		}
	}()
	return res, frames
}

func nextFrame(t *testing.T, frames <-chan frame) frame {
	t.Helper()
	select {
	case f, ok := <-frames:
		if !ok {
			t.Fatalf("stream closed")
		}
		return f
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for frame")
	}
	return frame{}
}

func post(t *testing.T, endpoint, contentType, body string) (*http.Response, string) {
	t.Helper()
	res, err := http.Post(endpoint, contentType, strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer res.Body.Close()
	b, _ := io.ReadAll(res.Body)
	return res, string(b)
}

func TestEncodeFrame(t *testing.T) {
	if want, got := "event: message\ndata: {\"a\":1}\n\n", string(encodeFrame("message", []byte(`{"a":1}`))); want != got {
		t.Fatalf("want %q, got %q", want, got)
	}
	if want, got := "event: ping\ndata: \n\n", string(encodeFrame("ping", nil)); want != got {
		t.Fatalf("want %q, got %q", want, got)
	}
	if want, got := "data: a\ndata: b\n\n", string(encodeFrame("", []byte("a\r\nb"))); want != got {
		t.Fatalf("want %q, got %q", want, got)
	}
}

func TestEndpointFrameFirst(t *testing.T) {
	srv := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res, frames := openStream(t, ctx, srv.URL, nil)
	if want, got := http.StatusOK, res.StatusCode; want != got {
		t.Fatalf("want status %d, got %d", want, got)
	}
	if ct := res.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("unexpected content type %q", ct)
	}

	f := nextFrame(t, frames)
	if want, got := EventEndpoint, f.event; want != got {
		t.Fatalf("want first event %q, got %q", want, got)
	}
	if prefix := srv.URL + "/messages?sessionId="; !strings.HasPrefix(f.data, prefix) || len(f.data) == len(prefix) {
		t.Fatalf("endpoint %q lacks prefix %q", f.data, prefix)
	}
}

func TestEndpointUsesPublicURL(t *testing.T) {
	srv := newTestServer(t, WithPublicURL("https://gateway.example/base/"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, frames := openStream(t, ctx, srv.URL, nil)
	f := nextFrame(t, frames)
	if prefix := "https://gateway.example/base/messages?sessionId="; !strings.HasPrefix(f.data, prefix) {
		t.Fatalf("endpoint %q lacks prefix %q", f.data, prefix)
	}
}

func TestNewRejectsBadPublicURL(t *testing.T) {
	reg := sessions.NewRegistry(memoryhost.New(), nil)
	if _, err := New(reg, WithPublicURL("ftp://nope")); err == nil {
		t.Fatalf("expected error for non-http public URL")
	}
	if _, err := New(nil); err == nil {
		t.Fatalf("expected error for nil registry")
	}
}

func TestStreamRequiresEventStreamAccept(t *testing.T) {
	srv := newTestServer(t)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/sse", nil)
	req.Header.Set("Accept", "application/json")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer res.Body.Close()
	if want, got := http.StatusNotAcceptable, res.StatusCode; want != got {
		t.Fatalf("want status %d, got %d", want, got)
	}
}

func TestPostErrors(t *testing.T) {
	srv := newTestServer(t)
	ping := `{"jsonrpc":"2.0","id":1,"method":"ping"}`

	cases := []struct {
		name   string
		url    string
		ctype  string
		body   string
		status int
		code   string
	}{
		{"MissingSessionID", srv.URL + "/messages", "application/json", ping, http.StatusBadRequest, CodeBadRequest},
		{"UnknownSession", srv.URL + "/messages?sessionId=nope", "application/json", ping, http.StatusNotFound, CodeSessionNotFound},
		{"WrongContentType", srv.URL + "/messages?sessionId=nope", "text/plain", ping, http.StatusUnsupportedMediaType, CodeUnsupportedMediaType},
		{"InvalidJSON", srv.URL + "/messages?sessionId=nope", "application/json", "{not json", http.StatusBadRequest, CodeBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, body := post(t, tc.url, tc.ctype, tc.body)
			if want, got := tc.status, res.StatusCode; want != got {
				t.Fatalf("want status %d, got %d (%s)", want, got, body)
			}
			var eb errorBody
			if err := json.Unmarshal([]byte(body), &eb); err != nil {
				t.Fatalf("decode body %q: %v", body, err)
			}
			if eb.OK || eb.Error != tc.code {
				t.Fatalf("want error %q, got %+v", tc.code, eb)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, frames := openStream(t, ctx, srv.URL, nil)
	endpoint := nextFrame(t, frames).data

	res, body := post(t, endpoint, "application/json", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"t","version":"0"}}}`)
	if want, got := http.StatusAccepted, res.StatusCode; want != got {
		t.Fatalf("want status %d, got %d", want, got)
	}
	if body != "" {
		t.Fatalf("expected empty body, got %q", body)
	}

	f := nextFrame(t, frames)
	if want, got := EventMessage, f.event; want != got {
		t.Fatalf("want event %q, got %q", want, got)
	}
	var initRes struct {
		ID     int `json:"id"`
		Result struct {
			ProtocolVersion string `json:"protocolVersion"`
			ServerInfo      struct {
				Name string `json:"name"`
			} `json:"serverInfo"`
		} `json:"result"`
	}
	if err := json.Unmarshal([]byte(f.data), &initRes); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if initRes.ID != 1 || initRes.Result.ProtocolVersion != "2024-11-05" || initRes.Result.ServerInfo.Name != "laburen-mcp-server" {
		t.Fatalf("unexpected initialize response %s", f.data)
	}

	// A notification yields nothing; the next frame answers the ping.
	if res, _ := post(t, endpoint, "application/json", `{"jsonrpc":"2.0","method":"notifications/initialized"}`); res.StatusCode != http.StatusAccepted {
		t.Fatalf("notification: want 202, got %d", res.StatusCode)
	}
	// Valid JSON with an invalid envelope is answered over the stream.
	if res, _ := post(t, endpoint, "application/json", `{"jsonrpc":"1.0","id":"bad","method":"ping"}`); res.StatusCode != http.StatusAccepted {
		t.Fatalf("invalid envelope: want 202, got %d", res.StatusCode)
	}
	if res, _ := post(t, endpoint, "application/json", `{"jsonrpc":"2.0","id":2,"method":"ping"}`); res.StatusCode != http.StatusAccepted {
		t.Fatalf("ping: want 202, got %d", res.StatusCode)
	}

	if want, got := `{"jsonrpc":"2.0","error":{"code":-32600,`, nextFrame(t, frames).data; !strings.HasPrefix(got, want) || !strings.HasSuffix(got, `"id":"bad"}`) {
		t.Fatalf("want invalid request error, got %s", got)
	}
	if want, got := `{"jsonrpc":"2.0","result":{},"id":2}`, nextFrame(t, frames).data; want != got {
		t.Fatalf("want %s, got %s", want, got)
	}
}

func TestPingFrames(t *testing.T) {
	srv := newTestServer(t, WithPingInterval(20*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, frames := openStream(t, ctx, srv.URL, nil)
	_ = nextFrame(t, frames)

	f := nextFrame(t, frames)
	if want, got := EventPing, f.event; want != got {
		t.Fatalf("want event %q, got %q", want, got)
	}
	if f.data != "" {
		t.Fatalf("expected empty ping data, got %q", f.data)
	}
}

func TestDisconnectEvictsSession(t *testing.T) {
	srv := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())

	_, frames := openStream(t, ctx, srv.URL, nil)
	endpoint := nextFrame(t, frames).data
	cancel()

	ping := `{"jsonrpc":"2.0","id":1,"method":"ping"}`
	deadline := time.Now().Add(5 * time.Second)
	for {
		res, _ := post(t, endpoint, "application/json", ping)
		if res.StatusCode == http.StatusNotFound {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("session still accepting messages after disconnect; last status %d", res.StatusCode)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestSharedSecretAuth(t *testing.T) {
	authn, err := auth.NewSharedSecret("", "s3cret")
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	srv := newTestServer(t, WithAuthenticator(authn))

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/sse", nil)
	req.Header.Set("Accept", "text/event-stream")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	res.Body.Close()
	if want, got := http.StatusUnauthorized, res.StatusCode; want != got {
		t.Fatalf("want status %d, got %d", want, got)
	}

	res, body := post(t, srv.URL+"/messages?sessionId=x", "application/json", `{}`)
	if want, got := http.StatusUnauthorized, res.StatusCode; want != got {
		t.Fatalf("want status %d, got %d", want, got)
	}
	if !strings.Contains(body, CodeUnauthorized) {
		t.Fatalf("unexpected body %q", body)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	res, frames := openStream(t, ctx, srv.URL, http.Header{auth.DefaultSecretHeader: {"s3cret"}})
	if want, got := http.StatusOK, res.StatusCode; want != got {
		t.Fatalf("want status %d, got %d", want, got)
	}
	if want, got := EventEndpoint, nextFrame(t, frames).event; want != got {
		t.Fatalf("want %q, got %q", want, got)
	}
}

// panickyHost fails every session lookup by panicking.
type panickyHost struct {
	*memoryhost.Host
}

func (panickyHost) CreateSession(context.Context, string, time.Duration) error {
	panic("host create exploded")
}

func (panickyHost) SessionExists(context.Context, string) (bool, error) {
	panic("host lookup exploded")
}

func TestPanicsBecomeInternalError(t *testing.T) {
	log := discardLogger()
	eng := engine.NewEngine(mcpservice.NewTools(memory.New(), mcpservice.WithLogger(log)), engine.WithLogger(log))
	reg := sessions.NewRegistry(panickyHost{Host: memoryhost.New()}, eng, sessions.WithLogger(log))
	h, err := New(reg, WithLogger(log))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	check := func(t *testing.T, res *http.Response, body string) {
		t.Helper()
		if want, got := http.StatusInternalServerError, res.StatusCode; want != got {
			t.Fatalf("want status %d, got %d (%s)", want, got, body)
		}
		var eb errorBody
		if err := json.Unmarshal([]byte(body), &eb); err != nil {
			t.Fatalf("decode body %q: %v", body, err)
		}
		if eb.OK || eb.Error != CodeInternalError {
			t.Fatalf("want error %q, got %+v", CodeInternalError, eb)
		}
	}

	t.Run("Stream", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/sse", nil)
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		req.Header.Set("Accept", "text/event-stream")
		res, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("GET /sse: %v", err)
		}
		defer res.Body.Close()
		b, _ := io.ReadAll(res.Body)
		check(t, res, string(b))
	})

	t.Run("Messages", func(t *testing.T) {
		res, body := post(t, srv.URL+"/messages?sessionId=x", "application/json", `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
		check(t, res, body)
	})
}

func TestCustomMessagesPath(t *testing.T) {
	srv := newTestServer(t, WithMessagesPath("rpc"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, frames := openStream(t, ctx, srv.URL, nil)
	endpoint := nextFrame(t, frames).data
	if prefix := srv.URL + "/rpc?sessionId="; !strings.HasPrefix(endpoint, prefix) {
		t.Fatalf("endpoint %q lacks prefix %q", endpoint, prefix)
	}

	res, body := post(t, endpoint, "application/json", `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	if want, got := http.StatusAccepted, res.StatusCode; want != got {
		t.Fatalf("want status %d, got %d (%s)", want, got, body)
	}
	if f := nextFrame(t, frames); f.event != EventMessage {
		t.Fatalf("want %q frame, got %+v", EventMessage, f)
	}
}
