package sse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"

	"github.com/ggoodman/mcp-sse-commerce/auth"
	"github.com/ggoodman/mcp-sse-commerce/internal/logctx"
	"github.com/ggoodman/mcp-sse-commerce/sessions"
)

var _ http.Handler = (*Handler)(nil)

var (
	jsonMediaType         = contenttype.NewMediaType("application/json")
	eventStreamMediaType  = contenttype.NewMediaType("text/event-stream")
	eventStreamMediaTypes = []contenttype.MediaType{eventStreamMediaType}
)

// HTTP error codes carried in {ok:false,error:<code>} bodies.
const (
	CodeBadRequest           = "BAD_REQUEST"
	CodeSessionNotFound      = "SESSION_NOT_FOUND"
	CodeUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE"
	CodeNotAcceptable        = "NOT_ACCEPTABLE"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeInternalError        = "INTERNAL_ERROR"
)

const (
	DefaultPingInterval = 15 * time.Second
	DefaultStreamPath   = "/sse"
	DefaultMessagesPath = "/messages"

	sessionIDParam = "sessionId"

	// maxMessageBytes bounds a single POSTed JSON-RPC message.
	maxMessageBytes = 4 << 20
)

type errorBody struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeJSONError emits the transport-level error body. Safe to call before
// the status has been written.
func writeJSONError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{OK: false, Error: code, Message: msg})
}

// Option configures the Handler.
type Option func(*Handler)

// WithLogger sets the logger used by the handler.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithPublicURL sets the externally visible base URL used to build the
// endpoint frame. When unset, the request's scheme and host are used.
func WithPublicURL(u string) Option {
	return func(h *Handler) { h.publicURL = strings.TrimSpace(u) }
}

// WithPingInterval sets how often keep-alive pings are written.
func WithPingInterval(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.ping = d
		}
	}
}

// WithAuthenticator guards both endpoints. Without it every request is
// accepted.
func WithAuthenticator(a auth.Authenticator) Option {
	return func(h *Handler) {
		if a != nil {
			h.auth = a
		}
	}
}

// WithMessagesPath overrides the path advertised in the endpoint frame and
// served by ServeHTTP for POSTs.
func WithMessagesPath(p string) Option {
	return func(h *Handler) {
		if p != "" {
			h.messagesPath = "/" + strings.TrimPrefix(p, "/")
		}
	}
}

// Handler implements the legacy MCP SSE transport: a long-lived GET stream
// per session plus a POST endpoint that feeds messages into it.
type Handler struct {
	mux          *http.ServeMux
	reg          *sessions.Registry
	log          *slog.Logger
	auth         auth.Authenticator
	publicURL    string
	base         *url.URL
	ping         time.Duration
	messagesPath string
}

// New constructs a Handler serving sessions from reg.
func New(reg *sessions.Registry, opts ...Option) (*Handler, error) {
	if reg == nil {
		return nil, errors.New("session registry is required")
	}

	h := &Handler{
		reg:          reg,
		log:          slog.Default(),
		auth:         auth.Anonymous(),
		ping:         DefaultPingInterval,
		messagesPath: DefaultMessagesPath,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}

	if h.publicURL != "" {
		u, err := url.Parse(h.publicURL)
		if err != nil {
			return nil, fmt.Errorf("invalid public URL %q: %w", h.publicURL, err)
		}
		if u.Scheme != "https" && u.Scheme != "http" {
			return nil, fmt.Errorf("public URL must use HTTP or HTTPS scheme, got %q", u.Scheme)
		}
		h.base = u
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+h.StreamPath(), h.ServeSSE)
	mux.HandleFunc("POST "+h.messagesPath, h.ServeMessages)
	h.mux = mux
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// StreamPath is the path ServeSSE is served on.
func (h *Handler) StreamPath() string { return DefaultStreamPath }

// MessagesPath is the path advertised in endpoint frames; routers must serve
// ServeMessages on it.
func (h *Handler) MessagesPath() string { return h.messagesPath }

// recoverPanic turns a panic in a handler into a 500 INTERNAL_ERROR body.
// It must be deferred directly.
func (h *Handler) recoverPanic(ctx context.Context, w http.ResponseWriter, event string) {
	if rec := recover(); rec != nil {
		h.log.ErrorContext(ctx, event, slog.Any("panic", rec))
		writeJSONError(w, http.StatusInternalServerError, CodeInternalError, fmt.Sprint(rec))
	}
}

func withRequestData(r *http.Request) context.Context {
	return logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})
}

// checkAuthentication writes a 401 and returns false when the request is
// not authenticated.
func (h *Handler) checkAuthentication(ctx context.Context, w http.ResponseWriter, r *http.Request) bool {
	if _, err := h.auth.CheckAuthentication(ctx, r); err != nil {
		h.log.InfoContext(ctx, "auth.check.fail", slog.String("err", err.Error()))
		if c, ok := h.auth.(auth.Challenger); ok {
			w.Header().Set("WWW-Authenticate", c.Challenge())
		}
		writeJSONError(w, http.StatusUnauthorized, CodeUnauthorized, "")
		return false
	}
	return true
}

// endpointURL is the absolute URL the client must POST to for sessionID.
func (h *Handler) endpointURL(r *http.Request, sessionID string) string {
	var u url.URL
	if h.base != nil {
		u = *h.base
	} else {
		u.Scheme = "http"
		if r.TLS != nil {
			u.Scheme = "https"
		}
		if p := r.Header.Get("X-Forwarded-Proto"); p == "http" || p == "https" {
			u.Scheme = p
		}
		u.Host = r.Host
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + h.messagesPath
	u.RawPath = ""
	u.RawQuery = url.Values{sessionIDParam: {sessionID}}.Encode()
	u.Fragment = ""
	return u.String()
}

// ServeSSE opens a session and holds the event stream until the client goes
// away. The session is evicted when the stream ends.
func (h *Handler) ServeSSE(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := withRequestData(r)
	defer h.recoverPanic(ctx, w, "sse.stream.panic")

	if _, _, err := contenttype.GetAcceptableMediaType(r, eventStreamMediaTypes); err != nil {
		h.log.WarnContext(ctx, "sse.stream.not_acceptable", slog.String("accept", r.Header.Get("Accept")))
		writeJSONError(w, http.StatusNotAcceptable, CodeNotAcceptable, "client must accept text/event-stream")
		return
	}

	if !h.checkAuthentication(ctx, w, r) {
		return
	}

	f, ok := w.(http.Flusher)
	if !ok {
		h.log.ErrorContext(ctx, "sse.flusher.missing")
		writeJSONError(w, http.StatusInternalServerError, CodeInternalError, "streaming unsupported")
		return
	}

	sess, err := h.reg.Open(ctx)
	if err != nil {
		h.log.ErrorContext(ctx, "session.open.fail", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, CodeInternalError, "")
		return
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sess.ID})
	defer func() {
		if err := h.reg.Close(ctx, sess.ID); err != nil {
			h.log.WarnContext(ctx, "session.close.fail", slog.String("err", err.Error()))
		}
		h.log.InfoContext(ctx, "sse.stream.end", slog.Duration("dur", time.Since(start)))
	}()

	w.Header().Set("Content-Type", eventStreamMediaType.String())
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	wf := &lockedWriteFlusher{Writer: w, Flusher: f, ctx: ctx}

	if err := wf.writeFrame(EventEndpoint, []byte(h.endpointURL(r, sess.ID))); err != nil {
		h.log.InfoContext(ctx, "sse.endpoint.write.fail", slog.String("err", err.Error()))
		return
	}
	h.log.InfoContext(ctx, "sse.stream.start")

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	relayDone := make(chan error, 1)
	go func() {
		relayDone <- h.reg.Stream(streamCtx, sess.ID, func(_ context.Context, fr sessions.Frame) error {
			return wf.writeFrame(fr.Event, fr.Data)
		})
	}()

	ticker := time.NewTicker(h.ping)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cancel()
			<-relayDone
			return
		case err := <-relayDone:
			if err != nil && !errors.Is(err, context.Canceled) {
				h.log.InfoContext(ctx, "sse.relay.stop", slog.String("err", err.Error()))
			}
			return
		case <-ticker.C:
			if err := h.reg.Touch(ctx, sess.ID); err != nil {
				if errors.Is(err, sessions.ErrSessionNotFound) {
					h.log.InfoContext(ctx, "sse.ping.session_gone")
					cancel()
					<-relayDone
					return
				}
				h.log.WarnContext(ctx, "sse.ping.touch.fail", slog.String("err", err.Error()))
			}
			if err := wf.writeFrame(EventPing, nil); err != nil {
				h.log.InfoContext(ctx, "sse.ping.write.fail", slog.String("err", err.Error()))
				cancel()
				<-relayDone
				return
			}
		}
	}
}

// ServeMessages accepts one JSON-RPC message for an open session. The
// message is dispatched before responding; any JSON-RPC response travels
// over the session's stream, never in this response body.
func (h *Handler) ServeMessages(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := withRequestData(r)

	defer h.recoverPanic(ctx, w, "http.post.panic")

	if !h.checkAuthentication(ctx, w, r) {
		return
	}

	sessionID := r.URL.Query().Get(sessionIDParam)
	if sessionID == "" {
		h.log.InfoContext(ctx, "session.id.missing")
		writeJSONError(w, http.StatusBadRequest, CodeBadRequest, "missing sessionId query parameter")
		return
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sessionID})

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		h.log.WarnContext(ctx, "content_type.unsupported", slog.String("content_type", r.Header.Get("Content-Type")))
		writeJSONError(w, http.StatusUnsupportedMediaType, CodeUnsupportedMediaType, "content-type must be application/json")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageBytes))
	if err != nil {
		h.log.WarnContext(ctx, "http.post.read.fail", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusBadRequest, CodeBadRequest, "unreadable body")
		return
	}
	if !json.Valid(body) {
		h.log.WarnContext(ctx, "json.decode.fail")
		writeJSONError(w, http.StatusBadRequest, CodeBadRequest, "invalid JSON body")
		return
	}

	// The client may hang up right after sending; the message is still
	// processed and its response queued.
	if err := h.reg.Deliver(context.WithoutCancel(ctx), sessionID, body); err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) {
			writeJSONError(w, http.StatusNotFound, CodeSessionNotFound, "")
			return
		}
		h.log.ErrorContext(ctx, "session.deliver.fail", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, CodeInternalError, "")
		return
	}

	w.WriteHeader(http.StatusAccepted)
	h.log.InfoContext(ctx, "http.post.ok", slog.Duration("dur", time.Since(start)))
}
