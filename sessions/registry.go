package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ggoodman/mcp-sse-commerce/internal/jsonrpc"
	"github.com/ggoodman/mcp-sse-commerce/internal/tracing"
)

// EventMessage is the SSE event name for JSON-RPC payloads.
const EventMessage = "message"

const defaultSessionTTL = 2 * time.Minute

// Handler processes one inbound JSON-RPC message and returns the response
// to stream back, or nil when there is none.
type Handler interface {
	Handle(ctx context.Context, raw []byte) *jsonrpc.Response
}

// Session is an open, addressable stream.
type Session struct {
	ID        string
	CreatedAt time.Time
}

// Registry allocates sessions and routes deliveries to them through a
// SessionHost.
type Registry struct {
	host    SessionHost
	handler Handler
	log     *slog.Logger
	ttl     time.Duration
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// WithSessionTTL sets how long a session stays live without being touched.
func WithSessionTTL(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.ttl = d
		}
	}
}

func NewRegistry(host SessionHost, handler Handler, opts ...Option) *Registry {
	r := &Registry{
		host:    host,
		handler: handler,
		log:     slog.Default(),
		ttl:     defaultSessionTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// TTL is the liveness window applied on Open and Touch.
func (r *Registry) TTL() time.Duration { return r.ttl }

// Open allocates a new session with a random, unguessable id.
func (r *Registry) Open(ctx context.Context) (*Session, error) {
	id := uuid.NewString()
	if err := r.host.CreateSession(ctx, id, r.ttl); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	r.log.DebugContext(ctx, "session.open", slog.String("session_id", id))
	return &Session{ID: id, CreatedAt: time.Now()}, nil
}

// Stream binds handler as the session's sink until ctx ends or the session
// is closed.
func (r *Registry) Stream(ctx context.Context, sessionID string, handler FrameHandler) error {
	return r.host.SubscribeSession(ctx, sessionID, handler)
}

// Touch extends the session's liveness.
func (r *Registry) Touch(ctx context.Context, sessionID string) error {
	return r.host.TouchSession(ctx, sessionID, r.ttl)
}

// Close terminates the session; later deliveries fail with
// ErrSessionNotFound.
func (r *Registry) Close(ctx context.Context, sessionID string) error {
	if err := r.host.DeleteSession(context.WithoutCancel(ctx), sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	r.log.DebugContext(ctx, "session.close", slog.String("session_id", sessionID))
	return nil
}

// Deliver dispatches raw to the handler and queues the response (if any) on
// the session's stream. It fails with ErrSessionNotFound before dispatching
// when the session is unknown.
func (r *Registry) Deliver(ctx context.Context, sessionID string, raw []byte) (err error) {
	ctx, span := tracing.StartSpan(ctx, "sessions.deliver", attribute.String("mcp.session_id", sessionID))
	defer func() { tracing.End(span, err) }()

	ok, err := r.host.SessionExists(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("lookup session: %w", err)
	}
	if !ok {
		r.log.InfoContext(ctx, "session.deliver.miss", slog.String("session_id", sessionID))
		return ErrSessionNotFound
	}

	res := r.handler.Handle(ctx, raw)
	if res == nil {
		return nil
	}

	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	if err := r.host.PublishSession(ctx, sessionID, Frame{Event: EventMessage, Data: payload}); err != nil {
		return fmt.Errorf("publish response: %w", err)
	}
	return nil
}
