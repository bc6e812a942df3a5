package sessions

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrSessionNotFound is returned for ids that were never opened, have
	// expired, or were terminated.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists is returned by CreateSession for a duplicate id.
	ErrSessionExists = errors.New("session already exists")
	// ErrSinkBound is returned by SubscribeSession when the session already
	// has a consumer.
	ErrSinkBound = errors.New("session stream already bound")
)

// Frame is one server-sent event queued for a session.
type Frame struct {
	Event string
	Data  []byte
}

// FrameHandler consumes frames in enqueue order. Returning an error stops
// the subscription.
type FrameHandler func(ctx context.Context, f Frame) error

// SessionHost is the storage and signalling contract behind the Registry.
// Implementations must make insert, lookup, append and evict atomic with
// respect to each other so that the POST path and the stream path can run
// concurrently, possibly on different instances.
type SessionHost interface {
	// CreateSession registers a live session that expires after ttl unless
	// touched.
	CreateSession(ctx context.Context, sessionID string, ttl time.Duration) error
	SessionExists(ctx context.Context, sessionID string) (bool, error)
	// TouchSession extends the session's liveness by ttl.
	TouchSession(ctx context.Context, sessionID string, ttl time.Duration) error

	// PublishSession appends f to the session FIFO, failing with
	// ErrSessionNotFound when the session is not live.
	PublishSession(ctx context.Context, sessionID string, f Frame) error
	// SubscribeSession binds the single consumer of the session. Frames
	// queued before the call are delivered first, in order, followed by
	// frames published later. It blocks until ctx ends, handler fails or the
	// session is deleted (ErrSessionNotFound). The binding is released on
	// return.
	SubscribeSession(ctx context.Context, sessionID string, handler FrameHandler) error

	// DeleteSession evicts the session and discards anything still queued.
	// Deleting an unknown session is not an error.
	DeleteSession(ctx context.Context, sessionID string) error
}
