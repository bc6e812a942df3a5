package memoryhost

import (
	"context"
	"sync"
	"time"

	"github.com/ggoodman/mcp-sse-commerce/sessions"
)

var _ sessions.SessionHost = (*Host)(nil)

// Host is an in-memory implementation of sessions.SessionHost.
type Host struct {
	mu       sync.Mutex
	sessions map[string]*sessionData
	now      func() time.Time
}

type sessionData struct {
	pending   []sessions.Frame
	wake      chan struct{} // buffered(1); signals new pending frames
	done      chan struct{} // closed on eviction
	bound     bool
	expiresAt time.Time
}

func New() *Host {
	return &Host{
		sessions: make(map[string]*sessionData),
		now:      time.Now,
	}
}

// lookup returns the live session for id, evicting it first if it expired.
// h.mu must be held.
func (h *Host) lookup(id string) (*sessionData, bool) {
	sd, ok := h.sessions[id]
	if !ok {
		return nil, false
	}
	if !sd.expiresAt.IsZero() && h.now().After(sd.expiresAt) {
		h.evict(id, sd)
		return nil, false
	}
	return sd, true
}

// evict removes sd and wakes its consumer. h.mu must be held.
func (h *Host) evict(id string, sd *sessionData) {
	delete(h.sessions, id)
	sd.pending = nil
	close(sd.done)
}

func (h *Host) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return h.now().Add(ttl)
}

func (h *Host) CreateSession(_ context.Context, sessionID string, ttl time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.lookup(sessionID); ok {
		return sessions.ErrSessionExists
	}
	h.sessions[sessionID] = &sessionData{
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		expiresAt: h.expiry(ttl),
	}
	return nil
}

func (h *Host) SessionExists(_ context.Context, sessionID string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.lookup(sessionID)
	return ok, nil
}

func (h *Host) TouchSession(_ context.Context, sessionID string, ttl time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	sd, ok := h.lookup(sessionID)
	if !ok {
		return sessions.ErrSessionNotFound
	}
	sd.expiresAt = h.expiry(ttl)
	return nil
}

func (h *Host) PublishSession(_ context.Context, sessionID string, f sessions.Frame) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	sd, ok := h.lookup(sessionID)
	if !ok {
		return sessions.ErrSessionNotFound
	}
	sd.pending = append(sd.pending, sessions.Frame{Event: f.Event, Data: append([]byte(nil), f.Data...)})
	select {
	case sd.wake <- struct{}{}:
	default:
	}
	return nil
}

func (h *Host) SubscribeSession(ctx context.Context, sessionID string, handler sessions.FrameHandler) error {
	h.mu.Lock()
	sd, ok := h.lookup(sessionID)
	if !ok {
		h.mu.Unlock()
		return sessions.ErrSessionNotFound
	}
	if sd.bound {
		h.mu.Unlock()
		return sessions.ErrSinkBound
	}
	sd.bound = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		sd.bound = false
		h.mu.Unlock()
	}()

	for {
		h.mu.Lock()
		batch := sd.pending
		sd.pending = nil
		h.mu.Unlock()

		for _, f := range batch {
			if err := handler(ctx, f); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sd.done:
			return sessions.ErrSessionNotFound
		case <-sd.wake:
		}
	}
}

func (h *Host) DeleteSession(_ context.Context, sessionID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sd, ok := h.sessions[sessionID]; ok {
		h.evict(sessionID, sd)
	}
	return nil
}
