// Package sessionhosttest is a conformance suite for sessions.SessionHost
// implementations.
package sessionhosttest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ggoodman/mcp-sse-commerce/sessions"
)

// HostFactory creates a new SessionHost instance for testing.
type HostFactory func(t *testing.T) sessions.SessionHost

// RunSessionHostTests runs the complete SessionHost test suite against the provided factory.
func RunSessionHostTests(t *testing.T, factory HostFactory) {
	t.Run("Lifecycle_DuplicateCreateFails", func(t *testing.T) { testDuplicateCreate(t, factory) })
	t.Run("Lifecycle_TouchUnknownFails", func(t *testing.T) { testTouchUnknown(t, factory) })
	t.Run("Lifecycle_ExpiresWithoutTouch", func(t *testing.T) { testExpiry(t, factory) })
	t.Run("Lifecycle_TouchExtendsLiveness", func(t *testing.T) { testTouchExtends(t, factory) })

	t.Run("Messaging_PublishUnknownFails", func(t *testing.T) { testPublishUnknown(t, factory) })
	t.Run("Messaging_PendingFlushedBeforeLive", func(t *testing.T) { testPendingThenLive(t, factory) })
	t.Run("Messaging_ConcurrentPublishersKeepOrder", func(t *testing.T) { testConcurrentPublishers(t, factory) })
	t.Run("Messaging_HandlerErrorStopsSubscription", func(t *testing.T) { testHandlerErrorStopsSubscription(t, factory) })

	t.Run("Sink_SecondSubscriberRejected", func(t *testing.T) { testSecondSink(t, factory) })
	t.Run("Sink_ReleasedOnReturn", func(t *testing.T) { testSinkReleased(t, factory) })
	t.Run("Sink_DeleteTerminatesSubscriber", func(t *testing.T) { testDeleteTerminates(t, factory) })
}

const suiteTTL = 30 * time.Second

func newSession(t *testing.T, h sessions.SessionHost) string {
	t.Helper()
	id := uuid.NewString()
	if err := h.CreateSession(context.Background(), id, suiteTTL); err != nil {
		t.Fatalf("create session: %v", err)
	}
	t.Cleanup(func() { _ = h.DeleteSession(context.Background(), id) })
	return id
}

func frame(i int) sessions.Frame {
	return sessions.Frame{Event: sessions.EventMessage, Data: []byte(fmt.Sprintf(`{"n":%d}`, i))}
}

// collector records frames and signals once want of them have arrived.
type collector struct {
	mu     sync.Mutex
	frames []sessions.Frame
	want   int
	done   chan struct{}
	once   sync.Once
}

func newCollector(want int) *collector {
	return &collector{want: want, done: make(chan struct{})}
}

func (c *collector) handle(_ context.Context, f sessions.Frame) error {
	c.mu.Lock()
	c.frames = append(c.frames, f)
	n := len(c.frames)
	c.mu.Unlock()
	if n >= c.want {
		c.once.Do(func() { close(c.done) })
	}
	return nil
}

func (c *collector) snapshot() []sessions.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sessions.Frame(nil), c.frames...)
}

func (c *collector) wait(t *testing.T) {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %d frames; got %d", c.want, len(c.snapshot()))
	}
}

func subscribe(ctx context.Context, h sessions.SessionHost, id string, fn sessions.FrameHandler) <-chan error {
	done := make(chan error, 1)
	go func() { done <- h.SubscribeSession(ctx, id, fn) }()
	return done
}

func waitErr(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatalf("subscriber did not return")
		return nil
	}
}

// --- Lifecycle ---

func testDuplicateCreate(t *testing.T, factory HostFactory) {
	h := factory(t)
	id := newSession(t, h)

	if err := h.CreateSession(context.Background(), id, suiteTTL); !errors.Is(err, sessions.ErrSessionExists) {
		t.Fatalf("expected ErrSessionExists, got %v", err)
	}
}

func testTouchUnknown(t *testing.T, factory HostFactory) {
	h := factory(t)

	if err := h.TouchSession(context.Background(), uuid.NewString(), suiteTTL); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func testExpiry(t *testing.T, factory HostFactory) {
	h := factory(t)
	ctx := context.Background()
	id := uuid.NewString()

	if err := h.CreateSession(ctx, id, 200*time.Millisecond); err != nil {
		t.Fatalf("create session: %v", err)
	}
	t.Cleanup(func() { _ = h.DeleteSession(ctx, id) })

	ok, err := h.SessionExists(ctx, id)
	if err != nil || !ok {
		t.Fatalf("expected live session, got ok=%v err=%v", ok, err)
	}

	time.Sleep(400 * time.Millisecond)

	ok, err = h.SessionExists(ctx, id)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if ok {
		t.Fatalf("expected session to expire")
	}
	if err := h.PublishSession(ctx, id, frame(1)); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after expiry, got %v", err)
	}
}

func testTouchExtends(t *testing.T, factory HostFactory) {
	h := factory(t)
	ctx := context.Background()
	id := uuid.NewString()

	if err := h.CreateSession(ctx, id, 300*time.Millisecond); err != nil {
		t.Fatalf("create session: %v", err)
	}
	t.Cleanup(func() { _ = h.DeleteSession(ctx, id) })

	for i := 0; i < 4; i++ {
		time.Sleep(150 * time.Millisecond)
		if err := h.TouchSession(ctx, id, 300*time.Millisecond); err != nil {
			t.Fatalf("touch %d: %v", i, err)
		}
	}

	ok, err := h.SessionExists(ctx, id)
	if err != nil || !ok {
		t.Fatalf("expected touched session to stay live, got ok=%v err=%v", ok, err)
	}
}

// --- Messaging ---

func testPublishUnknown(t *testing.T, factory HostFactory) {
	h := factory(t)

	if err := h.PublishSession(context.Background(), uuid.NewString(), frame(1)); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func testPendingThenLive(t *testing.T, factory HostFactory) {
	h := factory(t)
	id := newSession(t, h)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Frames published before anyone listens are queued.
	for i := 0; i < 3; i++ {
		if err := h.PublishSession(ctx, id, frame(i)); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	c := newCollector(5)
	done := subscribe(ctx, h, id, c.handle)

	time.Sleep(100 * time.Millisecond)
	for i := 3; i < 5; i++ {
		if err := h.PublishSession(ctx, id, frame(i)); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	c.wait(t)
	cancel()
	if err := waitErr(t, done); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	got := c.snapshot()
	if len(got) != 5 {
		t.Fatalf("expected 5 frames, got %d", len(got))
	}
	for i, f := range got {
		if want := string(frame(i).Data); string(f.Data) != want {
			t.Fatalf("frame %d: want %s, got %s", i, want, f.Data)
		}
		if f.Event != sessions.EventMessage {
			t.Fatalf("frame %d: want event %q, got %q", i, sessions.EventMessage, f.Event)
		}
	}
}

func testConcurrentPublishers(t *testing.T, factory HostFactory) {
	h := factory(t)
	id := newSession(t, h)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const publishers, each = 4, 25
	c := newCollector(publishers * each)
	done := subscribe(ctx, h, id, c.handle)

	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				f := sessions.Frame{Event: sessions.EventMessage, Data: []byte(fmt.Sprintf("%d:%d", p, i))}
				if err := h.PublishSession(ctx, id, f); err != nil {
					t.Errorf("publisher %d: %v", p, err)
					return
				}
			}
		}(p)
	}
	wg.Wait()

	c.wait(t)
	cancel()
	_ = waitErr(t, done)

	next := make([]int, publishers)
	for _, f := range c.snapshot() {
		var p, i int
		if _, err := fmt.Sscanf(string(f.Data), "%d:%d", &p, &i); err != nil {
			t.Fatalf("bad frame %q: %v", f.Data, err)
		}
		if i != next[p] {
			t.Fatalf("publisher %d: want seq %d, got %d", p, next[p], i)
		}
		next[p]++
	}
}

func testHandlerErrorStopsSubscription(t *testing.T, factory HostFactory) {
	h := factory(t)
	id := newSession(t, h)
	ctx := context.Background()

	if err := h.PublishSession(ctx, id, frame(1)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	boom := errors.New("boom")
	done := subscribe(ctx, h, id, func(context.Context, sessions.Frame) error { return boom })

	if err := waitErr(t, done); !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
}

// --- Sink ---

func testSecondSink(t *testing.T, factory HostFactory) {
	h := factory(t)
	id := newSession(t, h)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bind the first sink and wait until it has provably started.
	c := newCollector(1)
	done := subscribe(ctx, h, id, c.handle)
	if err := h.PublishSession(ctx, id, frame(1)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	c.wait(t)

	err := h.SubscribeSession(ctx, id, func(context.Context, sessions.Frame) error { return nil })
	if !errors.Is(err, sessions.ErrSinkBound) {
		t.Fatalf("expected ErrSinkBound, got %v", err)
	}

	cancel()
	_ = waitErr(t, done)
}

func testSinkReleased(t *testing.T, factory HostFactory) {
	h := factory(t)
	id := newSession(t, h)

	ctx, cancel := context.WithCancel(context.Background())
	first := subscribe(ctx, h, id, func(context.Context, sessions.Frame) error { return nil })
	time.Sleep(50 * time.Millisecond)
	cancel()
	_ = waitErr(t, first)

	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	c := newCollector(1)
	second := subscribe(ctx2, h, id, c.handle)

	if err := h.PublishSession(ctx2, id, frame(7)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	c.wait(t)
	cancel2()
	_ = waitErr(t, second)
}

func testDeleteTerminates(t *testing.T, factory HostFactory) {
	h := factory(t)
	id := newSession(t, h)
	ctx := context.Background()

	done := subscribe(ctx, h, id, func(context.Context, sessions.Frame) error { return nil })
	time.Sleep(50 * time.Millisecond)

	if err := h.DeleteSession(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := waitErr(t, done); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	ok, err := h.SessionExists(ctx, id)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if ok {
		t.Fatalf("expected deleted session to be gone")
	}
	if err := h.PublishSession(ctx, id, frame(1)); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	// Deleting twice is harmless.
	if err := h.DeleteSession(ctx, id); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}
