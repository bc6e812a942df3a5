package sse

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// Event names written on the stream.
const (
	EventEndpoint = "endpoint"
	EventMessage  = "message"
	EventPing     = "ping"
)

// lockedWriteFlusher wraps an io.Writer + http.Flusher with a mutex and an optional context.
// It serializes concurrent writes/flushes and avoids writing after ctx is canceled.
type lockedWriteFlusher struct {
	io.Writer
	http.Flusher
	mu  sync.Mutex
	ctx context.Context
}

// writeFrame writes one complete frame and flushes it while holding the
// lock, so frames from the relay and the pinger never interleave.
func (l *lockedWriteFlusher) writeFrame(event string, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return l.ctx.Err()
	}
	if _, err := l.Writer.Write(encodeFrame(event, data)); err != nil {
		return fmt.Errorf("write sse frame: %w", err)
	}
	l.Flusher.Flush()
	return nil
}

// encodeFrame renders an SSE frame. Every line of data gets its own "data: "
// prefix and the frame ends with a blank line. Empty data still produces one
// empty data line so that clients dispatch the event.
func encodeFrame(event string, data []byte) []byte {
	var b bytes.Buffer
	if event != "" {
		b.WriteString("event: ")
		b.WriteString(event)
		b.WriteByte('\n')
	}
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	for _, line := range bytes.Split(data, []byte("\n")) {
		b.WriteString("data: ")
		b.Write(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return b.Bytes()
}
