// Package sessions implements the session registry behind the SSE transport.
//
// A session is created when a client opens the event stream and is addressed
// by an unguessable id. Deliveries (POSTed JSON-RPC messages) are dispatched
// to a Handler and their responses are queued on the session as frames. The
// stream consumes the queue in order: frames published before the stream
// binds are held and flushed first, exactly once.
//
// Storage and signalling are delegated to a SessionHost. Two implementations
// are provided:
//
//   - memoryhost: a process-local table. Only usable when every request for a
//     session reaches the same process (single instance, or sticky routing).
//   - redishost: sessions live in Redis keyed by id, so a POST handled by any
//     instance reaches the instance holding the stream. This is the default
//     for horizontally scaled deployments.
//
// Both are verified by the shared suite in sessionhosttest.
package sessions
