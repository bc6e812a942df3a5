// Package sse serves the legacy MCP HTTP+SSE transport.
//
// A client opens GET /sse and receives, as its first frame, an "endpoint"
// event whose data is the absolute URL to POST messages to:
//
//	event: endpoint
//	data: https://gateway.example/messages?sessionId=6f1c...
//
// Each POST /messages?sessionId=<id> is answered with 202 Accepted and an
// empty body once the message has been processed. JSON-RPC responses are
// written to the stream as "message" events in the order they were
// produced. "ping" events with empty data keep intermediaries from closing
// idle connections and refresh the session's liveness.
//
// Transport-level failures are reported as JSON bodies of the form
// {"ok":false,"error":"<CODE>"} with a matching HTTP status.
package sse
