// Package memoryhost provides an in-process sessions.SessionHost.
//
// Sessions live in a map guarded by a single mutex; each session keeps its
// pending frames in a slice and wakes its consumer through a one-slot
// channel. Expiry is evaluated lazily on access.
//
// Because state is process-local, a POST for a session only succeeds on the
// instance that holds the stream. Use it for tests, local development and
// single-instance deployments; use redishost when running more than one
// instance without sticky routing.
package memoryhost
