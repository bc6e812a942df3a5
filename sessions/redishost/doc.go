// Package redishost provides a Redis-backed sessions.SessionHost.
//
// Each session is three keys under a configurable prefix:
//
//	live:<id>    liveness marker; its TTL is the session TTL, refreshed by pings
//	stream:<id>  Redis Stream holding queued frames (fields e and d)
//	sink:<id>    claimed with SET NX by the single stream consumer
//
// Publishing is a Lua script that checks live:<id> and appends in one step,
// so deliveries for evicted sessions fail with sessions.ErrSessionNotFound
// instead of recreating the stream. The consumer reads the stream from the
// beginning, which flushes frames queued before it bound, then follows new
// entries with a blocking XREAD and deletes what it has delivered. Between
// blocking reads it re-checks liveness and returns when the session is gone.
//
// Because all state lives in Redis, any instance can accept a POST for a
// session whose stream is held by another instance.
package redishost
