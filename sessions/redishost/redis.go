package redishost

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"

	"github.com/ggoodman/mcp-sse-commerce/sessions"
)

// Config for Redis-backed SessionHost. Defaults can be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: REDIS_KEY_PREFIX
	KeyPrefix string `env:"REDIS_KEY_PREFIX,default=mcp:sse:"`
	// PollInterval bounds how long a subscriber blocks before re-checking
	// session liveness. ENV: REDIS_POLL_INTERVAL
	PollInterval time.Duration `env:"REDIS_POLL_INTERVAL,default=500ms"`
}

type Host struct {
	client    *redis.Client
	keyPrefix string
	poll      time.Duration
}

func New(cfg Config) (*Host, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(context.Background()).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewFromClient(cl, cfg), nil
}

// NewFromClient wraps an existing client. The caller keeps ownership of
// connection settings; Close closes the client.
func NewFromClient(cl *redis.Client, cfg Config) *Host {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "mcp:sse:"
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	return &Host{client: cl, keyPrefix: prefix, poll: poll}
}

// NewFromEnv builds a Host using envdecode to populate Config.
func NewFromEnv() (*Host, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode redis config: %w", err)
	}
	return New(cfg)
}

// Close closes the Redis client.
func (h *Host) Close() error { return h.client.Close() }

// --- Key helpers ---

func (h *Host) liveKey(sessionID string) string   { return h.keyPrefix + "live:" + sessionID }
func (h *Host) streamKey(sessionID string) string { return h.keyPrefix + "stream:" + sessionID }
func (h *Host) sinkKey(sessionID string) string   { return h.keyPrefix + "sink:" + sessionID }

func (h *Host) keys(sessionID string) []string {
	return []string{h.liveKey(sessionID), h.streamKey(sessionID), h.sinkKey(sessionID)}
}

// --- Lifecycle ---

func (h *Host) CreateSession(ctx context.Context, sessionID string, ttl time.Duration) error {
	ok, err := h.client.SetNX(ctx, h.liveKey(sessionID), "1", ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return sessions.ErrSessionExists
	}
	return nil
}

func (h *Host) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	n, err := h.client.Exists(ctx, h.liveKey(sessionID)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// touchScript extends every key of a live session to ttl milliseconds.
var touchScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('PEXPIRE', KEYS[1], ARGV[1])
redis.call('PEXPIRE', KEYS[2], ARGV[1])
redis.call('PEXPIRE', KEYS[3], ARGV[1])
return 1
`)

func (h *Host) TouchSession(ctx context.Context, sessionID string, ttl time.Duration) error {
	res, err := touchScript.Run(ctx, h.client, h.keys(sessionID), ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if res == 0 {
		return sessions.ErrSessionNotFound
	}
	return nil
}

func (h *Host) DeleteSession(ctx context.Context, sessionID string) error {
	return h.client.Del(context.WithoutCancel(ctx), h.keys(sessionID)...).Err()
}

// --- Messaging via Redis Streams ---

// publishScript appends to the stream only while the session is live, so a
// delivery racing an eviction cannot resurrect the stream key.
var publishScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('XADD', KEYS[2], '*', 'e', ARGV[1], 'd', ARGV[2])
local ttl = redis.call('PTTL', KEYS[1])
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[2], ttl)
end
return 1
`)

func (h *Host) PublishSession(ctx context.Context, sessionID string, f sessions.Frame) error {
	keys := []string{h.liveKey(sessionID), h.streamKey(sessionID)}
	res, err := publishScript.Run(ctx, h.client, keys, f.Event, f.Data).Int()
	if err != nil {
		return err
	}
	if res == 0 {
		return sessions.ErrSessionNotFound
	}
	return nil
}

// bindScript claims the single sink of a live session.
// Returns 1 on success, 0 when the session is gone, -1 when already bound.
var bindScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl <= 0 then
  ttl = 60000
end
if redis.call('SET', KEYS[2], '1', 'NX', 'PX', ttl) then
  return 1
end
return -1
`)

func (h *Host) SubscribeSession(ctx context.Context, sessionID string, handler sessions.FrameHandler) error {
	res, err := bindScript.Run(ctx, h.client, []string{h.liveKey(sessionID), h.sinkKey(sessionID)}).Int()
	if err != nil {
		return err
	}
	switch res {
	case 0:
		return sessions.ErrSessionNotFound
	case -1:
		return sessions.ErrSinkBound
	}
	defer func() {
		_ = h.client.Del(context.WithoutCancel(ctx), h.sinkKey(sessionID)).Err()
	}()

	key := h.streamKey(sessionID)
	// "0" replays everything queued before the sink existed.
	cursor := "0"

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		streams, err := h.client.XRead(ctx, &redis.XReadArgs{Streams: []string{key, cursor}, Count: 100, Block: h.poll}).Result()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !errors.Is(err, redis.Nil) {
				return err
			}
			live, err := h.SessionExists(ctx, sessionID)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return err
			}
			if !live {
				return sessions.ErrSessionNotFound
			}
			continue
		}

		var delivered []string
		for _, s := range streams {
			for _, m := range s.Messages {
				cursor = m.ID
				if err := handler(ctx, decodeFrame(m.Values)); err != nil {
					return err
				}
				delivered = append(delivered, m.ID)
			}
		}
		if len(delivered) > 0 {
			_ = h.client.XDel(ctx, key, delivered...).Err()
		}
	}
}

func decodeFrame(values map[string]any) sessions.Frame {
	return sessions.Frame{Event: asString(values["e"]), Data: []byte(asString(values["d"]))}
}

func asString(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Interface compliance
var _ sessions.SessionHost = (*Host)(nil)
