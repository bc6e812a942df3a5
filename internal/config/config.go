// Package config loads gateway settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"github.com/ggoodman/mcp-sse-commerce/auth"
	"github.com/ggoodman/mcp-sse-commerce/internal/logctx"
	"github.com/ggoodman/mcp-sse-commerce/sessions/redishost"
)

// Backend names accepted by SESSION_BACKEND and COMMERCE_BACKEND.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR,default=:8787"`
	PublicURL       string        `env:"PUBLIC_URL"`
	PingInterval    time.Duration `env:"PING_INTERVAL,default=15s"`
	SessionTTL      time.Duration `env:"SESSION_TTL,default=2m"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`

	SessionBackend string `env:"SESSION_BACKEND,default=memory"`
	Redis          redishost.Config

	CommerceBackend string `env:"COMMERCE_BACKEND,default=memory"`
	SQLitePath      string `env:"SQLITE_PATH,default=commerce.db"`
	CatalogSeed     string `env:"CATALOG_SEED"`
	CatalogWatch    bool   `env:"CATALOG_WATCH,default=false"`

	AuthMode   string `env:"AUTH_MODE,default=none"`
	AuthSecret string `env:"AUTH_SECRET"`
	AuthHeader string `env:"AUTH_HEADER,default=X-MCP-Secret"`

	ServerName    string `env:"SERVER_NAME,default=laburen-mcp-server"`
	ServerVersion string `env:"SERVER_VERSION,default=1.0.0"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`
}

// Load reads .env files (if present) into the process environment, then
// decodes and validates Config. Variables already set in the environment
// win over .env entries.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.SessionBackend {
	case BackendMemory, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("SESSION_BACKEND must be %q or %q, got %q", BackendMemory, BackendRedis, c.SessionBackend))
	}
	switch c.CommerceBackend {
	case BackendMemory, BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("COMMERCE_BACKEND must be %q or %q, got %q", BackendMemory, BackendSQLite, c.CommerceBackend))
	}
	switch auth.Mode(c.AuthMode) {
	case auth.ModeNone:
	case auth.ModeSharedSecret, auth.ModeJWT:
		if c.AuthSecret == "" {
			errs = append(errs, fmt.Errorf("AUTH_SECRET is required when AUTH_MODE=%s", c.AuthMode))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown AUTH_MODE %q", c.AuthMode))
	}
	if c.PingInterval <= 0 {
		errs = append(errs, errors.New("PING_INTERVAL must be positive"))
	}
	if c.SessionTTL <= c.PingInterval {
		errs = append(errs, fmt.Errorf("SESSION_TTL (%s) must exceed PING_INTERVAL (%s)", c.SessionTTL, c.PingInterval))
	}
	if c.CatalogWatch && c.CatalogSeed == "" {
		errs = append(errs, errors.New("CATALOG_WATCH requires CATALOG_SEED"))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL %q: %w", s, err)
	}
	return lvl, nil
}

// NewLogger builds the process logger: a JSON or text handler at the
// configured level, decorated with request context by logctx.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	lvl, err := parseLevel(c.LogLevel)
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	if strings.EqualFold(c.LogFormat, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(logctx.New(h))
}
