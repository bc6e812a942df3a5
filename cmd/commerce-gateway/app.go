package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ggoodman/mcp-sse-commerce/auth"
	"github.com/ggoodman/mcp-sse-commerce/commerce"
	"github.com/ggoodman/mcp-sse-commerce/commerce/catalog"
	"github.com/ggoodman/mcp-sse-commerce/commerce/memory"
	"github.com/ggoodman/mcp-sse-commerce/commerce/sqlstore"
	"github.com/ggoodman/mcp-sse-commerce/internal/config"
	"github.com/ggoodman/mcp-sse-commerce/internal/engine"
	"github.com/ggoodman/mcp-sse-commerce/mcpservice"
	"github.com/ggoodman/mcp-sse-commerce/sessions"
	"github.com/ggoodman/mcp-sse-commerce/sessions/memoryhost"
	"github.com/ggoodman/mcp-sse-commerce/sessions/redishost"
	"github.com/ggoodman/mcp-sse-commerce/sse"
)

type store interface {
	commerce.Service
	commerce.CatalogWriter
}

type app struct {
	handler http.Handler
	// watch, when set, hot-reloads the catalog until its context ends.
	watch   func(ctx context.Context) error
	closers []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (a *app, err error) {
	a = &app{}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	var st store
	switch cfg.CommerceBackend {
	case config.BackendSQLite:
		s, err := sqlstore.Open(cfg.SQLitePath, sqlstore.WithLogger(log))
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		st = s
	default:
		st = memory.New()
	}

	if cfg.CatalogSeed != "" {
		n, err := catalog.Load(ctx, cfg.CatalogSeed, st)
		if err != nil {
			return nil, fmt.Errorf("seed catalog: %w", err)
		}
		log.Info("catalog.load.ok", slog.String("path", cfg.CatalogSeed), slog.Int("products", n))
		if cfg.CatalogWatch {
			a.watch = func(ctx context.Context) error {
				return catalog.Watch(ctx, cfg.CatalogSeed, st, log)
			}
		}
	} else if cfg.CommerceBackend == config.BackendMemory {
		log.Warn("catalog.empty", slog.String("hint", "set CATALOG_SEED to load products"))
	}

	var host sessions.SessionHost
	switch cfg.SessionBackend {
	case config.BackendRedis:
		h, err := redishost.New(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect redis session host: %w", err)
		}
		a.closers = append(a.closers, h.Close)
		host = h
	default:
		host = memoryhost.New()
	}

	authn, err := auth.New(auth.Mode(cfg.AuthMode), cfg.AuthSecret, cfg.AuthHeader)
	if err != nil {
		return nil, fmt.Errorf("configure auth: %w", err)
	}

	tools := mcpservice.NewTools(st, mcpservice.WithLogger(log))
	eng := engine.NewEngine(tools,
		engine.WithLogger(log),
		engine.WithServerInfo(cfg.ServerName, cfg.ServerVersion),
	)
	reg := sessions.NewRegistry(host, eng,
		sessions.WithLogger(log),
		sessions.WithSessionTTL(cfg.SessionTTL),
	)
	h, err := sse.New(reg,
		sse.WithLogger(log),
		sse.WithPublicURL(cfg.PublicURL),
		sse.WithPingInterval(cfg.PingInterval),
		sse.WithAuthenticator(authn),
	)
	if err != nil {
		return nil, fmt.Errorf("build sse handler: %w", err)
	}

	a.handler = newRouter(cfg.ServerName, h)
	return a, nil
}

func newRouter(service string, h *sse.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "service": service})
	})
	r.Get(h.StreamPath(), h.ServeSSE)
	r.Post(h.MessagesPath(), h.ServeMessages)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": "NOT_FOUND"})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
