package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/ggoodman/mcp-sse-commerce/commerce"
)

// Watch reloads the seed at path into w whenever the file changes, until ctx
// is done. The parent directory is watched so that editors replacing the file
// via rename are picked up. Reload failures are logged and the previous
// catalog stays in place.
func Watch(ctx context.Context, path string, w commerce.CatalogWriter, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve catalog path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			n, err := Load(ctx, abs, w)
			if err != nil {
				log.WarnContext(ctx, "catalog.reload.fail", slog.String("path", abs), slog.String("err", err.Error()))
				continue
			}
			log.InfoContext(ctx, "catalog.reload.ok", slog.String("path", abs), slog.Int("products", n))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WarnContext(ctx, "catalog.watch.error", slog.String("err", err.Error()))
		}
	}
}
