// Package watcher hot-reloads the daemon's config file using fsnotify.
// The parent directory is watched rather than the file itself because
// most editors replace files via rename, which would silently kill a
// file-level watch.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Dicklesworthstone/owl/internal/config"
)

// DefaultDebounce coalesces the burst of events an editor save produces.
const DefaultDebounce = 250 * time.Millisecond

// ConfigWatcher watches one config file and delivers validated reloads.
// A malformed or invalid file is rejected with a log line; the running
// config stays in effect.
type ConfigWatcher struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger
	out      chan *config.Config

	mu    sync.Mutex
	timer *time.Timer
}

// Option configures a ConfigWatcher.
type Option func(*ConfigWatcher)

// WithDebounce sets the event coalescing window.
func WithDebounce(d time.Duration) Option {
	return func(w *ConfigWatcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *ConfigWatcher) { w.logger = l }
}

// NewConfigWatcher builds a watcher for the config file at path.
func NewConfigWatcher(path string, opts ...Option) *ConfigWatcher {
	w := &ConfigWatcher{
		path:     path,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		out:      make(chan *config.Config, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Reloads returns the channel successful reloads arrive on. Only the
// newest undelivered reload is kept.
func (w *ConfigWatcher) Reloads() <-chan *config.Config {
	return w.out
}

// Run watches until ctx ends. The config file may not exist yet;
// creating it later still triggers a reload because the watch covers
// its directory.
func (w *ConfigWatcher) Run(ctx context.Context) error {
	if w.path == "" {
		<-ctx.Done()
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting config watcher: %w", err)
	}
	defer fsw.Close()

	dir := filepath.Dir(w.path)
	name := filepath.Base(w.path)
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	w.logger.Info("[Watcher] config_watch_started", "path", w.path)

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("[Watcher] watch_error", "error", err)
		}
	}
}

// scheduleReload (re)arms the debounce timer.
func (w *ConfigWatcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *ConfigWatcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// reload parses and validates the file, then replaces any undelivered
// reload with this one so the consumer always applies the newest.
func (w *ConfigWatcher) reload() {
	cfg, err := config.Load(w.path)
	if err != nil {
		w.logger.Warn("[Watcher] config_reload_rejected", "path", w.path, "error", err)
		return
	}

	select {
	case w.out <- cfg:
	default:
		select {
		case <-w.out:
		default:
		}
		select {
		case w.out <- cfg:
		default:
		}
	}
	w.logger.Info("[Watcher] config_reload_queued", "path", w.path)
}
