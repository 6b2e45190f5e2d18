package watcher

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
}

func TestConfigWatcherDeliversValidReload(t *testing.T) {
	t.Setenv("OWL_MONITOR_INTERVAL", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeConfig(t, path, "[monitor]\ninterval_sec = 10\n")

	w := NewConfigWatcher(path, WithLogger(quietLogger()), WithDebounce(50*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	// Give the watch a moment to attach before writing.
	time.Sleep(100 * time.Millisecond)
	writeConfig(t, path, "[monitor]\ninterval_sec = 7\n")

	select {
	case cfg := <-w.Reloads():
		if cfg.Monitor.IntervalSec != 7 {
			t.Errorf("reloaded interval_sec = %d, want 7", cfg.Monitor.IntervalSec)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload delivered")
	}

	cancel()
	<-done
}

func TestConfigWatcherRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeConfig(t, path, "[monitor]\ninterval_sec = -5\n")

	w := NewConfigWatcher(path, WithLogger(quietLogger()))
	w.reload()

	select {
	case cfg := <-w.Reloads():
		t.Fatalf("invalid config was delivered: %+v", cfg)
	default:
	}
}

func TestConfigWatcherKeepsNewestReload(t *testing.T) {
	t.Setenv("OWL_MONITOR_INTERVAL", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	w := NewConfigWatcher(path, WithLogger(quietLogger()))

	writeConfig(t, path, "[monitor]\ninterval_sec = 20\n")
	w.reload()
	writeConfig(t, path, "[monitor]\ninterval_sec = 30\n")
	w.reload()

	select {
	case cfg := <-w.Reloads():
		if cfg.Monitor.IntervalSec != 30 {
			t.Errorf("delivered interval_sec = %d, want the newest (30)", cfg.Monitor.IntervalSec)
		}
	default:
		t.Fatal("expected a queued reload")
	}
}
