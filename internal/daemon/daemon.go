// Package daemon owns the owl process lifecycle: single-instance
// enforcement (flock plus a plain-integer PID file), the append-only
// log, the graceful-stop marker, and stop/status plumbing for the CLI.
package daemon

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
)

var (
	// ErrAlreadyRunning means another daemon holds the lock or a live
	// PID file exists.
	ErrAlreadyRunning = errors.New("daemon already running")
	// ErrNotRunning means there is no live daemon to act on.
	ErrNotRunning = errors.New("daemon not running")
)

// Paths locates the daemon's on-disk artifacts.
type Paths struct {
	Dir    string // data directory, created on demand
	PID    string
	Lock   string
	Log    string
	Marker string // graceful-stop marker
}

// State describes what the PID file says about the daemon.
type State string

const (
	StateNotRunning State = "not_running"
	StateRunning    State = "running"
	// StateStale means a PID file exists but its process is dead or
	// the file is unreadable; a new daemon may start over it.
	StateStale State = "stale"
)

// Check inspects the PID file and the liveness of its process.
func Check(p Paths) (State, int) {
	data, err := os.ReadFile(p.PID)
	if err != nil {
		return StateNotRunning, 0
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return StateStale, 0
	}
	if !pidAlive(pid) {
		return StateStale, pid
	}
	return StateRunning, pid
}

// pidAlive reports whether pid is a live process. Signal 0 probes
// without delivering; EPERM still means the process exists.
func pidAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}

// AcquireLock takes the non-blocking exclusive lock that closes the
// start/start race the PID file alone cannot.
func AcquireLock(p Paths) (*flock.Flock, error) {
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	lock := flock.New(p.Lock)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock: %w", err)
	}
	if !locked {
		return nil, ErrAlreadyRunning
	}
	return lock, nil
}

// WritePID enforces single-instance startup and records our PID.
// A live PID file refuses the start; a stale one is overwritten. The
// file is re-read afterwards; a verification failure is fatal, the
// daemon must not run without an enforceable PID file.
func WritePID(p Paths) error {
	if state, pid := Check(p); state == StateRunning {
		return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
	}

	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	own := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(p.PID, []byte(own), 0o644); err != nil {
		return fmt.Errorf("writing pid file %s: %w", p.PID, err)
	}

	back, err := os.ReadFile(p.PID)
	if err != nil || strings.TrimSpace(string(back)) != own {
		return fmt.Errorf("pid file %s failed verification after write", p.PID)
	}
	return nil
}

// RemovePID deletes the PID file on clean shutdown.
func RemovePID(p Paths) {
	_ = os.Remove(p.PID)
}

// Stop signals the running daemon and waits for it to exit. The stop
// marker is written first so respawn guards see an operator stop even
// if the process takes a moment to die.
func Stop(p Paths, wait time.Duration) error {
	state, pid := Check(p)
	switch state {
	case StateNotRunning:
		return ErrNotRunning
	case StateStale:
		RemovePID(p)
		return fmt.Errorf("%w (removed stale pid file)", ErrNotRunning)
	}

	if err := WriteMarker(p); err != nil {
		return err
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signaling process %d: %w", pid, err)
	}

	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if !pidAlive(pid) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon (pid %d) did not exit within %s", pid, wait)
}

// WriteMarker records a clean operator stop. Respawn guards decline to
// restart while the marker exists.
func WriteMarker(p Paths) error {
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	content := fmt.Sprintf("stopped %s\n", time.Now().UTC().Format(time.RFC3339))
	if err := os.WriteFile(p.Marker, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing stop marker: %w", err)
	}
	return nil
}

// ClearMarker removes the stop marker (an explicit start).
func ClearMarker(p Paths) {
	_ = os.Remove(p.Marker)
}

// MarkerExists reports whether a graceful stop left its marker.
func MarkerExists(p Paths) bool {
	_, err := os.Stat(p.Marker)
	return err == nil
}

// OpenLog opens the append-only log file.
func OpenLog(p Paths) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(p.Log), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(p.Log, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}

// NewLogger builds the daemon's structured logger: one text line per
// significant event. Foreground mode passes a writer that tees to
// stderr.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// TailLog returns the last n lines of the log file. A missing log
// means no daemon has run here yet.
func TailLog(p Paths, n int) ([]string, error) {
	data, err := os.ReadFile(p.Log)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil, nil
	}
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}
