// Package tmux is the thin collaborator layer over the tmux binary:
// agent discovery, pane capture, keystroke delivery, and the session
// and window primitives recovery actions use. Every call is bounded by
// a timeout so a wedged tmux server can never hang the monitor loop.
package tmux

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds a single tmux invocation.
const DefaultTimeout = 5 * time.Second

// Client runs tmux commands with a fixed per-call timeout.
type Client struct {
	Timeout time.Duration
}

// NewClient returns a client with the default timeout.
func NewClient() *Client {
	return &Client{Timeout: DefaultTimeout}
}

// DefaultClient backs the package-level helpers.
var DefaultClient = NewClient()

// Run executes a tmux command and returns trimmed stdout.
func (c *Client) Run(args ...string) (string, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "tmux", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("tmux %s: timed out after %s", strings.Join(args, " "), timeout)
		}
		return "", fmt.Errorf("tmux %s: %w: %s", strings.Join(args, " "), err, stderr.String())
	}
	return strings.TrimSpace(stdout.String()), nil
}

// RunSilent executes a tmux command ignoring output.
func (c *Client) RunSilent(args ...string) error {
	_, err := c.Run(args...)
	return err
}

// IsInstalled checks if tmux is available.
func IsInstalled() bool {
	_, err := exec.LookPath("tmux")
	return err == nil
}

// EnsureInstalled returns an error if tmux is not installed.
func EnsureInstalled() error {
	if !IsInstalled() {
		return errors.New("tmux is not installed. Install it with: brew install tmux (macOS) or apt install tmux (Linux)")
	}
	return nil
}

// InTmux returns true if currently inside a tmux session.
func InTmux() bool {
	return os.Getenv("TMUX") != ""
}

// noServer reports tmux errors that just mean "nothing is running".
func noServer(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "no server running") ||
		strings.Contains(msg, "no sessions") ||
		strings.Contains(msg, "No such file or directory") ||
		strings.Contains(msg, "error connecting to")
}
