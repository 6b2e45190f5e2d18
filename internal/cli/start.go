package cli

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/owl/internal/daemon"
	"github.com/Dicklesworthstone/owl/internal/output"
)

func newStartCmd() *cobra.Command {
	var (
		foreground bool
		auto       bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the monitoring daemon",
		Long: `Start the owl daemon.

By default the daemon detaches from this terminal and appends its
output to the log inside the data directory. Refuses to start when a
daemon is already running (live PID file plus lock).

--auto is the respawn-guard variant for hooks and cron: it declines to
start while the graceful-stop marker from 'owl stop' exists, so an
operator stop stays stopped. A plain 'owl start' clears the marker.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			paths := daemonPaths(cfg)
			f := formatter()

			if auto && daemon.MarkerExists(paths) {
				if f.IsJSON() {
					return f.JSON(map[string]any{"started": false, "reason": "stop marker present"})
				}
				f.Muted("Stop marker present at %s; skipping auto start.", paths.Marker)
				f.Muted("Run 'owl start' to clear it and start anyway.")
				return nil
			}

			switch state, pid := daemon.Check(paths); state {
			case daemon.StateRunning:
				return fmt.Errorf("%w (pid %d)", daemon.ErrAlreadyRunning, pid)
			case daemon.StateStale:
				daemon.RemovePID(paths)
				if !f.IsJSON() {
					f.Warn("Removed stale PID file (process %d is gone)", pid)
				}
			}

			daemon.ClearMarker(paths)

			if foreground {
				return runDaemon(true)
			}
			return spawnDaemon(paths, f)
		},
	}

	cmd.Flags().BoolVar(&foreground, "foreground", false, "Run in the foreground instead of detaching")
	cmd.Flags().BoolVar(&auto, "auto", false, "Decline to start while a graceful-stop marker exists (for hooks/cron)")
	return cmd
}

// spawnDaemon launches the hidden run command detached from this
// terminal. The child's stdout/stderr append to the daemon log so a
// panic before the logger comes up is not lost.
func spawnDaemon(paths daemon.Paths, f *output.Formatter) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving executable: %w", err)
	}

	logFile, err := daemon.OpenLog(paths)
	if err != nil {
		return err
	}
	defer logFile.Close()

	args := []string{runCmdName}
	if cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}
	if verbose {
		args = append(args, "--verbose")
	}

	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := child.Start(); err != nil {
		return fmt.Errorf("starting daemon: %w", err)
	}
	_ = child.Process.Release()

	pid, err := waitForPID(paths, 5*time.Second)
	if err != nil {
		return fmt.Errorf("daemon did not come up: %w (check %s)", err, paths.Log)
	}

	if f.IsJSON() {
		return f.JSON(map[string]any{"started": true, "pid": pid, "log": paths.Log})
	}
	f.Success("Daemon started (pid %d)", pid)
	f.Muted("Logs: %s", paths.Log)
	return nil
}

// waitForPID polls until the spawned daemon has written a live PID
// file. Start errors surface in the log, not here.
func waitForPID(paths daemon.Paths, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	interval := 50 * time.Millisecond
	for time.Now().Before(deadline) {
		if state, pid := daemon.Check(paths); state == daemon.StateRunning {
			return pid, nil
		}
		time.Sleep(interval)
		if interval < 500*time.Millisecond {
			interval *= 2
		}
	}
	return 0, errors.New("no live PID file within timeout")
}
