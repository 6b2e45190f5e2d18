package cli

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/owl/internal/daemon"
	"github.com/Dicklesworthstone/owl/internal/output"
)

// statusReport is the machine-readable shape of 'owl status'.
type statusReport struct {
	Running    bool   `json:"running"`
	PID        int    `json:"pid,omitempty"`
	State      string `json:"state"`
	LoopState  string `json:"loop_state,omitempty"`
	UptimeSec  int64  `json:"uptime_sec,omitempty"`
	StopMarker bool   `json:"stop_marker"`
	Log        string `json:"log"`
	DataDir    string `json:"data_dir"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Long: `Report whether the daemon is running, stopped, or left a stale PID
file behind, plus its loop state, uptime, and log location.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			paths := daemonPaths(cfg)
			f := formatter()

			state, pid := daemon.Check(paths)
			report := statusReport{
				PID:        pid,
				State:      string(state),
				StopMarker: daemon.MarkerExists(paths),
				Log:        paths.Log,
				DataDir:    cfg.DataDir,
			}

			if state == daemon.StateRunning {
				report.Running = true
				// The PID file is written once at startup, so its
				// mtime is the daemon's birth time.
				if info, err := os.Stat(paths.PID); err == nil {
					report.UptimeSec = int64(time.Since(info.ModTime()).Seconds())
				}
				lines, _ := daemon.TailLog(paths, 200)
				report.LoopState = loopStateFromLog(lines)
			}

			if f.IsJSON() {
				return f.JSON(report)
			}
			printStatus(f, report)
			return nil
		},
	}
}

func printStatus(f *output.Formatter, r statusReport) {
	switch daemon.State(r.State) {
	case daemon.StateRunning:
		f.Success("owl is running (pid %d)", r.PID)
		if r.LoopState != "" {
			f.Printf("  Loop:   %s\n", r.LoopState)
		}
		if r.UptimeSec > 0 {
			f.Printf("  Uptime: %s\n", time.Duration(r.UptimeSec)*time.Second)
		}
	case daemon.StateStale:
		f.Warn("stale PID file (process %d is gone); 'owl start' will clean it up", r.PID)
	default:
		f.Muted("owl is not running")
	}

	if r.StopMarker {
		f.Muted("  Stopped by operator; 'owl start --auto' will decline to restart.")
	}
	f.Printf("  Log:    %s\n", r.Log)
}

// loopStateFromLog recovers the loop state from the newest lifecycle
// event in the log tail. The daemon's in-memory state is not reachable
// from another process; the log is the only shared record.
func loopStateFromLog(lines []string) string {
	for i := len(lines) - 1; i >= 0; i-- {
		switch {
		case strings.Contains(lines[i], "rate_limit_pause_complete"),
			strings.Contains(lines[i], "rate_limit_pause_interrupted"):
			return "running"
		case strings.Contains(lines[i], "rate_limit_pause"):
			return "sleeping (rate limit)"
		case strings.Contains(lines[i], "loop_stopping"):
			return "stopping"
		case strings.Contains(lines[i], "loop_starting"):
			return "running"
		}
	}
	return ""
}
