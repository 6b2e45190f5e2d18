package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/owl/internal/daemon"
)

func newStopCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the monitoring daemon",
		Long: `Stop the owl daemon gracefully.

Writes the stop marker first (so 'owl start --auto' respawn guards
see an operator stop), then sends SIGTERM and waits for the process
to exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			paths := daemonPaths(cfg)
			f := formatter()

			err = daemon.Stop(paths, timeout)
			if errors.Is(err, daemon.ErrNotRunning) {
				if f.IsJSON() {
					return f.JSON(map[string]any{"stopped": false, "reason": err.Error()})
				}
				f.Muted("%v", err)
				return nil
			}
			if err != nil {
				return err
			}

			if f.IsJSON() {
				return f.JSON(map[string]any{"stopped": true})
			}
			f.Success("Daemon stopped")
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "How long to wait for the daemon to exit")
	return cmd
}
