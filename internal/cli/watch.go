package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/owl/internal/tmux"
	"github.com/Dicklesworthstone/owl/internal/tui"
)

func newWatchCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live dashboard of agent states",
		Long: `Open a full-screen dashboard that samples every agent pane on an
interval and shows its classified state, alongside the daemon's own
status. Sampling happens in this process; the daemon is not required.

Keys: ↑/↓ or j/k select, r refresh now, p pause, q quit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := tmux.EnsureInstalled(); err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return tui.Run(cfg, interval)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", tui.DefaultRefreshInterval, "Refresh interval")
	return cmd
}
