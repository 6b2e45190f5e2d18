// Package cli is the owl command tree: daemon lifecycle (start, stop,
// status, logs), one-shot inspection (agents), the live dashboard
// (watch), and config management.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/owl/internal/config"
	"github.com/Dicklesworthstone/owl/internal/daemon"
	"github.com/Dicklesworthstone/owl/internal/output"
)

var (
	cfgFile string

	// Persistent flags, visible to every subcommand.
	jsonOutput bool
	noColor    bool
	verbose    bool

	// Release metadata, stamped in by the build via ldflags.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "owl",
	Short: "Supervisory daemon for tmux-hosted AI coding agents",
	Long: `owl watches the AI coding agents running in your tmux sessions.

A background daemon samples each agent pane every few seconds,
classifies what it sees (active, idle, crashed, rate limited, ...),
and messages the team's supervising agent when something needs
attention. Usage-limit banners pause monitoring until the limit
resets; teams that stay idle too long are escalated in tiers.

Quick Start:
  owl start                 # Launch the daemon in the background
  owl status                # Is it running? What is it doing?
  owl agents                # One-shot listing of agents and states
  owl watch                 # Live dashboard
  owl stop                  # Graceful shutdown`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			os.Setenv("NO_COLOR", "1")
		}
		// CLI commands log to stderr; the daemon process replaces this
		// with its file-backed logger.
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		// SilenceErrors is set so JSON consumers never see prose on
		// stdout; humans still get the error on stderr.
		if !jsonOutput {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		return err
	}
	return nil
}

// configPath is the effective config file location for this run.
func configPath() string {
	if cfgFile != "" {
		return config.ExpandHome(cfgFile)
	}
	return config.DefaultPath()
}

// loadConfig loads and validates the effective configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// daemonPaths maps config locations to the daemon's on-disk artifacts.
func daemonPaths(cfg *config.Config) daemon.Paths {
	return daemon.Paths{
		Dir:    cfg.DataDir,
		PID:    cfg.PIDPath(),
		Lock:   cfg.LockPath(),
		Log:    cfg.LogPath(),
		Marker: cfg.MarkerPath(),
	}
}

// formatter builds the output formatter honoring --json and pipes.
func formatter() *output.Formatter {
	return output.New(output.WithFormat(output.DetectFormat(jsonOutput)))
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.config/owl/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON instead of text")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, Date)

	rootCmd.AddCommand(
		newStartCmd(),
		newStopCmd(),
		newStatusCmd(),
		newLogsCmd(),
		newAgentsCmd(),
		newWatchCmd(),
		newConfigCmd(),
		newRunCmd(),
	)
}
