package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/owl/internal/daemon"
	"github.com/Dicklesworthstone/owl/internal/monitor"
	"github.com/Dicklesworthstone/owl/internal/notify"
	"github.com/Dicklesworthstone/owl/internal/tmux"
	"github.com/Dicklesworthstone/owl/internal/watcher"
)

// runCmdName is the hidden subcommand the detached daemon child runs.
const runCmdName = "_run"

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:    runCmdName,
		Short:  "Run the monitor loop in this process (internal use)",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(false)
		},
	}
}

// runDaemon is the daemon process body: single-instance lock, PID
// file, file-backed logger, config watcher, monitor loop. Runs until
// SIGINT/SIGTERM. In foreground mode log lines also reach stderr.
func runDaemon(foreground bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	paths := daemonPaths(cfg)

	lock, err := daemon.AcquireLock(paths)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	if err := daemon.WritePID(paths); err != nil {
		return err
	}
	defer daemon.RemovePID(paths)

	logFile, err := daemon.OpenLog(paths)
	if err != nil {
		return err
	}
	defer logFile.Close()

	var sink io.Writer = logFile
	if foreground {
		sink = io.MultiWriter(logFile, os.Stderr)
	}
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := daemon.NewLogger(sink, level)
	logger.Info("[Daemon] starting",
		"pid", os.Getpid(),
		"version", Version,
		"config", configPath(),
		"data_dir", cfg.DataDir,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mux := tmux.NewClient()

	hooks, err := notify.LoadWebhooks(cfg.WebhooksPath())
	if err != nil {
		logger.Warn("[Daemon] webhooks_rejected", "error", err)
	}
	nopts := []notify.NotifierOption{
		notify.WithSender(mux),
		notify.WithLogger(logger),
		notify.WithMessagePrefix(cfg.Notify.MessagePrefix),
		notify.WithDisabled(!cfg.Notify.Enabled),
	}
	if len(hooks) > 0 {
		nopts = append(nopts, notify.WithWebhooks(notify.NewWebhookDispatcher(hooks, logger)))
		logger.Info("[Daemon] webhooks_loaded", "count", len(hooks))
	}

	w := watcher.NewConfigWatcher(configPath(), watcher.WithLogger(logger))
	go func() {
		if err := w.Run(ctx); err != nil {
			logger.Warn("[Daemon] config_watch_failed", "error", err)
		}
	}()

	mon := monitor.New(cfg,
		monitor.WithMultiplexer(mux),
		monitor.WithNotifier(notify.NewNotifier(nopts...)),
		monitor.WithLogger(logger),
		monitor.WithReload(w.Reloads()),
	)

	err = mon.Run(ctx)
	logger.Info("[Daemon] exited")
	return err
}
