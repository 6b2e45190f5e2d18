package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/owl/internal/daemon"
)

func newLogsCmd() *cobra.Command {
	var (
		lines  int
		follow bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show daemon log output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			paths := daemonPaths(cfg)
			f := formatter()

			tail, err := daemon.TailLog(paths, lines)
			if err != nil {
				return fmt.Errorf("reading log: %w", err)
			}
			if tail == nil && !follow {
				f.Muted("No log yet at %s", paths.Log)
				return nil
			}
			for _, line := range tail {
				f.Println(line)
			}

			if !follow {
				return nil
			}
			return followLog(paths.Log, f.Writer())
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines as they are written")
	return cmd
}

// followLog streams appended log bytes until interrupted. The watch
// covers the directory so rotation (rename and recreate) is survived.
func followLog(path string, w io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting log watcher: %w", err)
	}
	defer fsw.Close()

	dir := filepath.Dir(path)
	name := filepath.Base(path)
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	var (
		file   *os.File
		offset int64
	)
	defer func() {
		if file != nil {
			file.Close()
		}
	}()

	// Start at the end of whatever exists; the tail above already
	// showed it.
	if f, err := os.Open(path); err == nil {
		offset, _ = f.Seek(0, io.SeekEnd)
		file = f
	}

	readNew := func() {
		for {
			if file == nil {
				f, err := os.Open(path)
				if err != nil {
					return
				}
				file = f
				offset = 0
			}
			n, _ := io.Copy(w, file)
			offset += n
			info, err := os.Stat(path)
			if err == nil && info.Size() >= offset {
				return
			}
			// Shrunk or replaced underneath us; reopen from the start.
			file.Close()
			file = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			readNew()
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("[Logs] watch_error", "error", err)
		}
	}
}
