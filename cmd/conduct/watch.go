package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ShayCichocki/conduct/internal/session"
	"github.com/ShayCichocki/conduct/pkg/models"
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Follow session snapshots as they are written",
	Long: `Watch a session snapshot directory and print a line every time a session
is saved. The directory defaults to store.mirror_dir, or store.path when the
files driver is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	dir := cfg.Store.MirrorDir
	if dir == "" && cfg.Store.Driver == "files" {
		dir = filesDir(cfg.Store)
	}
	if len(args) == 1 {
		dir = args[0]
	}
	if dir == "" {
		return errors.New("no snapshot directory: set store.mirror_dir or pass a directory")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Watching %s (ctrl+c to stop)\n", dir)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if filepath.Ext(ev.Name) != ".json" {
				continue
			}
			line, err := describeSnapshot(ev.Name)
			if err != nil {
				// Partially written or already replaced.
				logger.Debug("skip snapshot", zap.String("path", ev.Name), zap.Error(err))
				continue
			}
			fmt.Fprintln(out, line)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", zap.Error(err))
		}
	}
}

func describeSnapshot(path string) (string, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sess, err := session.Decode(blob)
	if err != nil {
		return "", err
	}

	var running []string
	for _, st := range sess.Subtasks {
		if st.Status == models.SubtaskStatusRunning {
			running = append(running, fmt.Sprint(st.ID))
		}
	}
	line := fmt.Sprintf("%s %s cycle %d · %d/%d done · %d findings",
		sess.UpdatedAt.Format("15:04:05"), color.CyanString(sess.ID),
		sess.Cycle, sess.CountDone(), len(sess.Subtasks), len(sess.Findings))
	if len(running) > 0 {
		line += " · running " + strings.Join(running, ",")
	}
	return line, nil
}
