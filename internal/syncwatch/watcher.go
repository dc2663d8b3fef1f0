// Package syncwatch observes the granted notes directory with fsnotify and
// reports external changes to page files (the user editing or deleting JSON
// documents out-of-band), so connected clients can refresh.
package syncwatch

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// EventCallback is invoked for each observed page-file change.
// kind is one of "created", "updated", "deleted"; name is the file name.
type EventCallback func(kind, name string)

// Watch observes directories received on dirs until ctx is cancelled. The
// notes directory is flat, so no recursion is needed; when a new directory
// arrives (after a re-grant) the watch is re-pointed at it. Page documents
// (*.json) and markdown snapshots (*.md) are reported; temp and probe files
// are ignored.
func Watch(ctx context.Context, dirs <-chan string, logger *slog.Logger, cb EventCallback) error {
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	current := ""
	swapTo := func(dir string) {
		if dir == current {
			return
		}
		if current != "" {
			_ = w.Remove(current)
		}
		if err := w.Add(dir); err != nil {
			logger.Warn("syncwatch: watch dir failed",
				slog.String("dir", dir), slog.String("error", err.Error()))
			return
		}
		current = dir
		logger.Info("syncwatch: watching", slog.String("dir", dir))
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("syncwatch: stopped")
			return nil

		case dir, ok := <-dirs:
			if !ok {
				return nil
			}
			swapTo(dir)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			if !watchable(name) {
				continue
			}

			switch {
			case ev.Op&fsnotify.Create != 0:
				cb("created", name)
			case ev.Op&fsnotify.Write != 0:
				cb("updated", name)
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				cb("deleted", name)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("syncwatch: error", slog.String("error", watchErr.Error()))
		}
	}
}

func watchable(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	return strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".md")
}
