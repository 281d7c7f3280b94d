package cli

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 100 * time.Millisecond

// treeWatcher runs apply whenever a file matching one of patterns is
// written, created, renamed or removed. Bursts of events within the debounce
// window trigger one apply.
type treeWatcher struct {
	patterns []string
	apply    func(context.Context) error
	logger   *slog.Logger
	debounce time.Duration

	// ready is closed once the watches are in place.
	ready chan struct{}
}

// Run watches until ctx is done.
func (w *treeWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	for _, base := range w.bases() {
		if err := addRecursive(watcher, base); err != nil {
			return fmt.Errorf("watching %s: %w", base, err)
		}
	}

	debounce := w.debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	w.logger.Info("Watching tree files", "patterns", w.patterns)
	if w.ready != nil {
		close(w.ready)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
					if err := addRecursive(watcher, event.Name); err != nil {
						w.logger.Warn("Cannot watch new directory", "dir", event.Name, "error", err)
					}
					timer.Reset(debounce)
					continue
				}
			}
			if event.Op == fsnotify.Chmod || !w.matches(event.Name) {
				continue
			}
			w.logger.Debug("Tree file changed", "name", event.Name, "op", event.Op.String())
			timer.Reset(debounce)

		case <-timer.C:
			logApplyError(w.logger, w.apply(ctx))

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("fsnotify error", "error", err)
		}
	}
}

// bases returns the directories below which the patterns can match.
func (w *treeWatcher) bases() []string {
	var dirs []string
	for _, p := range w.patterns {
		base, _ := doublestar.SplitPattern(filepath.ToSlash(filepath.Clean(p)))
		dirs = append(dirs, filepath.FromSlash(base))
	}
	slices.Sort(dirs)
	return slices.Compact(dirs)
}

func (w *treeWatcher) matches(name string) bool {
	name = filepath.Clean(name)
	for _, p := range w.patterns {
		if ok, _ := doublestar.PathMatch(filepath.Clean(p), name); ok {
			return true
		}
	}
	return false
}

// addRecursive watches root and every directory below it.
func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}
