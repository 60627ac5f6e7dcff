package library

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/bpepple/clu-comics-sub000/internal/logging"
	"github.com/bpepple/clu-comics-sub000/internal/metrics"
)

// Watch monitors the library roots for changes using fsnotify and feeds
// them into the invalidation hooks. It blocks until ctx is cancelled.
func (l *Library) Watch(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Error("Failed to create file watcher: %v", err)
		metrics.WatcherErrors.Inc()
		return
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			logging.Error("failed to close file watcher: %v", err)
		}
	}()

	watchCount := 0
	for _, root := range l.roots {
		watchCount += l.addDirectoriesToWatcher(watcher, root)
	}
	logging.Debug("Watcher started, watching %d directories", watchCount)

	l.processWatcherEvents(ctx, watcher)
}

// addDirectoriesToWatcher registers root and every non-hidden directory
// under it. fsnotify watches are not recursive.
func (l *Library) addDirectoriesToWatcher(watcher *fsnotify.Watcher, root string) int {
	watchCount := 0
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			logging.Warn("failed to walk %s for watcher: %v", p, err)
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		name := info.Name()
		if p != root && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")) {
			return filepath.SkipDir
		}
		if l.critical(filepath.ToSlash(p)) {
			return filepath.SkipDir
		}
		if addErr := watcher.Add(p); addErr != nil {
			logging.Warn("failed to add path to watcher %s: %v", p, addErr)
			metrics.WatcherErrors.Inc()
		} else {
			watchCount++
		}
		return nil
	})
	if err != nil {
		logging.Error("failed to walk %s for watcher: %v", root, err)
		metrics.WatcherErrors.Inc()
	}
	return watchCount
}

func (l *Library) processWatcherEvents(ctx context.Context, watcher *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			l.handleWatcherEvent(ctx, watcher, event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.Error("Watcher error: %v", err)
			metrics.WatcherErrors.Inc()
		}
	}
}

func (l *Library) handleWatcherEvent(ctx context.Context, watcher *fsnotify.Watcher, event fsnotify.Event) {
	// Skip hidden files and directories anywhere in the path.
	if strings.Contains(event.Name, "/.") || strings.Contains(event.Name, "/_") {
		return
	}

	eventType := eventTypeName(event.Op)
	metrics.WatcherEventsTotal.WithLabelValues(eventType).Inc()

	var err error
	switch {
	case event.Op&fsnotify.Create != 0:
		err = l.OnCreate(ctx, event.Name)
		l.watchNewDirectory(watcher, event.Name)
	case event.Op&fsnotify.Remove != 0, event.Op&fsnotify.Rename != 0:
		// fsnotify reports a rename as Rename on the old path plus Create
		// on the new one, so both collapse to a delete here.
		err = l.OnDelete(ctx, event.Name)
	case event.Op&fsnotify.Write != 0:
		err = l.Invalidate(ctx, event.Name)
	}
	if err != nil {
		logging.Warn("failed to apply %s event for %s: %v", eventType, event.Name, err)
		metrics.WatcherErrors.Inc()
	}
}

func eventTypeName(op fsnotify.Op) string {
	switch {
	case op&fsnotify.Create != 0:
		return "create"
	case op&fsnotify.Write != 0:
		return "write"
	case op&fsnotify.Remove != 0:
		return "remove"
	case op&fsnotify.Rename != 0:
		return "rename"
	case op&fsnotify.Chmod != 0:
		return "chmod"
	default:
		return "unknown"
	}
}

func (l *Library) watchNewDirectory(watcher *fsnotify.Watcher, p string) {
	info, err := os.Stat(p)
	if err != nil || !info.IsDir() {
		return
	}
	if addErr := watcher.Add(p); addErr != nil {
		logging.Warn("failed to add new directory to watcher %s: %v", p, addErr)
		metrics.WatcherErrors.Inc()
	} else {
		logging.Debug("Added new directory to watcher: %s", p)
	}
}
