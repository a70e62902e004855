package blacklist

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatcherStopTimeout bounds how long shutdown waits for the watcher
// goroutine to exit, so shutdown never hangs on it.
const WatcherStopTimeout = time.Second

// Watcher observes the directory containing the blacklist files and
// triggers Reload on any "modified" event for either file.
type Watcher struct {
	fsw      *fsnotify.Watcher
	done     chan struct{}
	onReload func(path string, err error)
}

// OnReload registers a callback invoked after every reload attempt
// triggered by a file-change event, with the triggering path and the
// reload error (nil on success). Used to feed the admin audit log.
func (w *Watcher) OnReload(fn func(path string, err error)) {
	w.onReload = fn
}

// StartWatcher begins watching the directory containing the service's
// pattern and forbidden-user files. Reload is called once synchronously
// before the watcher goroutine starts, so callers see an initial state
// immediately.
func StartWatcher(svc *Service) (*Watcher, error) {
	if err := svc.Reload(); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(svc.PatternFile())
	if err := fsw.Add(dir); err != nil {
		slog.Warn("blacklist watcher: could not watch directory", "dir", dir, "err", err)
	}
	if otherDir := filepath.Dir(svc.ForbiddenFile()); otherDir != dir {
		if err := fsw.Add(otherDir); err != nil {
			slog.Warn("blacklist watcher: could not watch directory", "dir", otherDir, "err", err)
		}
	}

	w := &Watcher{fsw: fsw, done: make(chan struct{})}
	go w.run(svc)
	slog.Info("blacklist watcher started", "dir", dir)
	return w, nil
}

func (w *Watcher) run(svc *Service) {
	defer close(w.done)
	patternPath := filepath.Clean(svc.PatternFile())
	forbiddenPath := filepath.Clean(svc.ForbiddenFile())

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			path := filepath.Clean(ev.Name)
			if path != patternPath && path != forbiddenPath {
				continue
			}
			slog.Info("blacklist file changed", "path", path)
			err := svc.Reload()
			if err != nil {
				slog.Error("blacklist reload failed", "err", err)
			}
			if w.onReload != nil {
				w.onReload(path, err)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Error("blacklist watcher error", "err", err)
		}
	}
}

// Stop closes the underlying fsnotify watcher and waits up to
// WatcherStopTimeout for the run goroutine to exit. If it does not exit
// in time, a warning is logged and Stop returns anyway.
func (w *Watcher) Stop() {
	_ = w.fsw.Close()

	ctx, cancel := context.WithTimeout(context.Background(), WatcherStopTimeout)
	defer cancel()

	select {
	case <-w.done:
	case <-ctx.Done():
		slog.Warn("blacklist watcher did not stop within timeout, proceeding")
	}
}
