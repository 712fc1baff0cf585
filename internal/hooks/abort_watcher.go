package hooks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// AbortWatcher watches a run's sentinel directory for the "abort" file
// spec.md §6 describes ("an 'abort' sentinel file requests graceful
// shutdown") and reports on Aborted() the moment it appears — including
// the case where the file was already present before the watch started,
// since an operator may drop the sentinel before Forge gets around to
// polling for it.
type AbortWatcher struct {
	watcher      *fsnotify.Watcher
	sentinelPath string
	aborted      chan struct{}
}

// WatchAbort starts watching sentinelPath's parent directory for the
// sentinel file's creation, creating that directory if it does not exist.
func WatchAbort(sentinelPath string) (*AbortWatcher, error) {
	dir := filepath.Dir(sentinelPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create abort sentinel directory: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("start abort sentinel watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch abort sentinel directory: %w", err)
	}

	aw := &AbortWatcher{watcher: w, sentinelPath: sentinelPath, aborted: make(chan struct{})}

	if _, err := os.Stat(sentinelPath); err == nil {
		close(aw.aborted)
	} else {
		go aw.run()
	}

	return aw, nil
}

func (w *AbortWatcher) run() {
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Name == w.sentinelPath && (ev.Op&(fsnotify.Create|fsnotify.Write) != 0) {
				select {
				case <-w.aborted:
				default:
					close(w.aborted)
				}
				return
			}
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Aborted returns a channel that closes the moment the sentinel file
// appears. Safe to select on from multiple goroutines.
func (w *AbortWatcher) Aborted() <-chan struct{} {
	return w.aborted
}

// Wait blocks until the sentinel appears or ctx is done, returning
// ctx.Err() in the latter case.
func (w *AbortWatcher) Wait(ctx context.Context) error {
	select {
	case <-w.aborted:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the underlying filesystem watch.
func (w *AbortWatcher) Close() error {
	return w.watcher.Close()
}
