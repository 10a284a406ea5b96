// Package watch re-runs a callback whenever a schema file changes on disk.
package watch

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/schemaflow/schemaflow/internal/debug"
)

// Editors save in bursts (write, chmod, rename); a single settle window
// collapses them into one callback.
const settleDelay = 500 * time.Millisecond

// Watcher invokes a callback after each settled change to one file.
type Watcher struct {
	path     string
	notifier *fsnotify.Watcher
	callback func() error
	done     chan struct{}
}

// NewWatcher prepares a watcher for the given file. The containing directory
// is watched rather than the file itself: most editors replace the file on
// save, which would silently detach a direct watch.
func NewWatcher(path string, callback func() error) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}

	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if err := notifier.Add(filepath.Dir(abs)); err != nil {
		notifier.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		path:     abs,
		notifier: notifier,
		callback: callback,
		done:     make(chan struct{}),
	}, nil
}

// Start runs the callback once, then keeps re-running it in the background
// after each settled change until Stop is called.
func (w *Watcher) Start() error {
	if err := w.callback(); err != nil {
		return err
	}
	go w.run()
	return nil
}

func (w *Watcher) run() {
	settle := time.NewTimer(settleDelay)
	settle.Stop()
	var pending <-chan time.Time

	for {
		select {
		case event, ok := <-w.notifier.Events:
			if !ok {
				return
			}
			if !w.matches(event) {
				continue
			}
			settle.Reset(settleDelay)
			pending = settle.C

		case <-pending:
			pending = nil
			if err := w.callback(); err != nil {
				debug.Error("watch callback failed", "path", w.path, "error", err)
			}

		case err, ok := <-w.notifier.Errors:
			if !ok {
				return
			}
			debug.Error("watch error", "path", w.path, "error", err)

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) matches(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return false
	}
	abs, err := filepath.Abs(event.Name)
	return err == nil && abs == w.path
}

// Wait blocks until Stop is called.
func (w *Watcher) Wait() {
	<-w.done
}

// Stop ends the watch loop and releases the notifier.
func (w *Watcher) Stop() {
	close(w.done)
	w.notifier.Close()
}
