// Package policywatch notifies an operator when the on-disk policy
// document changes underneath a running process. Policy is loaded once
// at startup and never mutated in place — policy_hash is defined over
// the bytes read at that moment — so this watcher does not
// hot-reload anything. It only logs, loudly, that the file the process
// is still enforcing no longer matches what is on disk, since a
// restart is the only correct way to pick up the change.
package policywatch

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors the directory containing the policy file for writes
// and logs a warning naming the drift. Call Close to stop it.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	done      chan struct{}
}

// New starts watching the directory containing policyPath. It reacts
// only to the named policy file, ignoring unrelated files fsnotify
// reports for the same directory.
func New(policyPath string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(policyPath)
	name := filepath.Base(policyPath)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("policywatch: creating watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("policywatch: watching %s: %w", dir, err)
	}

	w := &Watcher{fsWatcher: fw, done: make(chan struct{})}
	go w.run(name, policyPath, logger)
	return w, nil
}

func (w *Watcher) run(name, policyPath string, logger *slog.Logger) {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			logger.Warn("policy file changed on disk; running process still enforces the policy loaded at startup, restart to pick up the new policy_hash", "path", policyPath)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			logger.Error("policywatch: watcher error", "error", err)

		case <-w.done:
			return
		}
	}
}

// Close stops the watcher goroutine. Safe to call multiple times.
func (w *Watcher) Close() error {
	select {
	case <-w.done:
		return nil
	default:
		close(w.done)
	}
	return w.fsWatcher.Close()
}
