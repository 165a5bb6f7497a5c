package config

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/gengen/zwint"
)

// Watcher re-loads a rule file on every write/create/rename event and
// reports the result to onReload. It runs until Close is called; a
// load error is reported but does not stop the watch (the daemon keeps
// running the last-known-good rule set).
type Watcher struct {
	path     string
	fsw      *fsnotify.Watcher
	onReload func([]zwint.RuleSpec, error)
	logger   *slog.Logger
	done     chan struct{}
}

// NewWatcher starts watching path's parent directory (fsnotify watches
// directories, not individual files, so editors that replace-via-rename
// are still seen) and delivers every subsequent Load(path) result to
// onReload.
func NewWatcher(path string, onReload func([]zwint.RuleSpec, error), logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{path: path, fsw: fsw, onReload: onReload, logger: logger, done: make(chan struct{})}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Name != w.path {
				continue
			}
			if !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)) {
				continue
			}
			specs, err := Load(w.path)
			if err != nil && w.logger != nil {
				w.logger.Warn("rule file reload failed, keeping previous rules", "path", w.path, "error", err)
			}
			w.onReload(specs, err)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Warn("rule file watch error", "error", err)
			}
		}
	}
}

// Close stops the watch.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}

