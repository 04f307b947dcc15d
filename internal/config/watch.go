package config

import (
	"github.com/fsnotify/fsnotify"

	"github.com/PARC/Metis/internal/metislog"
)

// Watcher reloads a config file on change and hands the freshly verified
// struct to a callback, the same select-on-Events/Errors shape as
// filewatch.WatchManager.routine, reduced to a single watched file instead
// of a directory tree of rotating logs.
type Watcher struct {
	path    string
	fw      *fsnotify.Watcher
	log     *metislog.Logger
	onLoad  func(*Config) error
	done    chan struct{}
}

// WatchFile starts watching path for writes/renames. Each change triggers
// a reload: the file is re-parsed and re-verified, and onLoad is called
// with the new Config only if both steps succeed, so a transient partial
// write (a half-completed editor save) never reaches onLoad.
func WatchFile(path string, log *metislog.Logger, onLoad func(*Config) error) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}
	w := &Watcher{path: path, fw: fw, log: log, onLoad: onLoad, done: make(chan struct{})}
	go w.routine()
	return w, nil
}

func (w *Watcher) routine() {
	for {
		select {
		case evt, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			if w.log != nil {
				w.log.Error("config watch error", metislog.KVErr(err))
			}
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) reload() {
	var c Config
	if err := LoadConfigFile(&c, w.path); err != nil {
		if w.log != nil {
			w.log.Error("config reload failed to parse", metislog.KV("path", w.path), metislog.KVErr(err))
		}
		return
	}
	if err := c.Verify(); err != nil {
		if w.log != nil {
			w.log.Error("config reload failed verification", metislog.KV("path", w.path), metislog.KVErr(err))
		}
		return
	}
	if err := w.onLoad(&c); err != nil && w.log != nil {
		w.log.Error("config reload callback failed", metislog.KVErr(err))
	}
}

// Close stops the watch goroutine and releases the underlying inotify fd.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fw.Close()
}
