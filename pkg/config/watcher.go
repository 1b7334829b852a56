package config

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the configuration file when it changes on disk and
// delivers the parsed result to a callback. Editors tend to emit several
// write events per save; consumers should treat deliveries as idempotent.
type Watcher struct {
	path    string
	fw      *fsnotify.Watcher
	done    chan struct{}
	onError func(error)
}

// Watch starts watching path and invokes onChange with each successfully
// reloaded configuration. Parse failures are reported through onError and do
// not stop the watcher.
func Watch(path string, onChange func(*Config), onError func(error)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	// Watch the directory, not the file: saves that replace the file
	// (rename+create) would otherwise drop the watch.
	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w := &Watcher{
		path:    path,
		fw:      fw,
		done:    make(chan struct{}),
		onError: onError,
	}

	go w.run(onChange)

	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fw.Close()
}

func (w *Watcher) run(onChange func(*Config)) {
	target := filepath.Clean(w.path)
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				if w.onError != nil {
					w.onError(err)
				}
				continue
			}
			onChange(cfg)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			if w.onError != nil {
				w.onError(err)
			}
		}
	}
}
