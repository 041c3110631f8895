package config

import (
	"path/filepath"
	"time"

	"LinkFM/logger"

	"github.com/fsnotify/fsnotify"
)

// WatchNodes watches the node pool file and calls onChange with the freshly
// parsed pool whenever it is rewritten. Editors commonly replace the file
// rather than writing in place, so the parent directory is watched and events
// are matched by name. Returns a stop function.
func WatchNodes(path string, onChange func([]NodeConfig)) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		var last time.Time
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				name, _ := filepath.Abs(event.Name)
				if name != abs {
					continue
				}
				// Debounce bursts of events for a single save.
				if time.Since(last) < 500*time.Millisecond {
					continue
				}
				last = time.Now()

				nodes, err := LoadNodes(abs)
				if err != nil {
					logger.Warn("node pool file changed but could not be reloaded",
						logger.String("path", abs), logger.ErrorField(err))
					continue
				}
				logger.Info("node pool file reloaded",
					logger.String("path", abs), logger.Int("nodes", len(nodes)))
				onChange(nodes)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("node pool watcher error", logger.ErrorField(err))
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}
