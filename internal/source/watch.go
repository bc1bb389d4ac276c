package source

import (
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchRawDir watches the raw dump directory and invokes onDump for every
// newly written JSON file, debounced so a dump being streamed to disk
// triggers once. The watcher runs until the returned stop function is
// called.
func WatchRawDir(dir string, onDump func(path string)) (func(), error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer w.Close()
		pending := make(map[string]struct{})
		debounce := time.NewTimer(0)
		if !debounce.Stop() {
			<-debounce.C
		}
		for {
			select {
			case <-done:
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !strings.EqualFold(filepath.Ext(ev.Name), ".json") {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					pending[ev.Name] = struct{}{}
					if !debounce.Stop() {
						select {
						case <-debounce.C:
						default:
						}
					}
					debounce.Reset(250 * time.Millisecond)
				}
			case <-debounce.C:
				for path := range pending {
					onDump(path)
				}
				pending = make(map[string]struct{})
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Error("raw dir watch error", "err", err)
			}
		}
	}()

	return func() { close(done) }, nil
}
