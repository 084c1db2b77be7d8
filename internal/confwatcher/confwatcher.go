// Package confwatcher contains a configuration file watcher.
package confwatcher

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	minInterval = 1 * time.Second
)

// ConfWatcher is a configuration file watcher.
type ConfWatcher struct {
	FilePath string

	inner        *fsnotify.Watcher
	watchedPath  string
	lastReceived time.Time

	// out
	signal chan struct{}
	done   chan struct{}
}

// Initialize initializes a ConfWatcher.
func (w *ConfWatcher) Initialize() error {
	var err error
	w.inner, err = fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// use absolute paths to support editors
	// that rename the file before writing it.
	w.watchedPath, err = filepath.Abs(w.FilePath)
	if err != nil {
		w.inner.Close()
		return err
	}

	err = w.inner.Add(filepath.Dir(w.watchedPath))
	if err != nil {
		w.inner.Close()
		return err
	}

	w.signal = make(chan struct{})
	w.done = make(chan struct{})

	go w.run()

	return nil
}

// Close closes a ConfWatcher.
func (w *ConfWatcher) Close() {
	go func() {
		for range w.signal {
		}
	}()
	w.inner.Close()
	<-w.done
}

func (w *ConfWatcher) run() {
	defer close(w.done)

outer:
	for {
		select {
		case event, ok := <-w.inner.Events:
			if !ok {
				break outer
			}

			if (event.Op&fsnotify.Write) != fsnotify.Write &&
				(event.Op&fsnotify.Create) != fsnotify.Create {
				continue
			}

			eventPath, err := filepath.Abs(event.Name)
			if err != nil || eventPath != w.watchedPath {
				continue
			}

			// throttle bursts of events generated by a single save
			now := time.Now()
			if now.Sub(w.lastReceived) < minInterval {
				continue
			}
			w.lastReceived = now

			// wait some additional time to allow the writer to finish
			time.Sleep(10 * time.Millisecond)

			if _, err := os.Stat(w.watchedPath); err == nil {
				w.signal <- struct{}{}
			}

		case _, ok := <-w.inner.Errors:
			if !ok {
				break outer
			}
		}
	}

	close(w.signal)
}

// Watch returns a channel that is signaled when the configuration file has changed.
func (w *ConfWatcher) Watch() chan struct{} {
	return w.signal
}
