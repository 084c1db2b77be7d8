package discovery

import (
	"github.com/fsnotify/fsnotify"
)

// eventSource translates filesystem notifications of the device
// directory into raw add / remove occurrences.
type eventSource struct {
	devDir string
	chRaw  chan rawEvent

	inner *fsnotify.Watcher

	done chan struct{}
}

func (s *eventSource) initialize() error {
	var err error
	s.inner, err = fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	err = s.inner.Add(s.devDir)
	if err != nil {
		s.inner.Close()
		return err
	}

	s.done = make(chan struct{})

	go s.run()

	return nil
}

func (s *eventSource) close() {
	s.inner.Close()
	<-s.done
}

func (s *eventSource) run() {
	defer close(s.done)

	for {
		select {
		case event, ok := <-s.inner.Events:
			if !ok {
				return
			}

			switch {
			case (event.Op & fsnotify.Create) == fsnotify.Create:
				s.chRaw <- rawEvent{kind: rawAdd, path: event.Name}

			case (event.Op&fsnotify.Remove) == fsnotify.Remove ||
				(event.Op&fsnotify.Rename) == fsnotify.Rename:
				s.chRaw <- rawEvent{kind: rawRemove, path: event.Name}
			}

		case _, ok := <-s.inner.Errors:
			if !ok {
				return
			}
		}
	}
}
