package discovery

import (
	"os"
	"time"
)

// pollSource periodically checks for the existence of the configured
// device paths, acting either as the only discovery backend or as a
// safety net for notifications missed by the event-driven one.
type pollSource struct {
	paths    []string
	interval time.Duration
	chRaw    chan rawEvent

	present map[string]bool

	terminate chan struct{}
	done      chan struct{}
}

func (s *pollSource) initialize() error {
	s.present = make(map[string]bool, len(s.paths))
	s.terminate = make(chan struct{})
	s.done = make(chan struct{})

	go s.run()

	return nil
}

func (s *pollSource) close() {
	close(s.terminate)
	<-s.done
}

func (s *pollSource) run() {
	defer close(s.done)

	// initial scan, so that devices that are already plugged in
	// are reported without waiting a full interval.
	if !s.scan() {
		return
	}

	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			if !s.scan() {
				return
			}

		case <-s.terminate:
			return
		}
	}
}

func (s *pollSource) scan() bool {
	for _, path := range s.paths {
		_, err := os.Stat(path)
		present := (err == nil)

		if present == s.present[path] {
			continue
		}
		s.present[path] = present

		var ev rawEvent
		if present {
			ev = rawEvent{kind: rawAdd, path: path}
		} else {
			ev = rawEvent{kind: rawRemove, path: path}
		}

		select {
		case s.chRaw <- ev:
		case <-s.terminate:
			return false
		}
	}
	return true
}
