package externalcmd

import (
	"errors"
	"os"
	"strings"
	"time"
)

const (
	restartPause = 5 * time.Second
)

var errTerminated = errors.New("terminated")

// Environment is a Cmd environment.
type Environment map[string]string

// Cmd is an external command, executed with a given environment and
// optionally restarted when it exits.
type Cmd struct {
	pool    *Pool
	cmdstr  string
	restart bool
	env     Environment
	onExit  func(error)

	// in
	terminate chan struct{}
}

// NewCmd allocates a Cmd.
func NewCmd(
	pool *Pool,
	cmdstr string,
	restart bool,
	env Environment,
	onExit func(error),
) *Cmd {
	// replace variables in the command string itself, to allow
	// referencing them on every platform in the same way.
	for key, val := range env {
		cmdstr = strings.ReplaceAll(cmdstr, "$"+key, val)
	}

	e := &Cmd{
		pool:      pool,
		cmdstr:    cmdstr,
		restart:   restart,
		env:       env,
		onExit:    onExit,
		terminate: make(chan struct{}),
	}

	pool.wg.Add(1)

	go e.run()

	return e
}

// Close closes the command. It doesn't wait for the command to exit.
func (e *Cmd) Close() {
	close(e.terminate)
}

func (e *Cmd) run() {
	defer e.pool.wg.Done()

	for {
		ok := e.runInner()
		if !ok {
			return
		}
	}
}

func (e *Cmd) runInner() bool {
	env := append([]string(nil), os.Environ()...)
	for key, val := range e.env {
		env = append(env, key+"="+val)
	}

	err := e.runOSSpecific(env)
	if errors.Is(err, errTerminated) {
		return false
	}

	if e.onExit != nil {
		e.onExit(err)
	}

	if !e.restart {
		<-e.terminate
		return false
	}

	select {
	case <-time.After(restartPause):
		return true
	case <-e.terminate:
		return false
	}
}
