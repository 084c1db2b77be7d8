//go:build !windows

package externalcmd

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func (e *Cmd) runOSSpecific(env []string) error {
	cmd := exec.Command("/bin/sh", "-c", "exec "+e.cmdstr)
	cmd.Env = env
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	// put the command in its own process group, so that
	// subprocesses can be terminated together with it.
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	err := cmd.Start()
	if err != nil {
		return err
	}

	cmdDone := make(chan error)
	go func() {
		cmdDone <- cmd.Wait()
	}()

	select {
	case <-e.terminate:
		unix.Kill(-cmd.Process.Pid, unix.SIGINT) //nolint:errcheck
		<-cmdDone
		return errTerminated

	case err := <-cmdDone:
		if err != nil {
			var ee *exec.ExitError
			if errors.As(err, &ee) {
				return fmt.Errorf("command exited with code %d", ee.ExitCode())
			}
			return err
		}
		return nil
	}
}
