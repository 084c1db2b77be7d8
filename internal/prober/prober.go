// Package prober runs a device-inspection command against camera
// devices and parses its output into a capability record.
package prober

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/streamwell/camagent/internal/defs"
)

var (
	reDriverName = regexp.MustCompile(`Driver name\s*:\s*(.+)`)
	reCardType   = regexp.MustCompile(`Card type\s*:\s*(.+)`)
	reFormat     = regexp.MustCompile(`\[\d+\]: '([A-Z0-9]+)'`)
	reSize       = regexp.MustCompile(`Size: \w+ (\d+x\d+)`)
	reInterval   = regexp.MustCompile(`\(([\d.]+) fps\)`)
)

// Prober probes camera devices for their capabilities.
type Prober struct {
	Command string
	Timeout time.Duration
}

// Probe inspects the device at the given path.
// It never returns an error: probe failures are reflected
// in the returned capability record.
func (p *Prober) Probe(ctx context.Context, devicePath string) *defs.CameraCapabilities {
	infoOut, err := p.runCommand(ctx, devicePath, "--info")
	if err != nil {
		return &defs.CameraCapabilities{
			Detected:   true,
			Accessible: false,
			Error:      err.Error(),
		}
	}

	formatsOut, err := p.runCommand(ctx, devicePath, "--list-formats-ext")
	if err != nil {
		return &defs.CameraCapabilities{
			Detected:   true,
			Accessible: false,
			Error:      err.Error(),
		}
	}

	caps := parseCapabilities(infoOut, formatsOut)
	return caps
}

func (p *Prober) runCommand(ctx context.Context, devicePath string, arg string) (string, error) {
	parts, err := shellquote.Split(p.Command)
	if err != nil || len(parts) == 0 {
		return "", errors.New("invalid probe command")
	}

	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	args := append(parts[1:], "--device", devicePath, arg)
	cmd := exec.CommandContext(ctx, parts[0], args...)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stdout

	err = cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return "", errors.New("probe timed out after " + p.Timeout.String())
	}
	if err != nil {
		msg := strings.TrimSpace(stdout.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", errors.New("probe failed: " + msg)
	}

	return stdout.String(), nil
}

func appendUnique(list []string, v string) []string {
	for _, item := range list {
		if item == v {
			return list
		}
	}
	return append(list, v)
}

func parseCapabilities(infoOut string, formatsOut string) *defs.CameraCapabilities {
	caps := &defs.CameraCapabilities{
		Detected:   true,
		Accessible: true,
	}

	if m := reDriverName.FindStringSubmatch(infoOut); m != nil {
		caps.DriverName = strings.TrimSpace(m[1])
	}
	if m := reCardType.FindStringSubmatch(infoOut); m != nil {
		caps.CardName = strings.TrimSpace(m[1])
	}

	for _, line := range strings.Split(formatsOut, "\n") {
		if m := reFormat.FindStringSubmatch(line); m != nil {
			caps.Formats = appendUnique(caps.Formats, m[1])
			continue
		}
		if m := reSize.FindStringSubmatch(line); m != nil {
			caps.Resolutions = appendUnique(caps.Resolutions, m[1])
			continue
		}
		if m := reInterval.FindStringSubmatch(line); m != nil {
			caps.FrameRates = appendUnique(caps.FrameRates, m[1])
		}
	}

	return caps
}
