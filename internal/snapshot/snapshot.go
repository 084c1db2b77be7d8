// Package snapshot obtains still images from camera devices, using
// the fastest available method and falling back in a fixed priority
// order.
package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"github.com/kballard/go-shellquote"

	"github.com/streamwell/camagent/internal/defs"
	"github.com/streamwell/camagent/internal/logger"
	"github.com/streamwell/camagent/internal/mtx"
)

// capture tiers, in fixed priority order.
const (
	// TierDirect captures straight from the local device.
	TierDirect = "direct"

	// TierStream captures from the already-publishing media path.
	TierStream = "stream"

	// TierTranscode is a generic transcoder-based fallback.
	TierTranscode = "transcode"
)

const (
	defaultQuality = 2
)

type pathStatusGetter interface {
	PathName(deviceID string) string
	GetPathStatus(deviceID string) (*mtx.PathInfo, bool)
}

type engineParent interface {
	logger.Writer
}

// Request is a snapshot request.
type Request struct {
	DeviceID   string
	DevicePath string
	Filename   string
	Format     string
	Quality    int
}

// Engine captures snapshots with a tiered fallback strategy.
type Engine struct {
	SnapshotPath  string
	FFmpegCommand string
	Timeout       time.Duration
	StreamBaseURL string
	Paths         pathStatusGetter
	Parent        engineParent

	// test hook
	RunCommand func(ctx context.Context, name string, args ...string) error
}

// Initialize initializes an Engine.
func (e *Engine) Initialize() {
	if e.RunCommand == nil {
		e.RunCommand = runCommand
	}
}

// Capture obtains a still image for a device. Tiers are attempted
// strictly in order; the first success halts further tiers. No tier
// is retried within a single request.
func (e *Engine) Capture(req Request) *defs.APISnapshotRes {
	if req.Format == "" {
		req.Format = "jpg"
	}
	if req.Quality <= 0 {
		req.Quality = defaultQuality
	}
	if req.Filename == "" {
		req.Filename = fmt.Sprintf("%s_%s.%s",
			e.Paths.PathName(req.DeviceID), time.Now().Format("2006-01-02_15-04-05"), req.Format)
	}

	target := filepath.Join(e.SnapshotPath, req.Filename)

	res := &defs.APISnapshotRes{
		Filename: req.Filename,
	}

	var lastErr error
	for _, tier := range []string{TierDirect, TierStream, TierTranscode} {
		res.TiersAttempted = append(res.TiersAttempted, tier)

		err := e.captureTier(tier, req, target)
		if err != nil {
			e.Log(logger.Debug, "tier %s failed for device %s: %v", tier, req.DeviceID, err)
			lastErr = err
			continue
		}

		res.Status = "completed"
		res.TierUsed = tier
		res.CaptureMethod = e.methodLabel(tier)
		res.UserExperience = experienceLabel(tier)

		if info, err2 := os.Stat(target); err2 == nil {
			res.FileSizeHuman = bytefmt.ByteSize(uint64(info.Size()))
		}

		e.Log(logger.Info, "snapshot of device %s captured via tier %s (%s)",
			req.DeviceID, tier, res.Filename)
		return res
	}

	res.Status = "failed"
	res.Error = lastErr.Error()
	e.Log(logger.Warn, "snapshot of device %s failed on all tiers: %v", req.DeviceID, lastErr)
	return res
}

// Log implements logger.Writer.
func (e *Engine) Log(level logger.Level, format string, args ...interface{}) {
	e.Parent.Log(level, "[snapshot] "+format, args...)
}

func (e *Engine) captureTier(tier string, req Request, target string) error {
	switch tier {
	case TierDirect:
		return e.runFFmpeg(
			"-y",
			"-f", "v4l2",
			"-i", req.DevicePath,
			"-frames:v", "1",
			"-q:v", fmt.Sprintf("%d", req.Quality),
			target,
		)

	case TierStream:
		info, ok := e.Paths.GetPathStatus(req.DeviceID)
		if !ok {
			return errors.New("media path is not available")
		}
		if !info.Ready {
			return errors.New("media path is not ready")
		}

		return e.runFFmpeg(
			"-y",
			"-i", e.streamURL(req.DeviceID),
			"-frames:v", "1",
			"-q:v", fmt.Sprintf("%d", req.Quality),
			target,
		)

	case TierTranscode:
		// most tolerant variant: force the input format, re-scale
		// and accept a delayed first frame.
		return e.runFFmpeg(
			"-y",
			"-rtsp_transport", "tcp",
			"-i", e.streamURL(req.DeviceID),
			"-vf", "scale=-1:720",
			"-frames:v", "1",
			target,
		)

	default:
		return fmt.Errorf("unknown tier: %s", tier)
	}
}

func (e *Engine) methodLabel(tier string) string {
	switch tier {
	case TierDirect:
		return "v4l2 direct capture"
	case TierStream:
		return "stream readback"
	default:
		return "transcoder fallback"
	}
}

func experienceLabel(tier string) string {
	switch tier {
	case TierDirect:
		return "instantaneous"
	case TierStream:
		return "fast"
	default:
		return "delayed"
	}
}

func (e *Engine) streamURL(deviceID string) string {
	return strings.TrimSuffix(e.StreamBaseURL, "/") + "/" + e.Paths.PathName(deviceID)
}

func (e *Engine) runFFmpeg(args ...string) error {
	parts, err := shellquote.Split(e.FFmpegCommand)
	if err != nil || len(parts) == 0 {
		return errors.New("invalid ffmpeg command")
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.Timeout)
	defer cancel()

	return e.RunCommand(ctx, parts[0], append(parts[1:], args...)...)
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return errors.New("capture timed out")
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return err
		}
		// keep the last line only, ffmpeg is verbose.
		lines := strings.Split(msg, "\n")
		return errors.New(lines[len(lines)-1])
	}

	return nil
}
