package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/streamwell/camagent/internal/mtx"
	"github.com/streamwell/camagent/internal/test"
)

type fakePaths struct {
	ready   bool
	present bool
}

func (p *fakePaths) PathName(deviceID string) string {
	return "camera" + deviceID
}

func (p *fakePaths) GetPathStatus(_ string) (*mtx.PathInfo, bool) {
	if !p.present {
		return nil, false
	}
	return &mtx.PathInfo{Name: "camera0", Ready: p.ready}, true
}

type fakeRunner struct {
	failing map[string]error // input URL / device -> error
	calls   [][]string
}

func (r *fakeRunner) run(_ context.Context, _ string, args ...string) error {
	r.calls = append(r.calls, args)

	input := ""
	for i, a := range args {
		if a == "-i" && i+1 < len(args) {
			input = args[i+1]
		}
	}

	if err, ok := r.failing[input]; ok {
		return err
	}

	// simulate the file written by the capture command.
	target := args[len(args)-1]
	return os.WriteFile(target, []byte("image-data"), 0o644)
}

func newTestEngine(t *testing.T, paths *fakePaths, runner *fakeRunner) *Engine {
	e := &Engine{
		SnapshotPath:  t.TempDir(),
		FFmpegCommand: "ffmpeg",
		Timeout:       1 * time.Second,
		StreamBaseURL: "rtsp://127.0.0.1:8554",
		Paths:         paths,
		Parent:        test.NilLogger,
		RunCommand:    runner.run,
	}
	e.Initialize()
	return e
}

func TestCaptureDirectTier(t *testing.T) {
	runner := &fakeRunner{failing: map[string]error{}}
	e := newTestEngine(t, &fakePaths{present: true, ready: true}, runner)

	res := e.Capture(Request{
		DeviceID:   "0",
		DevicePath: "/dev/video0",
		Filename:   "snap.jpg",
	})

	require.Equal(t, "completed", res.Status)
	require.Equal(t, []string{TierDirect}, res.TiersAttempted)
	require.Equal(t, TierDirect, res.TierUsed)
	require.Equal(t, "instantaneous", res.UserExperience)
	require.NotEmpty(t, res.FileSizeHuman)

	_, err := os.Stat(filepath.Join(e.SnapshotPath, "snap.jpg"))
	require.NoError(t, err)

	// only one command was executed.
	require.Len(t, runner.calls, 1)
}

func TestCaptureFallsBackToStream(t *testing.T) {
	runner := &fakeRunner{failing: map[string]error{
		"/dev/video0": errors.New("device busy"),
	}}
	e := newTestEngine(t, &fakePaths{present: true, ready: true}, runner)

	res := e.Capture(Request{
		DeviceID:   "0",
		DevicePath: "/dev/video0",
		Filename:   "snap.jpg",
	})

	require.Equal(t, "completed", res.Status)
	require.Equal(t, []string{TierDirect, TierStream}, res.TiersAttempted)
	require.Equal(t, TierStream, res.TierUsed)
	require.Equal(t, "fast", res.UserExperience)
}

func TestCaptureSkipsStreamWhenPathNotReady(t *testing.T) {
	runner := &fakeRunner{failing: map[string]error{
		"/dev/video0": errors.New("device busy"),
	}}
	e := newTestEngine(t, &fakePaths{present: false}, runner)

	res := e.Capture(Request{
		DeviceID:   "0",
		DevicePath: "/dev/video0",
		Filename:   "snap.jpg",
	})

	// the stream tier is attempted but fails without running a
	// command; the transcoder fallback is used.
	require.Equal(t, "completed", res.Status)
	require.Equal(t, []string{TierDirect, TierStream, TierTranscode}, res.TiersAttempted)
	require.Equal(t, TierTranscode, res.TierUsed)
	require.Equal(t, "delayed", res.UserExperience)
	require.Len(t, runner.calls, 2)
}

func TestCaptureAllTiersFail(t *testing.T) {
	runner := &fakeRunner{failing: map[string]error{
		"/dev/video0":                   errors.New("device busy"),
		"rtsp://127.0.0.1:8554/camera0": errors.New("connection refused"),
	}}
	e := newTestEngine(t, &fakePaths{present: true, ready: true}, runner)

	res := e.Capture(Request{
		DeviceID:   "0",
		DevicePath: "/dev/video0",
		Filename:   "snap.jpg",
	})

	require.Equal(t, "failed", res.Status)
	require.Equal(t, []string{TierDirect, TierStream, TierTranscode}, res.TiersAttempted)
	require.Empty(t, res.TierUsed)
	require.Equal(t, "connection refused", res.Error)
}

func TestCaptureDefaultFilename(t *testing.T) {
	runner := &fakeRunner{failing: map[string]error{}}
	e := newTestEngine(t, &fakePaths{present: true, ready: true}, runner)

	res := e.Capture(Request{
		DeviceID:   "3",
		DevicePath: "/dev/video3",
	})

	require.Equal(t, "completed", res.Status)
	require.True(t, strings.HasPrefix(res.Filename, "camera3_"))
	require.True(t, strings.HasSuffix(res.Filename, ".jpg"))
}
