package prober

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleInfo = `Driver Info:
	Driver name      : uvcvideo
	Card type        : HD Webcam C920
	Bus info         : usb-0000:00:14.0-1
	Driver version   : 6.1.0
`

const sampleFormats = `ioctl: VIDIOC_ENUM_FMT
	Type: Video Capture

	[0]: 'MJPG' (Motion-JPEG, compressed)
		Size: Discrete 1920x1080
			Interval: Discrete 0.033s (30.000 fps)
		Size: Discrete 1280x720
			Interval: Discrete 0.033s (30.000 fps)
			Interval: Discrete 0.017s (60.000 fps)
	[1]: 'YUYV' (YUYV 4:2:2)
		Size: Discrete 1920x1080
			Interval: Discrete 0.200s (5.000 fps)
`

func TestParseCapabilities(t *testing.T) {
	caps := parseCapabilities(sampleInfo, sampleFormats)
	require.True(t, caps.Detected)
	require.True(t, caps.Accessible)
	require.Equal(t, "uvcvideo", caps.DriverName)
	require.Equal(t, "HD Webcam C920", caps.CardName)
	require.Equal(t, []string{"MJPG", "YUYV"}, caps.Formats)
	require.Equal(t, []string{"1920x1080", "1280x720"}, caps.Resolutions)
	require.Equal(t, []string{"30.000", "60.000", "5.000"}, caps.FrameRates)
}

func TestProbeCommandFailure(t *testing.T) {
	p := &Prober{
		Command: "false",
		Timeout: 5 * time.Second,
	}

	caps := p.Probe(context.Background(), "/dev/video0")
	require.True(t, caps.Detected)
	require.False(t, caps.Accessible)
	require.NotEmpty(t, caps.Error)
}

func TestProbeCommandNotFound(t *testing.T) {
	p := &Prober{
		Command: "nonexistent-inspection-tool",
		Timeout: 5 * time.Second,
	}

	caps := p.Probe(context.Background(), "/dev/video0")
	require.False(t, caps.Accessible)
	require.NotEmpty(t, caps.Error)
}

func TestProbeTimeout(t *testing.T) {
	p := &Prober{
		Command: "sh -c 'sleep 2'",
		Timeout: 100 * time.Millisecond,
	}

	start := time.Now()
	caps := p.Probe(context.Background(), "/dev/video0")
	require.Less(t, time.Since(start), 5*time.Second)
	require.False(t, caps.Accessible)
	require.Contains(t, caps.Error, "timed out")
}
