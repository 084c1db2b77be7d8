package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/streamwell/camagent/internal/logger"
)

func writeTempConf(t *testing.T, cnt string) string {
	fpath := filepath.Join(t.TempDir(), "camagent.yml")
	err := os.WriteFile(fpath, []byte(cnt), 0o644)
	require.NoError(t, err)
	return fpath
}

func TestConfFromFile(t *testing.T) {
	fpath := writeTempConf(t, "logLevel: debug\n"+
		"controlApiUrl: http://localhost:9997\n"+
		"deviceRange: [0, 1, 2]\n"+
		"pollInterval: 1s\n"+
		"pathPrefix: cam\n")

	conf, confPath, err := Load(fpath, nil)
	require.NoError(t, err)
	require.Equal(t, fpath, confPath)
	require.Equal(t, LogLevel(logger.Debug), conf.LogLevel)
	require.Equal(t, []int{0, 1, 2}, conf.DeviceRange)
	require.Equal(t, Duration(1*time.Second), conf.PollInterval)
	require.Equal(t, "cam", conf.PathPrefix)

	// unset parameters keep their defaults
	require.Equal(t, 3, conf.FailureThreshold)
	require.Equal(t, Duration(5*time.Second), conf.HealthCheckInterval)
}

func TestConfFromFileNotFound(t *testing.T) {
	_, _, err := Load("/nonexistent/camagent.yml", nil)
	require.Error(t, err)
}

func TestConfOptionalFile(t *testing.T) {
	conf, confPath, err := Load("", []string{"/nonexistent/camagent.yml"})
	require.NoError(t, err)
	require.Equal(t, "", confPath)
	require.Equal(t, "camera", conf.PathPrefix)
	require.Equal(t, Duration(5*time.Second), conf.HealthCheckInterval)
}

func TestConfFromEnvironment(t *testing.T) {
	t.Setenv("CAMAGENT_PATHPREFIX", "webcam")
	t.Setenv("CAMAGENT_DEVICERANGE", "0,5")
	t.Setenv("CAMAGENT_POLLINTERVAL", "2s")
	t.Setenv("CAMAGENT_CAPABILITYDETECTION", "no")
	t.Setenv("CAMAGENT_BACKOFFMULTIPLIER", "3.5")

	conf, _, err := Load("", nil)
	require.NoError(t, err)
	require.Equal(t, "webcam", conf.PathPrefix)
	require.Equal(t, []int{0, 5}, conf.DeviceRange)
	require.Equal(t, Duration(2*time.Second), conf.PollInterval)
	require.Equal(t, false, conf.CapabilityDetection)
	require.Equal(t, 3.5, conf.BackoffMultiplier)
}

func TestConfValidationErrors(t *testing.T) {
	for _, ca := range []struct {
		name string
		cnt  string
	}{
		{
			"empty device range",
			"deviceRange: []\n",
		},
		{
			"negative device index",
			"deviceRange: [-1]\n",
		},
		{
			"bad jitter range",
			"jitterLow: 1.5\njitterHigh: 0.5\n",
		},
		{
			"bad backoff bounds",
			"baseBackoff: 10s\nmaxBackoff: 1s\n",
		},
		{
			"empty path prefix",
			"pathPrefix: \"\"\n",
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			fpath := writeTempConf(t, ca.cnt)
			_, _, err := Load(fpath, nil)
			require.Error(t, err)
		})
	}
}

func TestConfErrorUnknownParameter(t *testing.T) {
	fpath := writeTempConf(t, "invalidParameter: 3\n")
	_, _, err := Load(fpath, nil)
	require.Error(t, err)
}
