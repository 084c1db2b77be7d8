package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggerToFile(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "agent.log")

	l, err := New(Debug, map[Destination]struct{}{
		DestinationFile: {},
	}, filePath)
	require.NoError(t, err)
	defer l.Close()

	l.Log(Info, "test format %d", 123)

	byts, err := os.ReadFile(filePath)
	require.NoError(t, err)
	require.Regexp(t, `^[0-9]{4}/[0-9]{2}/[0-9]{2} [0-9]{2}:[0-9]{2}:[0-9]{2} INF test format 123\n$`, string(byts))
}

func TestLoggerLevelFilter(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "agent.log")

	l, err := New(Warn, map[Destination]struct{}{
		DestinationFile: {},
	}, filePath)
	require.NoError(t, err)
	defer l.Close()

	l.Log(Debug, "hidden")
	l.Log(Info, "hidden too")
	l.Log(Error, "visible")

	byts, err := os.ReadFile(filePath)
	require.NoError(t, err)
	require.Contains(t, string(byts), "ERR visible")
	require.NotContains(t, string(byts), "hidden")
}
