package pathman

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/streamwell/camagent/internal/mtx"
	"github.com/streamwell/camagent/internal/test"
)

type fakeServer struct {
	mutex     sync.Mutex
	reachable bool
	paths     map[string]*mtx.PathConf
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		reachable: true,
		paths:     make(map[string]*mtx.PathConf),
	}
}

func (s *fakeServer) ConfigPathsAdd(_ context.Context, name string, conf *mtx.PathConf) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.reachable {
		return fmt.Errorf("%w: connection refused", mtx.ErrServerUnreachable)
	}
	if _, ok := s.paths[name]; ok {
		return mtx.StatusError{Code: http.StatusBadRequest, Message: "path already exists"}
	}
	s.paths[name] = conf
	return nil
}

func (s *fakeServer) ConfigPathsDelete(_ context.Context, name string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.reachable {
		return fmt.Errorf("%w: connection refused", mtx.ErrServerUnreachable)
	}
	if _, ok := s.paths[name]; !ok {
		return mtx.StatusError{Code: http.StatusNotFound, Message: "path not found"}
	}
	delete(s.paths, name)
	return nil
}

func (s *fakeServer) PathsGet(_ context.Context, name string) (*mtx.PathInfo, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.reachable {
		return nil, fmt.Errorf("%w: connection refused", mtx.ErrServerUnreachable)
	}
	if _, ok := s.paths[name]; !ok {
		return nil, mtx.StatusError{Code: http.StatusNotFound, Message: "path not found"}
	}
	return &mtx.PathInfo{Name: name, Ready: true}, nil
}

func (s *fakeServer) PathsList(_ context.Context) (*mtx.PathList, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.reachable {
		return nil, fmt.Errorf("%w: connection refused", mtx.ErrServerUnreachable)
	}
	ret := &mtx.PathList{}
	for name := range s.paths {
		ret.Items = append(ret.Items, mtx.PathInfo{Name: name, Ready: true})
	}
	ret.ItemCount = len(ret.Items)
	return ret, nil
}

type fakeGate struct {
	healthy   bool
	successes int
	failures  int
}

func (g *fakeGate) IsHealthy() bool { return g.healthy }
func (g *fakeGate) RecordSuccess()  { g.successes++ }
func (g *fakeGate) RecordFailure()  { g.failures++ }

func newTestManager(server *fakeServer, gate *fakeGate) *PathManager {
	pm := &PathManager{
		Prefix:         "camera",
		PublishPort:    8554,
		PublishCommand: "ffmpeg -f v4l2 -i $device -f rtsp rtsp://127.0.0.1:$port/$path",
		RequestTimeout: 1 * time.Second,
		Client:         server,
		Gate:           gate,
		Parent:         test.NilLogger,
	}
	pm.Initialize()
	return pm
}

func TestPathRoundTrip(t *testing.T) {
	server := newFakeServer()
	gate := &fakeGate{healthy: true}
	pm := newTestManager(server, gate)

	require.True(t, pm.CreatePath("0", "/dev/video0"))
	require.Contains(t, pm.ListAllPaths(), "camera0")
	require.True(t, pm.VerifyPathExists("0"))

	conf := server.paths["camera0"]
	require.Contains(t, conf.RunOnInit, "/dev/video0")
	require.Contains(t, conf.RunOnInit, "rtsp://127.0.0.1:8554/camera0")
	require.True(t, conf.RunOnInitRestart)

	require.True(t, pm.DeletePath("0"))
	require.NotContains(t, pm.ListAllPaths(), "camera0")
	require.False(t, pm.VerifyPathExists("0"))

	// deleting a non-existent path is not an error.
	require.True(t, pm.DeletePath("0"))
}

func TestCreatePathIsIdempotent(t *testing.T) {
	server := newFakeServer()
	gate := &fakeGate{healthy: true}
	pm := newTestManager(server, gate)

	require.True(t, pm.CreatePath("1", "/dev/video1"))
	require.True(t, pm.CreatePath("1", "/dev/video1"))
	require.Len(t, pm.ListAllPaths(), 1)
	require.Zero(t, gate.failures)
}

func TestCreatePathDegraded(t *testing.T) {
	server := newFakeServer()
	gate := &fakeGate{healthy: false}
	pm := newTestManager(server, gate)

	require.False(t, pm.CreatePath("0", "/dev/video0"))
	require.Empty(t, server.paths)
}

func TestCreatePathUnreachable(t *testing.T) {
	server := newFakeServer()
	server.reachable = false
	gate := &fakeGate{healthy: true}
	pm := newTestManager(server, gate)

	require.False(t, pm.CreatePath("0", "/dev/video0"))
	require.Equal(t, 1, gate.failures)

	require.False(t, pm.DeletePath("0"))
	require.Equal(t, 2, gate.failures)

	require.Empty(t, pm.ListAllPaths())
	require.False(t, pm.VerifyPathExists("0"))
}

func TestPathNameMapping(t *testing.T) {
	pm := newTestManager(newFakeServer(), &fakeGate{healthy: true})

	require.Equal(t, "camera0", pm.PathName("0"))
	require.Equal(t, "camera12", pm.PathName("12"))

	id, ok := pm.DeviceID("camera12")
	require.True(t, ok)
	require.Equal(t, "12", id)

	_, ok = pm.DeviceID("webcam0")
	require.False(t, ok)

	_, ok = pm.DeviceID("cameraX")
	require.False(t, ok)
}
