// Package pathman manages the lifecycle of media paths on the
// external streaming server.
package pathman

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/streamwell/camagent/internal/logger"
	"github.com/streamwell/camagent/internal/mtx"
)

type apiClient interface {
	ConfigPathsAdd(ctx context.Context, name string, conf *mtx.PathConf) error
	ConfigPathsDelete(ctx context.Context, name string) error
	PathsGet(ctx context.Context, name string) (*mtx.PathInfo, error)
	PathsList(ctx context.Context) (*mtx.PathList, error)
}

type healthGate interface {
	IsHealthy() bool
	RecordSuccess()
	RecordFailure()
}

type pathManagerParent interface {
	logger.Writer
}

// PathManager performs idempotent creation and deletion of named media
// paths on the external streaming server, each backed by a publish
// command referencing the source device.
type PathManager struct {
	Prefix         string
	PublishPort    int
	PublishCommand string
	RequestTimeout time.Duration
	Client         apiClient
	Gate           healthGate
	Parent         pathManagerParent

	mutex   sync.Mutex
	managed map[string]string // path name -> device path
}

// Initialize initializes a PathManager.
func (pm *PathManager) Initialize() {
	pm.managed = make(map[string]string)
}

// PathName derives the path name of a device identifier.
// The mapping is stable and reversible.
func (pm *PathManager) PathName(deviceID string) string {
	return pm.Prefix + deviceID
}

// DeviceID is the inverse of PathName.
func (pm *PathManager) DeviceID(pathName string) (string, bool) {
	if !strings.HasPrefix(pathName, pm.Prefix) {
		return "", false
	}
	id := pathName[len(pm.Prefix):]
	if _, err := strconv.Atoi(id); err != nil {
		return "", false
	}
	return id, true
}

// CreatePath creates a media path backed by the given device.
// Failures are reported through the return value, never raised:
// the owning service keeps running even when the server is down.
func (pm *PathManager) CreatePath(deviceID string, devicePath string) bool {
	name := pm.PathName(deviceID)

	if !pm.Gate.IsHealthy() {
		pm.Log(logger.Warn, "not creating path %s: streaming server is degraded", name)
		return false
	}

	pathConf := &mtx.PathConf{
		RunOnInit:        pm.expandPublishCommand(name, devicePath),
		RunOnInitRestart: true,
	}

	ctx, cancel := pm.requestContext()
	defer cancel()

	err := pm.Client.ConfigPathsAdd(ctx, name, pathConf)
	if err != nil {
		var se mtx.StatusError
		if errors.As(err, &se) && se.Code == http.StatusBadRequest &&
			strings.Contains(se.Message, "already exists") {
			// the path is already provisioned.
			pm.Gate.RecordSuccess()
			pm.remember(name, devicePath)
			return true
		}

		pm.Log(logger.Error, "can't create path %s: %v", name, err)
		pm.Gate.RecordFailure()
		return false
	}

	pm.Gate.RecordSuccess()
	pm.remember(name, devicePath)
	pm.Log(logger.Info, "created path %s for device %s", name, devicePath)
	return true
}

// DeletePath deletes the media path of the given device.
// Deleting a non-existent path is treated as success.
func (pm *PathManager) DeletePath(deviceID string) bool {
	name := pm.PathName(deviceID)

	if !pm.Gate.IsHealthy() {
		pm.Log(logger.Warn, "not deleting path %s: streaming server is degraded", name)
		return false
	}

	ctx, cancel := pm.requestContext()
	defer cancel()

	err := pm.Client.ConfigPathsDelete(ctx, name)
	if err != nil && !mtx.IsNotFound(err) {
		pm.Log(logger.Error, "can't delete path %s: %v", name, err)
		pm.Gate.RecordFailure()
		return false
	}

	pm.Gate.RecordSuccess()
	pm.forget(name)
	pm.Log(logger.Info, "deleted path %s", name)
	return true
}

// VerifyPathExists returns whether the path of the given device
// exists on the server. On failure it returns false rather than
// raising.
func (pm *PathManager) VerifyPathExists(deviceID string) bool {
	_, ok := pm.GetPathStatus(deviceID)
	return ok
}

// GetPathStatus returns the runtime state of the path of the given
// device. On failure it returns an absent result.
func (pm *PathManager) GetPathStatus(deviceID string) (*mtx.PathInfo, bool) {
	ctx, cancel := pm.requestContext()
	defer cancel()

	info, err := pm.Client.PathsGet(ctx, pm.PathName(deviceID))
	if err != nil {
		return nil, false
	}
	return info, true
}

// ListAllPaths returns the names of all runtime paths on the server.
// On failure it returns an empty list.
func (pm *PathManager) ListAllPaths() []string {
	ctx, cancel := pm.requestContext()
	defer cancel()

	list, err := pm.Client.PathsList(ctx)
	if err != nil {
		pm.Log(logger.Warn, "can't list paths: %v", err)
		return nil
	}

	ret := make([]string, len(list.Items))
	for i, item := range list.Items {
		ret[i] = item.Name
	}
	return ret
}

// ManagedPaths returns the currently managed path names and their
// backing devices.
func (pm *PathManager) ManagedPaths() map[string]string {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()

	ret := make(map[string]string, len(pm.managed))
	for k, v := range pm.managed {
		ret[k] = v
	}
	return ret
}

// Log implements logger.Writer.
func (pm *PathManager) Log(level logger.Level, format string, args ...interface{}) {
	pm.Parent.Log(level, "[pathman] "+format, args...)
}

func (pm *PathManager) expandPublishCommand(name string, devicePath string) string {
	cmd := pm.PublishCommand
	cmd = strings.ReplaceAll(cmd, "$device", devicePath)
	cmd = strings.ReplaceAll(cmd, "$port", strconv.Itoa(pm.PublishPort))
	cmd = strings.ReplaceAll(cmd, "$path", name)
	return cmd
}

func (pm *PathManager) requestContext() (context.Context, func()) {
	return context.WithTimeout(context.Background(), pm.RequestTimeout)
}

func (pm *PathManager) remember(name string, devicePath string) {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()
	pm.managed[name] = devicePath
}

func (pm *PathManager) forget(name string) {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()
	delete(pm.managed, name)
}
