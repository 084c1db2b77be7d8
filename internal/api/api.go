// Package api contains the operator API server.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"

	"github.com/streamwell/camagent/internal/defs"
	"github.com/streamwell/camagent/internal/httpserv"
	"github.com/streamwell/camagent/internal/logger"
	"github.com/streamwell/camagent/internal/recorder"
	"github.com/streamwell/camagent/internal/snapshot"
)

type apiDiscovery interface {
	GetConnectedCameras() []defs.CameraDevice
}

type apiHealth interface {
	Status() defs.APIHealth
}

type apiPathManager interface {
	ListAllPaths() []string
	ManagedPaths() map[string]string
}

type apiRecorder interface {
	StartRecording(streamName string, durationHint time.Duration, format string) (*defs.APIRecordingSession, error)
	StopRecording(streamName string) (*defs.APIStopRecordingRes, error)
	ListSessions() []defs.APIRecordingSession
}

type apiSnapshots interface {
	Capture(req snapshot.Request) *defs.APISnapshotRes
}

type apiParent interface {
	logger.Writer
}

// API is the operator API server.
type API struct {
	Address     string
	ReadTimeout time.Duration
	PPROF       bool
	Discovery   apiDiscovery
	Health      apiHealth
	PathManager apiPathManager
	Recorder    apiRecorder
	Snapshots   apiSnapshots
	Events      *EventHub
	Parent      apiParent

	httpServer *httpserv.WrappedServer
}

// Initialize initializes the API.
func (a *API) Initialize() error {
	router := a.setupRouter()

	a.httpServer = &httpserv.WrappedServer{
		Network:     "tcp",
		Address:     a.Address,
		ReadTimeout: a.ReadTimeout,
		Handler:     router,
	}
	err := a.httpServer.Initialize()
	if err != nil {
		return err
	}

	a.Log(logger.Info, "listener opened on %s", a.Address)

	return nil
}

// Close closes the API.
func (a *API) Close() {
	a.Log(logger.Info, "listener is closing")
	a.httpServer.Close()
}

// Log implements logger.Writer.
func (a *API) Log(level logger.Level, format string, args ...interface{}) {
	a.Parent.Log(level, "[API] "+format, args...)
}

func (a *API) setupRouter() *gin.Engine {
	router := gin.New()

	group := router.Group("/v1")

	group.GET("/health", a.onHealth)

	group.GET("/cameras/list", a.onCamerasList)
	group.GET("/cameras/get/:id", a.onCamerasGet)

	group.GET("/paths/list", a.onPathsList)

	group.POST("/recordings/start", a.onRecordingsStart)
	group.POST("/recordings/stop", a.onRecordingsStop)
	group.GET("/recordings/list", a.onRecordingsList)

	group.POST("/snapshot", a.onSnapshot)

	group.GET("/events/ws", a.onEventsWS)

	if a.PPROF {
		pprof.Register(router)
	}

	return router
}

func (a *API) writeError(ctx *gin.Context, status int, err error) {
	a.Log(logger.Error, err.Error())

	ctx.JSON(status, &defs.APIError{
		Status: "error",
		Error:  err.Error(),
	})
}

func (a *API) onHealth(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, a.Health.Status())
}

func (a *API) onCamerasList(ctx *gin.Context) {
	cameras := a.Discovery.GetConnectedCameras()
	ctx.JSON(http.StatusOK, &defs.APICameraList{
		ItemCount: len(cameras),
		Items:     cameras,
	})
}

func (a *API) onCamerasGet(ctx *gin.Context) {
	id := ctx.Param("id")

	for _, cam := range a.Discovery.GetConnectedCameras() {
		if strings.HasSuffix(cam.Path, "video"+id) {
			ctx.JSON(http.StatusOK, cam)
			return
		}
	}

	ctx.JSON(http.StatusNotFound, &defs.APIError{
		Status: "error",
		Error:  "camera not found",
	})
}

func (a *API) onPathsList(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"items":   a.PathManager.ListAllPaths(),
		"managed": a.PathManager.ManagedPaths(),
	})
}

func (a *API) onRecordingsStart(ctx *gin.Context) {
	var req struct {
		Stream   string  `json:"stream"`
		Duration float64 `json:"duration"`
		Format   string  `json:"format"`
	}
	err := ctx.ShouldBindJSON(&req)
	if err != nil || req.Stream == "" {
		ctx.JSON(http.StatusBadRequest, &defs.APIError{
			Status: "error",
			Error:  "invalid request body",
		})
		return
	}

	sess, err := a.Recorder.StartRecording(req.Stream,
		time.Duration(req.Duration*float64(time.Second)), req.Format)
	if err != nil {
		a.writeError(ctx, recordingErrorStatus(err), err)
		return
	}

	ctx.JSON(http.StatusOK, sess)
}

func (a *API) onRecordingsStop(ctx *gin.Context) {
	var req struct {
		Stream string `json:"stream"`
	}
	err := ctx.ShouldBindJSON(&req)
	if err != nil || req.Stream == "" {
		ctx.JSON(http.StatusBadRequest, &defs.APIError{
			Status: "error",
			Error:  "invalid request body",
		})
		return
	}

	res, err := a.Recorder.StopRecording(req.Stream)
	if err != nil {
		a.writeError(ctx, recordingErrorStatus(err), err)
		return
	}

	ctx.JSON(http.StatusOK, res)
}

func (a *API) onRecordingsList(ctx *gin.Context) {
	sessions := a.Recorder.ListSessions()
	ctx.JSON(http.StatusOK, &defs.APIRecordingSessionList{
		ItemCount: len(sessions),
		Items:     sessions,
	})
}

func (a *API) onSnapshot(ctx *gin.Context) {
	var req struct {
		Device   string `json:"device"`
		Filename string `json:"filename"`
		Format   string `json:"format"`
		Quality  int    `json:"quality"`
	}
	err := ctx.ShouldBindJSON(&req)
	if err != nil || req.Device == "" {
		ctx.JSON(http.StatusBadRequest, &defs.APIError{
			Status: "error",
			Error:  "invalid request body",
		})
		return
	}

	// resolve the device path of connected cameras, so that the
	// direct capture tier can be used when possible.
	devicePath := ""
	for _, cam := range a.Discovery.GetConnectedCameras() {
		if strings.HasSuffix(cam.Path, "video"+req.Device) {
			devicePath = cam.Path
			break
		}
	}

	res := a.Snapshots.Capture(snapshot.Request{
		DeviceID:   req.Device,
		DevicePath: devicePath,
		Filename:   req.Filename,
		Format:     req.Format,
		Quality:    req.Quality,
	})

	status := http.StatusOK
	if res.Status == "failed" {
		status = http.StatusBadGateway
	}
	ctx.JSON(status, res)
}

// recordingErrorStatus distinguishes "my request was invalid",
// "session-state misuse" and "the remote operation failed".
func recordingErrorStatus(err error) int {
	switch {
	case err == recorder.ErrInvalidFormat:
		return http.StatusBadRequest
	case err == recorder.ErrAlreadyActive:
		return http.StatusConflict
	case err == recorder.ErrNoSession:
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}
