// Package discovery contains the camera discovery engine.
package discovery

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/streamwell/camagent/internal/defs"
	"github.com/streamwell/camagent/internal/logger"
)

const (
	defaultDevDir     = "/dev"
	debounceWindow    = 300 * time.Millisecond
	stopGraceTimeout  = 2 * time.Second
	eventChannelDepth = 64
)

type rawEventKind int

const (
	rawAdd rawEventKind = iota
	rawRemove
)

type rawEvent struct {
	kind rawEventKind
	path string
}

// source is a backend that produces raw device add / remove occurrences.
type source interface {
	initialize() error
	close()
}

type capabilityProber interface {
	Probe(ctx context.Context, devicePath string) *defs.CameraCapabilities
}

type engineParent interface {
	logger.Writer
}

// Engine maintains the authoritative, deduplicated view of which
// configured camera devices are currently connected, and notifies
// a consumer of transitions.
type Engine struct {
	DeviceRange         []int
	DevDir              string
	PollInterval        time.Duration
	CapabilityDetection bool
	Prober              capabilityProber
	Parent              engineParent

	ctx       context.Context
	ctxCancel func()
	allowed   map[string]struct{}
	sources   []source

	mutex   sync.Mutex
	devices map[string]defs.CameraDevice
	running bool

	pending map[string]*time.Timer

	// in
	chRaw           chan rawEvent
	chConfirmRemove chan string
	terminate       chan struct{}

	// out
	chEvents chan defs.CameraEvent
	done     chan struct{}
}

// Start starts the Engine.
func (e *Engine) Start() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.running {
		return fmt.Errorf("discovery engine is already running")
	}

	if len(e.DeviceRange) == 0 {
		return fmt.Errorf("no device indices configured")
	}

	if e.DevDir == "" {
		e.DevDir = defaultDevDir
	}

	e.allowed = make(map[string]struct{})
	for _, id := range e.DeviceRange {
		e.allowed[devicePath(e.DevDir, id)] = struct{}{}
	}

	e.ctx, e.ctxCancel = context.WithCancel(context.Background())
	e.devices = make(map[string]defs.CameraDevice)
	e.pending = make(map[string]*time.Timer)
	e.chRaw = make(chan rawEvent, eventChannelDepth)
	e.chConfirmRemove = make(chan string, eventChannelDepth)
	e.terminate = make(chan struct{})
	e.chEvents = make(chan defs.CameraEvent, eventChannelDepth)
	e.done = make(chan struct{})

	// the event-driven backend is optional; polling acts either as
	// a safety net behind it or as the only backend.
	ev := &eventSource{
		devDir: e.DevDir,
		chRaw:  e.chRaw,
	}
	err := ev.initialize()
	if err != nil {
		e.Log(logger.Warn, "event-driven backend unavailable (%v), using polling only", err)
	} else {
		e.sources = append(e.sources, ev)
	}

	po := &pollSource{
		paths:    sortedPaths(e.allowed),
		interval: e.PollInterval,
		chRaw:    e.chRaw,
	}
	err = po.initialize()
	if err != nil {
		for _, s := range e.sources {
			s.close()
		}
		e.sources = nil
		return fmt.Errorf("no discovery backend could be initialized: %w", err)
	}
	e.sources = append(e.sources, po)

	e.running = true
	go e.run()

	e.Log(logger.Info, "started (backends: %d, devices: %v)", len(e.sources), e.DeviceRange)

	return nil
}

// Stop stops the Engine. It is idempotent.
func (e *Engine) Stop() {
	e.mutex.Lock()
	if !e.running {
		e.mutex.Unlock()
		return
	}
	e.running = false
	e.mutex.Unlock()

	for _, s := range e.sources {
		s.close()
	}
	e.sources = nil

	close(e.terminate)

	select {
	case <-e.done:
	case <-time.After(stopGraceTimeout):
		// force-cancel in-flight probes.
		e.ctxCancel()
		<-e.done
	}

	e.ctxCancel()
	e.Log(logger.Info, "stopped")
}

// Events returns the channel on which camera events are delivered.
func (e *Engine) Events() <-chan defs.CameraEvent {
	return e.chEvents
}

// GetConnectedCameras returns a snapshot of the known-connected devices.
func (e *Engine) GetConnectedCameras() []defs.CameraDevice {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	ret := make([]defs.CameraDevice, 0, len(e.devices))
	for _, d := range e.devices {
		ret = append(ret, d)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Path < ret[j].Path })
	return ret
}

// Log implements logger.Writer.
func (e *Engine) Log(level logger.Level, format string, args ...interface{}) {
	e.Parent.Log(level, "[discovery] "+format, args...)
}

func (e *Engine) run() {
	defer close(e.done)

	for {
		select {
		case raw := <-e.chRaw:
			if _, ok := e.allowed[raw.path]; !ok {
				continue
			}

			switch raw.kind {
			case rawAdd:
				e.handleAdd(raw.path)
			case rawRemove:
				e.handleRemove(raw.path)
			}

		case path := <-e.chConfirmRemove:
			e.confirmRemove(path)

		case <-e.terminate:
			for _, t := range e.pending {
				t.Stop()
			}
			return
		}
	}
}

func (e *Engine) handleAdd(path string) {
	// an add immediately following a remove for the same path is
	// a reconnect: suppress the pending disconnect.
	if t, ok := e.pending[path]; ok {
		t.Stop()
		delete(e.pending, path)

		dev := e.probeDevice(path)
		e.setDevice(path, dev)
		e.Log(logger.Debug, "device %s reconnected", path)
		e.emit(defs.CameraEventConnected, dev)
		return
	}

	if _, ok := e.getDevice(path); ok {
		// already known as connected, ignore.
		return
	}

	dev := e.probeDevice(path)
	e.setDevice(path, dev)
	e.Log(logger.Info, "device %s connected", path)
	e.emit(defs.CameraEventConnected, dev)
}

func (e *Engine) handleRemove(path string) {
	if _, ok := e.getDevice(path); !ok {
		// removal of an unknown device, ignore.
		return
	}

	if _, ok := e.pending[path]; ok {
		return
	}

	if !e.CapabilityDetection {
		e.confirmRemove(path)
		return
	}

	t := time.AfterFunc(debounceWindow, func() {
		select {
		case e.chConfirmRemove <- path:
		case <-e.terminate:
		}
	})
	e.pending[path] = t
}

func (e *Engine) confirmRemove(path string) {
	delete(e.pending, path)

	dev, ok := e.getDevice(path)
	if !ok {
		return
	}

	e.deleteDevice(path)
	dev.Status = defs.CameraStatusDisconnected
	e.Log(logger.Info, "device %s disconnected", path)
	e.emit(defs.CameraEventDisconnected, dev)
}

// probeDevice builds a CameraDevice record, probing capabilities
// when capability detection is enabled. Probe failures never
// propagate: they are reflected in the record.
func (e *Engine) probeDevice(path string) defs.CameraDevice {
	dev := defs.CameraDevice{
		Path:   path,
		Name:   filepath.Base(path),
		Status: defs.CameraStatusConnected,
	}

	if !e.CapabilityDetection || e.Prober == nil {
		return dev
	}

	caps := e.Prober.Probe(e.ctx, path)
	dev.Capabilities = caps

	if caps.Accessible {
		dev.Driver = caps.DriverName
		if caps.CardName != "" {
			dev.Name = caps.CardName
		}
	} else {
		e.Log(logger.Warn, "device %s is present but not accessible: %s", path, caps.Error)
		if strings.Contains(strings.ToLower(caps.Error), "busy") {
			dev.Status = defs.CameraStatusBusy
		} else {
			dev.Status = defs.CameraStatusError
		}
	}

	return dev
}

func (e *Engine) emit(kind defs.CameraEventKind, dev defs.CameraDevice) {
	evt := defs.CameraEvent{
		Kind:      kind,
		Path:      dev.Path,
		Device:    dev,
		Timestamp: time.Now(),
	}

	select {
	case e.chEvents <- evt:
	case <-e.terminate:
	}
}

func (e *Engine) getDevice(path string) (defs.CameraDevice, bool) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	d, ok := e.devices[path]
	return d, ok
}

func (e *Engine) setDevice(path string, d defs.CameraDevice) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.devices[path] = d
}

func (e *Engine) deleteDevice(path string) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	delete(e.devices, path)
}

func devicePath(devDir string, id int) string {
	return filepath.Join(devDir, fmt.Sprintf("video%d", id))
}

func sortedPaths(set map[string]struct{}) []string {
	ret := make([]string, 0, len(set))
	for p := range set {
		ret = append(ret, p)
	}
	sort.Strings(ret)
	return ret
}
