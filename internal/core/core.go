// Package core contains the main struct of the software.
package core

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/gin-gonic/gin"

	"github.com/streamwell/camagent/internal/api"
	"github.com/streamwell/camagent/internal/breaker"
	"github.com/streamwell/camagent/internal/conf"
	"github.com/streamwell/camagent/internal/confwatcher"
	"github.com/streamwell/camagent/internal/defs"
	"github.com/streamwell/camagent/internal/discovery"
	"github.com/streamwell/camagent/internal/externalcmd"
	"github.com/streamwell/camagent/internal/healthchecker"
	"github.com/streamwell/camagent/internal/logger"
	"github.com/streamwell/camagent/internal/mtx"
	"github.com/streamwell/camagent/internal/pathman"
	"github.com/streamwell/camagent/internal/prober"
	"github.com/streamwell/camagent/internal/recorder"
	"github.com/streamwell/camagent/internal/rlimit"
	"github.com/streamwell/camagent/internal/snapshot"
)

var version = "v0.0.0"

var defaultConfPaths = []string{
	"camagent.yml",
	"/usr/local/etc/camagent.yml",
	"/usr/etc/camagent.yml",
	"/etc/camagent/camagent.yml",
}

var cli struct {
	Version  bool   `help:"print version"`
	Confpath string `arg:"" default:""`
}

// Core is an instance of camagent.
type Core struct {
	ctx             context.Context
	ctxCancel       func()
	confPath        string
	conf            *conf.Conf
	logger          *logger.Logger
	externalCmdPool *externalcmd.Pool
	controlClient   *mtx.Client
	healthChecker   *healthchecker.HealthChecker
	pathManager     *pathman.PathManager
	recorder        *recorder.Manager
	snapshots       *snapshot.Engine
	eventHub        *api.EventHub
	api             *api.API
	discovery       *discovery.Engine
	confWatcher     *confwatcher.ConfWatcher

	onConnectCmds map[string]*externalcmd.Cmd

	// out
	done chan struct{}
}

// New allocates a Core.
func New(args []string) (*Core, bool) {
	parser, err := kong.New(&cli,
		kong.Description("camagent "+version),
		kong.UsageOnError(),
		kong.ValueFormatter(func(value *kong.Value) string {
			switch value.Name {
			case "confpath":
				return "path to a config file. The default is camagent.yml."

			default:
				return kong.DefaultHelpValueFormatter(value)
			}
		}))
	if err != nil {
		panic(err)
	}

	_, err = parser.Parse(args)
	parser.FatalIfErrorf(err)

	if cli.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	p := &Core{
		ctx:           ctx,
		ctxCancel:     ctxCancel,
		onConnectCmds: make(map[string]*externalcmd.Cmd),
		done:          make(chan struct{}),
	}

	p.conf, p.confPath, err = conf.Load(cli.Confpath, defaultConfPaths)
	if err != nil {
		fmt.Printf("ERR: %s\n", err)
		return nil, false
	}

	err = p.createResources(true)
	if err != nil {
		if p.logger != nil {
			p.Log(logger.Error, "%s", err)
		} else {
			fmt.Printf("ERR: %s\n", err)
		}
		p.closeResources(nil)
		return nil, false
	}

	go p.run()

	return p, true
}

// Close closes Core and waits for all goroutines to return.
func (p *Core) Close() {
	p.ctxCancel()
	<-p.done
}

// Wait waits for the Core to exit.
func (p *Core) Wait() {
	<-p.done
}

// Log implements logger.Writer.
func (p *Core) Log(level logger.Level, format string, args ...interface{}) {
	p.logger.Log(level, format, args...)
}

func (p *Core) run() {
	defer close(p.done)

	confChanged := func() chan struct{} {
		if p.confWatcher != nil {
			return p.confWatcher.Watch()
		}
		return make(chan struct{})
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

outer:
	for {
		select {
		case evt, ok := <-p.discovery.Events():
			if !ok {
				break outer
			}
			p.handleCameraEvent(evt)

		case <-confChanged:
			p.Log(logger.Info, "reloading configuration (file changed)")

			newConf, _, err := conf.Load(p.confPath, nil)
			if err != nil {
				p.Log(logger.Error, "%s", err)
				break outer
			}

			err = p.reloadConf(newConf)
			if err != nil {
				p.Log(logger.Error, "%s", err)
				break outer
			}
			confChanged = p.confWatcher.Watch()

		case <-interrupt:
			p.Log(logger.Info, "shutting down gracefully")
			break outer

		case <-p.ctx.Done():
			break outer
		}
	}

	p.ctxCancel()

	p.closeResources(nil)
}

func (p *Core) createResources(initial bool) error {
	var err error

	if p.logger == nil {
		p.logger, err = logger.New(
			logger.Level(p.conf.LogLevel),
			p.conf.LogDestinations.ToMap(),
			p.conf.LogFile,
		)
		if err != nil {
			return err
		}
	}

	if initial {
		p.Log(logger.Info, "camagent %s", version)
		if p.confPath == "" {
			p.Log(logger.Warn, "configuration file not found, using defaults")
		}

		// on Linux, try to raise the number of file descriptors that can be opened
		// to allow the maximum possible number of clients.
		// do not check for errors.
		rlimit.Raise() //nolint:errcheck

		gin.SetMode(gin.ReleaseMode)
	}

	if p.externalCmdPool == nil {
		p.externalCmdPool = &externalcmd.Pool{}
		p.externalCmdPool.Initialize()
	}

	if p.controlClient == nil {
		p.controlClient = &mtx.Client{
			BaseURL: p.conf.ControlAPIURL,
			Timeout: time.Duration(p.conf.RequestTimeout),
		}
		p.controlClient.Initialize()
	}

	if p.healthChecker == nil {
		p.healthChecker = &healthchecker.HealthChecker{
			Interval:     time.Duration(p.conf.HealthCheckInterval),
			ProbeTimeout: time.Duration(p.conf.RequestTimeout),
			Breaker: &breaker.CircuitBreaker{
				FailureThreshold:  p.conf.FailureThreshold,
				RecoveryThreshold: p.conf.RecoveryThreshold,
				BaseBackoff:       time.Duration(p.conf.BaseBackoff),
				MaxBackoff:        time.Duration(p.conf.MaxBackoff),
				Multiplier:        p.conf.BackoffMultiplier,
				JitterLow:         p.conf.JitterLow,
				JitterHigh:        p.conf.JitterHigh,
			},
			Client: p.controlClient,
			Parent: p,
		}
		p.healthChecker.Breaker.Initialize()
		err = p.healthChecker.Start()
		if err != nil {
			return err
		}
	}

	if p.pathManager == nil {
		p.pathManager = &pathman.PathManager{
			Prefix:         p.conf.PathPrefix,
			PublishPort:    p.conf.PublishPort,
			PublishCommand: p.conf.PublishCommand,
			RequestTimeout: time.Duration(p.conf.RequestTimeout),
			Client:         p.controlClient,
			Gate:           p.healthChecker,
			Parent:         p,
		}
		p.pathManager.Initialize()
	}

	if p.recorder == nil {
		p.recorder = &recorder.Manager{
			RecordPath:     p.conf.RecordPath,
			RequestTimeout: time.Duration(p.conf.RequestTimeout),
			Client:         p.controlClient,
			Parent:         p,
		}
		p.recorder.Initialize()
	}

	if p.snapshots == nil {
		p.snapshots = &snapshot.Engine{
			SnapshotPath:  p.conf.SnapshotPath,
			FFmpegCommand: p.conf.FFmpegCommand,
			Timeout:       time.Duration(p.conf.SnapshotTimeout),
			StreamBaseURL: "rtsp://127.0.0.1:" + strconv.Itoa(p.conf.PublishPort),
			Paths:         p.pathManager,
			Parent:        p,
		}
		p.snapshots.Initialize()
	}

	if p.eventHub == nil {
		p.eventHub = api.NewEventHub()
	}

	if p.conf.API && p.api == nil {
		p.api = &api.API{
			Address:     p.conf.APIAddress,
			ReadTimeout: time.Duration(p.conf.APIReadTimeout),
			PPROF:       p.conf.PPROF,
			Health:      p.healthChecker,
			PathManager: p.pathManager,
			Recorder:    p.recorder,
			Snapshots:   p.snapshots,
			Events:      p.eventHub,
			Parent:      p,
		}
	}

	if p.discovery == nil {
		p.discovery = &discovery.Engine{
			DeviceRange:         p.conf.DeviceRange,
			PollInterval:        time.Duration(p.conf.PollInterval),
			CapabilityDetection: p.conf.CapabilityDetection,
			Prober: &prober.Prober{
				Command: p.conf.ProbeCommand,
				Timeout: time.Duration(p.conf.ProbeTimeout),
			},
			Parent: p,
		}
		err = p.discovery.Start()
		if err != nil {
			return err
		}
	}

	if p.api != nil && p.api.Discovery == nil {
		p.api.Discovery = p.discovery
		err = p.api.Initialize()
		if err != nil {
			return err
		}
	}

	if p.confPath != "" && p.confWatcher == nil {
		p.confWatcher = &confwatcher.ConfWatcher{FilePath: p.confPath}
		err = p.confWatcher.Initialize()
		if err != nil {
			return err
		}
	}

	return nil
}

func (p *Core) closeResources(newConf *conf.Conf) {
	closeLogger := newConf == nil ||
		newConf.LogLevel != p.conf.LogLevel ||
		!reflect.DeepEqual(newConf.LogDestinations, p.conf.LogDestinations) ||
		newConf.LogFile != p.conf.LogFile

	closeControlClient := newConf == nil ||
		newConf.ControlAPIURL != p.conf.ControlAPIURL ||
		newConf.RequestTimeout != p.conf.RequestTimeout

	closeHealthChecker := newConf == nil ||
		closeControlClient ||
		newConf.HealthCheckInterval != p.conf.HealthCheckInterval ||
		newConf.FailureThreshold != p.conf.FailureThreshold ||
		newConf.RecoveryThreshold != p.conf.RecoveryThreshold ||
		newConf.BaseBackoff != p.conf.BaseBackoff ||
		newConf.MaxBackoff != p.conf.MaxBackoff ||
		newConf.BackoffMultiplier != p.conf.BackoffMultiplier ||
		newConf.JitterLow != p.conf.JitterLow ||
		newConf.JitterHigh != p.conf.JitterHigh

	closePathManager := newConf == nil ||
		closeControlClient ||
		closeHealthChecker ||
		newConf.PathPrefix != p.conf.PathPrefix ||
		newConf.PublishPort != p.conf.PublishPort ||
		newConf.PublishCommand != p.conf.PublishCommand

	closeRecorder := newConf == nil ||
		closeControlClient ||
		newConf.RecordPath != p.conf.RecordPath

	closeSnapshots := newConf == nil ||
		closePathManager ||
		newConf.SnapshotPath != p.conf.SnapshotPath ||
		newConf.SnapshotTimeout != p.conf.SnapshotTimeout ||
		newConf.FFmpegCommand != p.conf.FFmpegCommand

	closeDiscovery := newConf == nil ||
		closePathManager ||
		!reflect.DeepEqual(newConf.DeviceRange, p.conf.DeviceRange) ||
		newConf.PollInterval != p.conf.PollInterval ||
		newConf.CapabilityDetection != p.conf.CapabilityDetection ||
		newConf.ProbeCommand != p.conf.ProbeCommand ||
		newConf.ProbeTimeout != p.conf.ProbeTimeout

	closeAPI := newConf == nil ||
		closeDiscovery ||
		newConf.API != p.conf.API ||
		newConf.APIAddress != p.conf.APIAddress ||
		newConf.APIReadTimeout != p.conf.APIReadTimeout ||
		newConf.PPROF != p.conf.PPROF

	if newConf == nil && p.confWatcher != nil {
		p.confWatcher.Close()
		p.confWatcher = nil
	}

	if closeDiscovery && p.discovery != nil {
		p.discovery.Stop()
		p.discovery = nil

		for device, cmd := range p.onConnectCmds {
			cmd.Close()
			delete(p.onConnectCmds, device)
		}
	}

	if closeAPI && p.api != nil {
		p.api.Close()
		p.api = nil
	}

	if newConf == nil && p.eventHub != nil {
		p.eventHub.Close()
		p.eventHub = nil
	}

	if closeSnapshots {
		p.snapshots = nil
	}

	if closeRecorder {
		p.recorder = nil
	}

	if closePathManager {
		p.pathManager = nil
	}

	if closeHealthChecker && p.healthChecker != nil {
		p.healthChecker.Stop()
		p.healthChecker = nil
	}

	if closeControlClient {
		p.controlClient = nil
	}

	if newConf == nil && p.externalCmdPool != nil {
		p.Log(logger.Info, "waiting for running hooks")
		p.externalCmdPool.Close()
		p.externalCmdPool = nil
	}

	if closeLogger && p.logger != nil {
		p.logger.Close()
		p.logger = nil
	}
}

func (p *Core) handleCameraEvent(evt defs.CameraEvent) {
	deviceID := strings.TrimPrefix(filepath.Base(evt.Path), "video")
	pathName := p.pathManager.PathName(deviceID)

	env := externalcmd.Environment{
		"CAMAGENT_DEVICE": evt.Path,
		"CAMAGENT_PATH":   pathName,
		"CAMAGENT_PORT":   strconv.Itoa(p.conf.PublishPort),
	}

	switch evt.Kind {
	case defs.CameraEventConnected:
		p.pathManager.CreatePath(deviceID, evt.Path)

		if p.conf.RunOnConnect != "" {
			p.Log(logger.Info, "runOnConnect command started for %s", evt.Path)

			if prev, ok := p.onConnectCmds[evt.Path]; ok {
				prev.Close()
			}
			p.onConnectCmds[evt.Path] = externalcmd.NewCmd(
				p.externalCmdPool,
				p.conf.RunOnConnect,
				p.conf.RunOnConnectRestart,
				env,
				func(err error) {
					p.Log(logger.Info, "runOnConnect command exited: %v", err)
				})
		}

	case defs.CameraEventDisconnected:
		p.pathManager.DeletePath(deviceID)

		if cmd, ok := p.onConnectCmds[evt.Path]; ok {
			cmd.Close()
			delete(p.onConnectCmds, evt.Path)
		}

		if p.conf.RunOnDisconnect != "" {
			p.Log(logger.Info, "runOnDisconnect command launched for %s", evt.Path)
			p.runOneShot(p.conf.RunOnDisconnect, env)
		}
	}

	p.eventHub.Publish(evt)
}

// runOneShot launches a hook command that runs once and releases its
// pool slot as soon as it exits.
func (p *Core) runOneShot(cmdstr string, env externalcmd.Environment) {
	exited := make(chan struct{})
	cmd := externalcmd.NewCmd(
		p.externalCmdPool,
		cmdstr,
		false,
		env,
		func(err error) {
			if err != nil {
				p.Log(logger.Warn, "hook command exited: %v", err)
			}
			close(exited)
		})
	go func() {
		<-exited
		cmd.Close()
	}()
}

func (p *Core) reloadConf(newConf *conf.Conf) error {
	p.closeResources(newConf)
	p.conf = newConf
	return p.createResources(false)
}
