// Package conf contains the struct that holds the configuration of the software.
package conf

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/streamwell/camagent/internal/logger"
)

func firstThatExists(paths []string) string {
	for _, pa := range paths {
		_, err := os.Stat(pa)
		if err == nil {
			return pa
		}
	}
	return ""
}

// Conf is the configuration of the agent.
type Conf struct {
	// general
	LogLevel        LogLevel        `yaml:"logLevel"`
	LogDestinations LogDestinations `yaml:"logDestinations"`
	LogFile         string          `yaml:"logFile"`

	// operator API
	API            bool     `yaml:"api"`
	APIAddress     string   `yaml:"apiAddress"`
	APIReadTimeout Duration `yaml:"apiReadTimeout"`
	PPROF          bool     `yaml:"pprof"`

	// external streaming server
	ControlAPIURL  string   `yaml:"controlApiUrl"`
	RequestTimeout Duration `yaml:"requestTimeout"`

	// health checking
	HealthCheckInterval Duration `yaml:"healthCheckInterval"`
	FailureThreshold    int      `yaml:"failureThreshold"`
	RecoveryThreshold   int      `yaml:"recoveryThreshold"`
	BaseBackoff         Duration `yaml:"baseBackoff"`
	MaxBackoff          Duration `yaml:"maxBackoff"`
	BackoffMultiplier   float64  `yaml:"backoffMultiplier"`
	JitterLow           float64  `yaml:"jitterLow"`
	JitterHigh          float64  `yaml:"jitterHigh"`

	// discovery
	DeviceRange         []int    `yaml:"deviceRange"`
	PollInterval        Duration `yaml:"pollInterval"`
	CapabilityDetection bool     `yaml:"capabilityDetection"`
	ProbeCommand        string   `yaml:"probeCommand"`
	ProbeTimeout        Duration `yaml:"probeTimeout"`

	// paths
	PathPrefix     string `yaml:"pathPrefix"`
	PublishPort    int    `yaml:"publishPort"`
	PublishCommand string `yaml:"publishCommand"`

	// recording
	RecordPath string `yaml:"recordPath"`

	// snapshots
	SnapshotPath    string   `yaml:"snapshotPath"`
	SnapshotTimeout Duration `yaml:"snapshotTimeout"`
	FFmpegCommand   string   `yaml:"ffmpegCommand"`

	// hooks
	RunOnConnect        string `yaml:"runOnConnect"`
	RunOnConnectRestart bool   `yaml:"runOnConnectRestart"`
	RunOnDisconnect     string `yaml:"runOnDisconnect"`
}

func (conf *Conf) setDefaults() {
	conf.LogLevel = LogLevel(logger.Info)
	conf.LogDestinations = LogDestinations{logger.DestinationStdout}
	conf.LogFile = "camagent.log"

	conf.API = true
	conf.APIAddress = "127.0.0.1:9996"
	conf.APIReadTimeout = Duration(10 * time.Second)

	conf.ControlAPIURL = "http://127.0.0.1:9997"
	conf.RequestTimeout = Duration(10 * time.Second)

	conf.HealthCheckInterval = Duration(5 * time.Second)
	conf.FailureThreshold = 3
	conf.RecoveryThreshold = 2
	conf.BaseBackoff = Duration(1 * time.Second)
	conf.MaxBackoff = Duration(60 * time.Second)
	conf.BackoffMultiplier = 2.0
	conf.JitterLow = 0.8
	conf.JitterHigh = 1.2

	conf.DeviceRange = []int{0, 1, 2, 3}
	conf.PollInterval = Duration(5 * time.Second)
	conf.CapabilityDetection = true
	conf.ProbeCommand = "v4l2-ctl"
	conf.ProbeTimeout = Duration(5 * time.Second)

	conf.PathPrefix = "camera"
	conf.PublishPort = 8554
	conf.PublishCommand = "ffmpeg -f v4l2 -i $device -c:v libx264 -preset ultrafast " +
		"-tune zerolatency -f rtsp rtsp://127.0.0.1:$port/$path"

	conf.RecordPath = "/var/lib/camagent/recordings"

	conf.SnapshotPath = "/var/lib/camagent/snapshots"
	conf.SnapshotTimeout = Duration(10 * time.Second)
	conf.FFmpegCommand = "ffmpeg"
}

// Load loads the configuration from a file and from the environment.
func Load(fpath string, defaultConfPaths []string) (*Conf, string, error) {
	conf := &Conf{}

	fpath, err := conf.loadFromFile(fpath, defaultConfPaths)
	if err != nil {
		return nil, "", err
	}

	err = loadFromEnvironment("CAMAGENT", conf)
	if err != nil {
		return nil, "", err
	}

	err = conf.Validate()
	if err != nil {
		return nil, "", err
	}

	return conf, fpath, nil
}

func (conf *Conf) loadFromFile(fpath string, defaultConfPaths []string) (string, error) {
	if fpath == "" {
		fpath = firstThatExists(defaultConfPaths)

		// when the configuration file is not explicitly set,
		// it is optional.
		if fpath == "" {
			conf.setDefaults()
			return "", nil
		}
	}

	byts, err := os.ReadFile(fpath)
	if err != nil {
		return "", err
	}

	conf.setDefaults()

	err = yaml.UnmarshalStrict(byts, conf)
	if err != nil {
		return "", err
	}

	return fpath, nil
}

// Validate checks the configuration for errors.
func (conf *Conf) Validate() error {
	if conf.ControlAPIURL == "" {
		return fmt.Errorf("'controlApiUrl' must be set")
	}

	if conf.HealthCheckInterval <= 0 {
		return fmt.Errorf("'healthCheckInterval' must be greater than zero")
	}

	if conf.FailureThreshold <= 0 {
		return fmt.Errorf("'failureThreshold' must be greater than zero")
	}

	if conf.RecoveryThreshold <= 0 {
		return fmt.Errorf("'recoveryThreshold' must be greater than zero")
	}

	if conf.BaseBackoff <= 0 || conf.MaxBackoff < conf.BaseBackoff {
		return fmt.Errorf("invalid backoff bounds")
	}

	if conf.BackoffMultiplier < 1 {
		return fmt.Errorf("'backoffMultiplier' must be at least 1")
	}

	if conf.JitterLow <= 0 || conf.JitterHigh < conf.JitterLow {
		return fmt.Errorf("invalid jitter range")
	}

	if len(conf.DeviceRange) == 0 {
		return fmt.Errorf("'deviceRange' must contain at least one device index")
	}

	for _, id := range conf.DeviceRange {
		if id < 0 {
			return fmt.Errorf("device indices can't be negative")
		}
	}

	if conf.PollInterval <= 0 {
		return fmt.Errorf("'pollInterval' must be greater than zero")
	}

	if conf.ProbeTimeout <= 0 {
		return fmt.Errorf("'probeTimeout' must be greater than zero")
	}

	if conf.PathPrefix == "" {
		return fmt.Errorf("'pathPrefix' must not be empty")
	}

	return nil
}
