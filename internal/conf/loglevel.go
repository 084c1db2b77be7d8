package conf

import (
	"fmt"

	"github.com/streamwell/camagent/internal/logger"
)

// LogLevel is the logLevel parameter.
type LogLevel logger.Level

// MarshalYAML implements yaml.Marshaler.
func (d LogLevel) MarshalYAML() (interface{}, error) {
	switch d {
	case LogLevel(logger.Error):
		return "error", nil

	case LogLevel(logger.Warn):
		return "warn", nil

	case LogLevel(logger.Info):
		return "info", nil

	default:
		return "debug", nil
	}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *LogLevel) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var in string
	err := unmarshal(&in)
	if err != nil {
		return err
	}
	return d.set(in)
}

func (d *LogLevel) set(in string) error {
	switch in {
	case "error":
		*d = LogLevel(logger.Error)

	case "warn":
		*d = LogLevel(logger.Warn)

	case "info":
		*d = LogLevel(logger.Info)

	case "debug":
		*d = LogLevel(logger.Debug)

	default:
		return fmt.Errorf("invalid log level: %s", in)
	}

	return nil
}

func (d *LogLevel) unmarshalEnv(s string) error {
	return d.set(s)
}
