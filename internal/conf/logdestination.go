package conf

import (
	"fmt"
	"strings"

	"github.com/streamwell/camagent/internal/logger"
)

// LogDestinations is the logDestinations parameter.
type LogDestinations []logger.Destination

func (d *LogDestinations) contains(v logger.Destination) bool {
	for _, item := range *d {
		if item == v {
			return true
		}
	}
	return false
}

// MarshalYAML implements yaml.Marshaler.
func (d LogDestinations) MarshalYAML() (interface{}, error) {
	out := make([]string, len(d))

	for i, p := range d {
		switch p {
		case logger.DestinationStdout:
			out[i] = "stdout"

		case logger.DestinationFile:
			out[i] = "file"

		default:
			return nil, fmt.Errorf("invalid log destination: %v", p)
		}
	}

	return out, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *LogDestinations) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var in []string
	err := unmarshal(&in)
	if err != nil {
		return err
	}
	return d.set(in)
}

func (d *LogDestinations) set(in []string) error {
	*d = nil

	for _, dest := range in {
		var v logger.Destination
		switch dest {
		case "stdout":
			v = logger.DestinationStdout

		case "file":
			v = logger.DestinationFile

		default:
			return fmt.Errorf("invalid log destination: %s", dest)
		}

		if d.contains(v) {
			return fmt.Errorf("log destination set twice")
		}

		*d = append(*d, v)
	}

	return nil
}

// ToMap converts the destinations into the format accepted by the logger.
func (d LogDestinations) ToMap() map[logger.Destination]struct{} {
	ret := make(map[logger.Destination]struct{}, len(d))
	for _, p := range d {
		ret[p] = struct{}{}
	}
	return ret
}

func (d *LogDestinations) unmarshalEnv(s string) error {
	return d.set(strings.Split(s, ","))
}
