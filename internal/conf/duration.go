package conf

import (
	"fmt"
	"time"
)

// Duration is a duration that is unmarshaled from a string
// (instead of a number of nanoseconds).
type Duration time.Duration

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var in string
	err := unmarshal(&in)
	if err != nil {
		// allow plain numbers, interpreted as seconds
		var secs float64
		err2 := unmarshal(&secs)
		if err2 != nil {
			return err
		}
		*d = Duration(time.Duration(secs * float64(time.Second)))
		return nil
	}

	du, err := time.ParseDuration(in)
	if err != nil {
		return fmt.Errorf("invalid duration: %s", in)
	}

	*d = Duration(du)
	return nil
}

func (d *Duration) unmarshalEnv(s string) error {
	du, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration: %s", s)
	}
	*d = Duration(du)
	return nil
}
