// Package defs contains shared definitions.
package defs

import (
	"time"
)

// CameraStatus is the status of a camera device.
type CameraStatus string

// camera statuses.
const (
	CameraStatusConnected    CameraStatus = "connected"
	CameraStatusDisconnected CameraStatus = "disconnected"
	CameraStatusError        CameraStatus = "error"
	CameraStatusBusy         CameraStatus = "busy"
)

// CameraCapabilities is the result of probing a camera device.
// It is an immutable snapshot; a re-probe produces a new record.
type CameraCapabilities struct {
	Detected    bool     `json:"detected"`
	Accessible  bool     `json:"accessible"`
	DriverName  string   `json:"driverName"`
	CardName    string   `json:"cardName"`
	Formats     []string `json:"formats"`
	Resolutions []string `json:"resolutions"`
	FrameRates  []string `json:"frameRates"`
	Error       string   `json:"error,omitempty"`
}

// CameraDevice is a camera device known to the discovery engine.
// Instances are replaced, never mutated in place.
type CameraDevice struct {
	Path         string              `json:"path"`
	Name         string              `json:"name"`
	Status       CameraStatus        `json:"status"`
	Driver       string              `json:"driver"`
	Capabilities *CameraCapabilities `json:"capabilities,omitempty"`
}

// CameraEventKind is the kind of a camera event.
type CameraEventKind string

// camera event kinds.
const (
	CameraEventConnected    CameraEventKind = "connected"
	CameraEventDisconnected CameraEventKind = "disconnected"
)

// CameraEvent is a camera connect / disconnect transition.
type CameraEvent struct {
	Kind      CameraEventKind `json:"kind"`
	Path      string          `json:"path"`
	Device    CameraDevice    `json:"device"`
	Timestamp time.Time       `json:"timestamp"`
}
