package defs

import (
	"time"
)

// APIError is a generic API error.
type APIError struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// APIOK is a generic API success.
type APIOK struct {
	Status string `json:"status"`
}

// APICameraList is a list of cameras.
type APICameraList struct {
	ItemCount int            `json:"itemCount"`
	Items     []CameraDevice `json:"items"`
}

// APIHealth is the health of the external streaming server
// as seen by the health checker.
type APIHealth struct {
	Healthy      bool      `json:"healthy"`
	BreakerState string    `json:"breakerState"`
	LastChecked  time.Time `json:"lastChecked"`
	Failures     int       `json:"consecutiveFailures"`
}

// APIRecordingSession is an active recording session.
type APIRecordingSession struct {
	Stream        string    `json:"stream"`
	Filename      string    `json:"filename"`
	Directory     string    `json:"directory"`
	Format        string    `json:"format"`
	CorrelationID string    `json:"correlationId"`
	StartedAt     time.Time `json:"startedAt"`
	Status        string    `json:"status"`
}

// APIRecordingSessionList is a list of recording sessions.
type APIRecordingSessionList struct {
	ItemCount int                   `json:"itemCount"`
	Items     []APIRecordingSession `json:"items"`
}

// APIStopRecordingRes is the outcome of stopping a recording.
type APIStopRecordingRes struct {
	Stream          string  `json:"stream"`
	DurationSeconds float64 `json:"durationSeconds"`
	FileExists      bool    `json:"fileExists"`
	FileSize        uint64  `json:"fileSize"`
	FileSizeHuman   string  `json:"fileSizeHuman,omitempty"`
	Warning         string  `json:"warning,omitempty"`
}

// APISnapshotRes is the outcome of a snapshot request.
type APISnapshotRes struct {
	Status         string   `json:"status"`
	Filename       string   `json:"filename"`
	TiersAttempted []string `json:"tiersAttempted"`
	TierUsed       string   `json:"tierUsed,omitempty"`
	CaptureMethod  string   `json:"captureMethod,omitempty"`
	UserExperience string   `json:"userExperience,omitempty"`
	FileSizeHuman  string   `json:"fileSizeHuman,omitempty"`
	Error          string   `json:"error,omitempty"`
}
