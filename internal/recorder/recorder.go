// Package recorder manages recording sessions on streams of the
// external streaming server.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"github.com/google/uuid"

	"github.com/streamwell/camagent/internal/defs"
	"github.com/streamwell/camagent/internal/logger"
	"github.com/streamwell/camagent/internal/mtx"
)

// typed errors, returned to the caller since they indicate a
// caller-side protocol violation rather than a service failure.
var (
	// ErrInvalidFormat is returned when the recording format is not allowed.
	ErrInvalidFormat = errors.New("invalid recording format (allowed: mp4, mkv, avi)")

	// ErrAlreadyActive is returned when a session is already active for the stream.
	ErrAlreadyActive = errors.New("a recording session is already active for this stream")

	// ErrNoSession is returned when no session is active for the stream.
	ErrNoSession = errors.New("no active recording session for this stream")
)

var allowedFormats = map[string]struct{}{
	"mp4": {},
	"mkv": {},
	"avi": {},
}

type recordControl interface {
	ConfigPathsPatch(ctx context.Context, name string, conf *mtx.PathConf) error
}

type managerParent interface {
	logger.Writer
}

type session struct {
	stream        string
	format        string
	filename      string
	directory     string
	correlationID string
	durationHint  time.Duration
	startTime     time.Time
}

// Manager starts and stops recordings, with format validation,
// an at-most-one-session-per-stream guarantee and duration / file
// accounting.
type Manager struct {
	RecordPath     string
	RequestTimeout time.Duration
	Client         recordControl
	Parent         managerParent

	// test hook
	TimeNow func() time.Time

	mutex    sync.Mutex
	sessions map[string]*session
}

// Initialize initializes a Manager.
func (m *Manager) Initialize() {
	if m.TimeNow == nil {
		m.TimeNow = time.Now
	}
	m.sessions = make(map[string]*session)
}

// StartRecording starts a recording session on a stream.
// On remote failure no session is created.
func (m *Manager) StartRecording(streamName string, durationHint time.Duration, format string) (*defs.APIRecordingSession, error) {
	if _, ok := allowedFormats[format]; !ok {
		return nil, ErrInvalidFormat
	}

	now := m.TimeNow()

	s := &session{
		stream:        streamName,
		format:        format,
		filename:      fmt.Sprintf("%s_%s.%s", streamName, now.Format("2006-01-02_15-04-05"), format),
		directory:     m.RecordPath,
		correlationID: uuid.New().String(),
		durationHint:  durationHint,
		startTime:     now,
	}

	// reserve the stream before performing the remote call, so that
	// concurrent starts for the same stream can't both pass the check.
	m.mutex.Lock()
	if _, ok := m.sessions[streamName]; ok {
		m.mutex.Unlock()
		return nil, ErrAlreadyActive
	}
	m.sessions[streamName] = s
	m.mutex.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.RequestTimeout)
	defer cancel()

	recordPath := filepath.Join(m.RecordPath, trimExt(s.filename))

	err := m.Client.ConfigPathsPatch(ctx, streamName, &mtx.PathConf{
		Record:       true,
		RecordPath:   recordPath,
		RecordFormat: format,
	})
	if err != nil {
		m.mutex.Lock()
		delete(m.sessions, streamName)
		m.mutex.Unlock()
		m.Log(logger.Error, "can't start recording on %s: %v", streamName, err)
		return nil, err
	}

	m.Log(logger.Info, "recording started on %s (file: %s, correlation: %s)",
		streamName, s.filename, s.correlationID)

	ret := apiSession(s)
	return &ret, nil
}

// StopRecording stops the recording session of a stream.
// On remote failure the session is retained, so that the stop
// can be retried.
func (m *Manager) StopRecording(streamName string) (*defs.APIStopRecordingRes, error) {
	m.mutex.Lock()
	s, ok := m.sessions[streamName]
	m.mutex.Unlock()
	if !ok {
		return nil, ErrNoSession
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.RequestTimeout)
	defer cancel()

	err := m.Client.ConfigPathsPatch(ctx, streamName, &mtx.PathConf{
		Record: false,
	})
	if err != nil {
		m.Log(logger.Error, "can't stop recording on %s, keeping session for retry: %v", streamName, err)
		return nil, err
	}

	now := m.TimeNow()

	res := &defs.APIStopRecordingRes{
		Stream:          streamName,
		DurationSeconds: now.Sub(s.startTime).Seconds(),
	}

	// filesystem problems are non-fatal: they are attached to the
	// result as a warning.
	target := filepath.Join(s.directory, s.filename)
	info, err := os.Stat(target)
	switch {
	case err == nil:
		res.FileExists = true
		res.FileSize = uint64(info.Size())
		res.FileSizeHuman = bytefmt.ByteSize(res.FileSize)

	case os.IsNotExist(err):
		res.Warning = fmt.Sprintf("recording file %s not found", target)

	default:
		res.Warning = fmt.Sprintf("can't verify recording file: %v", err)
	}

	m.mutex.Lock()
	delete(m.sessions, streamName)
	m.mutex.Unlock()

	m.Log(logger.Info, "recording stopped on %s (duration: %.1fs, correlation: %s)",
		streamName, res.DurationSeconds, s.correlationID)

	return res, nil
}

// ListSessions returns the active recording sessions.
func (m *Manager) ListSessions() []defs.APIRecordingSession {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	ret := make([]defs.APIRecordingSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		ret = append(ret, apiSession(s))
	}
	return ret
}

// Log implements logger.Writer.
func (m *Manager) Log(level logger.Level, format string, args ...interface{}) {
	m.Parent.Log(level, "[recorder] "+format, args...)
}

func apiSession(s *session) defs.APIRecordingSession {
	return defs.APIRecordingSession{
		Stream:        s.stream,
		Filename:      s.filename,
		Directory:     s.directory,
		Format:        s.format,
		CorrelationID: s.correlationID,
		StartedAt:     s.startTime,
		Status:        "active",
	}
}

func trimExt(filename string) string {
	return filename[:len(filename)-len(filepath.Ext(filename))]
}
