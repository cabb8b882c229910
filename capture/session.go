package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vitalscan/core"
	"vitalscan/logging"
)

// Status is the lifecycle state of a capture session.
type Status int

const (
	// StatusIdle: nothing captured yet, or reset after a terminal state.
	StatusIdle Status = iota

	// StatusRecording: the camera is running and the torch is on.
	StatusRecording

	// StatusStopped: the recording ended normally, whether by reaching the
	// maximum duration or by a deliberate stop.
	StatusStopped

	// StatusFailed: the recording ended with a hardware or pipeline error.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRecording:
		return "recording"
	case StatusStopped:
		return "stopped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	// ErrSessionActive is returned when an operation needs an idle session
	// but a recording is in progress or a terminal state was not reset.
	ErrSessionActive = errors.New("capture: session already active")

	// ErrNotRecording is returned by Stop when no recording is in progress.
	ErrNotRecording = errors.New("capture: session is not recording")

	// ErrPermissionRequired is returned when Record is called without camera
	// permission.
	ErrPermissionRequired = errors.New("capture: camera permission not granted")
)

// Session drives one recording through its lifecycle:
//
//	Idle -> Recording -> Stopped | Failed -> (Reset) -> Idle
//
// The torch is on exactly while the status is Recording. Every way out of
// Recording, normal completion, deliberate stop, and failure, goes through
// the same transition, so the torch is always switched off and a failed
// recording's clip is always released.
type Session struct {
	id          string
	recorder    Recorder
	maxDuration time.Duration
	log         *logging.Logger

	mu        sync.Mutex
	status    Status
	startedAt time.Time
}

// NewSession creates an idle session over the given recorder. log may be nil.
func NewSession(recorder Recorder, maxDuration time.Duration, log *logging.Logger) *Session {
	if log == nil {
		log = logging.Nop()
	}
	return &Session{
		id:          uuid.NewString(),
		recorder:    recorder,
		maxDuration: maxDuration,
		log:         log.Named("capture"),
	}
}

// ID returns the session's correlation id.
func (s *Session) ID() string {
	return s.id
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// StartedAt returns when the current or last recording began.
func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// Record runs one recording to completion and returns the clip handle.
// Ownership of the handle transfers to the caller, who must Release it.
//
// Record requires permission to already be granted and the session to be
// idle; it never prompts and never restarts a session on its own. A
// deliberate stop is a normal outcome: the status becomes Stopped and the
// partial clip, when the recorder produced one, is returned.
func (s *Session) Record(ctx context.Context, permission PermissionState) (*VideoHandle, error) {
	if err := s.begin(permission); err != nil {
		return nil, err
	}

	if err := s.recorder.SetTorch(true); err != nil {
		return s.finish(nil, fmt.Errorf("torch engage: %w", err))
	}

	s.log.Info("recording started",
		zap.String("session_id", s.id),
		zap.Duration("max_duration", s.maxDuration),
	)

	handle, err := s.recorder.Record(ctx, RecordOptions{
		MaxDuration: s.maxDuration,
		Mute:        true,
		Quality:     QualityLow,
	})
	return s.finish(handle, err)
}

// Stop ends an in-progress recording early. The blocked Record call returns
// through its normal path with the clip captured so far.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.status != StatusRecording {
		s.mu.Unlock()
		return ErrNotRecording
	}
	s.mu.Unlock()

	s.recorder.Stop()
	return nil
}

// Reset returns a terminal session to Idle so a new measurement can start.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusRecording {
		return ErrSessionActive
	}
	s.status = StatusIdle
	return nil
}

func (s *Session) begin(permission PermissionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusIdle {
		return ErrSessionActive
	}
	if permission != PermissionGranted {
		return ErrPermissionRequired
	}

	s.status = StatusRecording
	s.startedAt = time.Now()
	return nil
}

// finish is the single exit from Recording. The torch goes off before the
// status changes, whatever the outcome was.
func (s *Session) finish(handle *VideoHandle, err error) (*VideoHandle, error) {
	if torchErr := s.recorder.SetTorch(false); torchErr != nil {
		s.log.Warn("torch disengage failed",
			zap.String("session_id", s.id),
			zap.Error(torchErr),
		)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := time.Since(s.startedAt)

	switch {
	case err == nil:
		s.status = StatusStopped
		s.log.Info("recording complete",
			zap.String("session_id", s.id),
			zap.Duration("elapsed", elapsed),
		)
		return handle, nil

	case errors.Is(err, ErrRecordingStopped):
		s.status = StatusStopped
		s.log.Info("recording stopped early",
			zap.String("session_id", s.id),
			zap.Duration("elapsed", elapsed),
		)
		return handle, nil

	default:
		s.status = StatusFailed
		if handle != nil {
			if relErr := handle.Release(); relErr != nil {
				s.log.Warn("failed clip cleanup", zap.Error(relErr))
			}
		}
		s.log.Error("recording failed",
			zap.String("session_id", s.id),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return nil, core.NewCaptureFailed(err)
	}
}
