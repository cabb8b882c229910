// Package pulse orchestrates a full heart-rate measurement: permission gate,
// recording session, upload, rendering, and history. It is the only layer
// that turns errors into user-facing text.
package pulse

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"vitalscan/capture"
	"vitalscan/core"
	"vitalscan/logging"
	"vitalscan/ppg"
)

// State is the measurement flow state as the UI sees it.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateUploading
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateUploading:
		return "uploading"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	// ErrMeasurementActive is returned by Measure and Reset while a
	// measurement is in flight. At most one recording and one upload exist
	// at any time; a second tap is a no-op, never a second session.
	ErrMeasurementActive = errors.New("pulse: measurement already in progress")

	// ErrMeasurementCancelled is returned when the measurement was called
	// off before a clip existed, for example by context cancellation during
	// recording. Nothing was uploaded and nothing is rendered.
	ErrMeasurementCancelled = errors.New("pulse: measurement cancelled")
)

// Analyzer uploads a clip and returns the measured heart rate.
type Analyzer interface {
	Analyze(ctx context.Context, handle *capture.VideoHandle, onProgress ppg.ProgressFunc) (*ppg.Result, error)
}

// HistoryAppender records completed measurements. History is best-effort:
// an append failure never fails the measurement.
type HistoryAppender interface {
	AppendPulse(ctx context.Context, bpm int, capturedAt time.Time) error
}

// Snapshot is a point-in-time copy of the controller state for rendering.
type Snapshot struct {
	State State
	// BPM is valid only when HasResult is true.
	BPM       int
	HasResult bool
	// ErrorMessage is the user-facing text for StateFailed, empty otherwise.
	ErrorMessage string
	// Progress is the latest upload progress, meaningful during StateUploading.
	Progress core.ProgressInfo
}

// Controller runs measurements one at a time.
type Controller struct {
	gate     *capture.Gate
	recorder capture.Recorder
	analyzer Analyzer
	history  HistoryAppender
	duration time.Duration
	log      *logging.Logger

	mu       sync.Mutex
	busy     bool
	state    State
	session  *capture.Session
	bpm      int
	hasBPM   bool
	errMsg   string
	progress core.ProgressInfo
}

// NewController wires the measurement flow together. history may be nil to
// disable persistence; log may be nil.
func NewController(
	gate *capture.Gate,
	recorder capture.Recorder,
	analyzer Analyzer,
	history HistoryAppender,
	duration time.Duration,
	log *logging.Logger,
) *Controller {
	if log == nil {
		log = logging.Nop()
	}
	return &Controller{
		gate:     gate,
		recorder: recorder,
		analyzer: analyzer,
		history:  history,
		duration: duration,
		log:      log.Named("pulse"),
	}
}

// Measure runs one measurement to completion and blocks until it finishes.
// While a measurement is in flight, further Measure calls return
// ErrMeasurementActive without side effects. A previous result or error is
// cleared the moment a new measurement starts.
//
// Measure never retries anything on its own. A failure lands in StateFailed
// with a rendered message and stays there until the user measures again or
// resets.
func (c *Controller) Measure(ctx context.Context) (*ppg.Result, error) {
	if err := c.begin(); err != nil {
		return nil, err
	}
	defer c.end()

	permState, _, err := c.gate.Resolve(ctx)
	if err != nil {
		return nil, c.fail(core.NewCaptureFailed(err))
	}
	if permState != capture.PermissionGranted {
		retriable := permState != capture.PermissionDeniedPermanently
		return nil, c.fail(core.NewPermissionDenied(retriable))
	}

	session := capture.NewSession(c.recorder, c.duration, c.log)
	c.setSession(session)
	c.setState(StateRecording)

	handle, err := session.Record(ctx, permState)
	if err != nil {
		return nil, c.fail(err)
	}
	if handle == nil {
		// Stopped before any clip existed. Not an error worth rendering.
		c.setState(StateIdle)
		return nil, ErrMeasurementCancelled
	}

	c.setState(StateUploading)
	result, err := c.analyzer.Analyze(ctx, handle, c.updateProgress)
	if err != nil {
		return nil, c.fail(err)
	}

	c.finish(result)

	if c.history != nil {
		if err := c.history.AppendPulse(ctx, result.BPM, result.CapturedAt); err != nil {
			c.log.Warn("history append failed", zap.Int("bpm", result.BPM), zap.Error(err))
		}
	}

	return result, nil
}

// Stop ends the recording phase early. The measurement continues into the
// upload with the clip captured so far. Calling Stop outside the recording
// phase does nothing.
func (c *Controller) Stop() {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()

	if session != nil {
		// ErrNotRecording just means the recording already ended.
		_ = session.Stop()
	}
}

// Reset clears a finished measurement, result or error alike, returning the
// flow to StateIdle.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return ErrMeasurementActive
	}
	c.state = StateIdle
	c.bpm = 0
	c.hasBPM = false
	c.errMsg = ""
	c.progress = core.ProgressInfo{}
	return nil
}

// Snapshot returns a copy of the current flow state for rendering.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		State:        c.state,
		BPM:          c.bpm,
		HasResult:    c.hasBPM,
		ErrorMessage: c.errMsg,
		Progress:     c.progress,
	}
}

func (c *Controller) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return ErrMeasurementActive
	}
	c.busy = true
	c.state = StateIdle
	c.bpm = 0
	c.hasBPM = false
	c.errMsg = ""
	c.progress = core.ProgressInfo{}
	return nil
}

func (c *Controller) end() {
	c.mu.Lock()
	c.busy = false
	c.session = nil
	c.mu.Unlock()
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Controller) setSession(s *capture.Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

func (c *Controller) updateProgress(info core.ProgressInfo) {
	c.mu.Lock()
	c.progress = info
	c.mu.Unlock()
}

func (c *Controller) finish(result *ppg.Result) {
	c.mu.Lock()
	c.state = StateDone
	c.bpm = result.BPM
	c.hasBPM = true
	c.mu.Unlock()

	c.log.Info("measurement complete", zap.Int("bpm", result.BPM))
}

// fail is the single path into StateFailed. It renders the message the UI
// shows and passes the original error back to the caller.
func (c *Controller) fail(err error) error {
	msg := UserMessage(err)

	c.mu.Lock()
	c.state = StateFailed
	c.errMsg = msg
	c.mu.Unlock()

	c.log.Error("measurement failed", zap.Error(err))
	return err
}
