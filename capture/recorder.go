package capture

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"
)

// ErrRecordingStopped is returned by a Recorder when the recording ended
// because Stop was called or the context was cancelled before the maximum
// duration elapsed. It marks a deliberate stop, which is a normal outcome of
// the measurement flow, not a failure. Callers distinguish it with errors.Is.
var ErrRecordingStopped = errors.New("capture: recording stopped")

// Quality selects the recorder's resolution preset. The analysis backend
// averages pixel intensity per frame, so low resolution is sufficient and
// keeps uploads small.
type Quality int

const (
	QualityLow Quality = iota
	QualityMedium
	QualityHigh
)

// RecordOptions configures a single recording.
type RecordOptions struct {
	// MaxDuration is the auto-stop point. The recorder completes normally
	// when it elapses.
	MaxDuration time.Duration

	// Mute disables audio capture. Measurements never need sound.
	Mute bool

	// Quality is the resolution preset.
	Quality Quality
}

// Recorder is the platform camera collaborator. Implementations own the
// device: they start the capture pipeline, write the clip to a temporary
// file, and control the torch.
type Recorder interface {
	// Record captures a clip and blocks until it finishes. On a normal
	// completion (duration elapsed) it returns the clip handle with a nil
	// error. On a deliberate stop it returns an error matching
	// ErrRecordingStopped, with the handle when the platform produced a
	// usable partial clip. Any other error is a capture failure.
	Record(ctx context.Context, opts RecordOptions) (*VideoHandle, error)

	// Stop ends an in-progress recording early. Safe to call when nothing is
	// recording.
	Stop()

	// SetTorch turns the torch on or off.
	SetTorch(on bool) error
}

// VideoHandle owns a recorded clip on disk. Exactly one component is
// responsible for it at a time; whoever holds the handle must eventually call
// Release to delete the underlying file.
type VideoHandle struct {
	path    string
	release sync.Once
}

// NewVideoHandle wraps an on-disk clip.
func NewVideoHandle(path string) *VideoHandle {
	return &VideoHandle{path: path}
}

// Path returns the location of the clip on disk.
func (h *VideoHandle) Path() string {
	return h.path
}

// Release deletes the underlying file. Idempotent: the file is removed at
// most once and later calls are no-ops. A missing file is not an error.
func (h *VideoHandle) Release() error {
	var err error
	h.release.Do(func() {
		if rmErr := os.Remove(h.path); rmErr != nil && !os.IsNotExist(rmErr) {
			err = rmErr
		}
	})
	return err
}
