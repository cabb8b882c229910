package capture

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileRecorder is a Recorder backed by a pre-captured clip on disk. It is
// the reference implementation used on hosts without a camera: the CLI, the
// spool worker, and tests. Each Record call copies the source clip into a
// fresh temporary file so the usual ownership rules apply unchanged.
type FileRecorder struct {
	sourcePath string
	tempDir    string

	// Delay simulates capture time. Record returns after Delay, Stop, or
	// context cancellation, whichever comes first. Zero means the clip is
	// returned as soon as the copy finishes.
	Delay time.Duration

	mu       sync.Mutex
	torchOn  bool
	stopCh   chan struct{}
	stopOnce *sync.Once
}

// NewFileRecorder creates a recorder that replays sourcePath. Temp files are
// created under tempDir; an empty tempDir means the OS default.
func NewFileRecorder(sourcePath, tempDir string) *FileRecorder {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &FileRecorder{sourcePath: sourcePath, tempDir: tempDir}
}

// Record copies the source clip into a temporary file and hands ownership to
// the caller.
func (r *FileRecorder) Record(ctx context.Context, opts RecordOptions) (*VideoHandle, error) {
	r.mu.Lock()
	r.stopCh = make(chan struct{})
	r.stopOnce = &sync.Once{}
	stopCh := r.stopCh
	r.mu.Unlock()

	handle, err := r.copyClip()
	if err != nil {
		return nil, err
	}

	wait := r.Delay
	if wait > opts.MaxDuration && opts.MaxDuration > 0 {
		wait = opts.MaxDuration
	}
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
			// duration elapsed, normal completion
		case <-stopCh:
			return handle, fmt.Errorf("stopped before %s elapsed: %w", wait, ErrRecordingStopped)
		case <-ctx.Done():
			handle.Release()
			return nil, fmt.Errorf("%v: %w", ctx.Err(), ErrRecordingStopped)
		}
	}

	return handle, nil
}

// Stop ends the current simulated recording early.
func (r *FileRecorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopCh == nil {
		return
	}
	ch := r.stopCh
	r.stopOnce.Do(func() { close(ch) })
}

// SetTorch records the requested torch state.
func (r *FileRecorder) SetTorch(on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.torchOn = on
	return nil
}

// TorchOn reports the last requested torch state.
func (r *FileRecorder) TorchOn() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.torchOn
}

func (r *FileRecorder) copyClip() (*VideoHandle, error) {
	src, err := os.Open(r.sourcePath)
	if err != nil {
		return nil, fmt.Errorf("open source clip: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(r.tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}

	dst, err := os.CreateTemp(r.tempDir, "vitalscan-capture-*"+filepath.Ext(r.sourcePath))
	if err != nil {
		return nil, fmt.Errorf("create temp clip: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return nil, fmt.Errorf("copy clip: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return nil, fmt.Errorf("close temp clip: %w", err)
	}

	return NewVideoHandle(dst.Name()), nil
}
