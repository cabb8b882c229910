package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeSourceClip(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.mp4")
	if err := os.WriteFile(path, []byte("pre-captured clip"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFileRecorderCopiesClip(t *testing.T) {
	source := writeSourceClip(t)
	tempDir := t.TempDir()
	rec := NewFileRecorder(source, tempDir)

	handle, err := rec.Record(context.Background(), RecordOptions{MaxDuration: 15 * time.Second})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	defer handle.Release()

	if handle.Path() == source {
		t.Error("recorder must hand out a copy, not the source")
	}
	if filepath.Dir(handle.Path()) != tempDir {
		t.Errorf("clip created in %s, want %s", filepath.Dir(handle.Path()), tempDir)
	}
	data, err := os.ReadFile(handle.Path())
	if err != nil {
		t.Fatalf("read clip: %v", err)
	}
	if string(data) != "pre-captured clip" {
		t.Errorf("clip content = %q", data)
	}
}

func TestFileRecorderMissingSource(t *testing.T) {
	rec := NewFileRecorder(filepath.Join(t.TempDir(), "absent.mp4"), t.TempDir())

	_, err := rec.Record(context.Background(), RecordOptions{})
	if err == nil {
		t.Fatal("expected error for missing source clip")
	}
	if errors.Is(err, ErrRecordingStopped) {
		t.Error("a missing source is a failure, not a stop")
	}
}

func TestFileRecorderStopEndsEarly(t *testing.T) {
	rec := NewFileRecorder(writeSourceClip(t), t.TempDir())
	rec.Delay = 10 * time.Second

	type result struct {
		handle *VideoHandle
		err    error
	}
	done := make(chan result, 1)
	go func() {
		h, err := rec.Record(context.Background(), RecordOptions{MaxDuration: 15 * time.Second})
		done <- result{h, err}
	}()

	// Give the copy a moment to finish before stopping.
	time.Sleep(50 * time.Millisecond)
	rec.Stop()

	select {
	case res := <-done:
		if !errors.Is(res.err, ErrRecordingStopped) {
			t.Errorf("error = %v, want ErrRecordingStopped", res.err)
		}
		if res.handle == nil {
			t.Fatal("early stop must still return the partial clip")
		}
		res.handle.Release()
	case <-time.After(2 * time.Second):
		t.Fatal("Record did not return after Stop")
	}
}

func TestFileRecorderContextCancel(t *testing.T) {
	rec := NewFileRecorder(writeSourceClip(t), t.TempDir())
	rec.Delay = 10 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := rec.Record(ctx, RecordOptions{MaxDuration: 15 * time.Second})
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrRecordingStopped) {
			t.Errorf("error = %v, want ErrRecordingStopped", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Record did not return after cancellation")
	}

	// Cancellation returns no handle, so the temp clip must already be gone.
	entries, err := os.ReadDir(rec.tempDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("temp dir still holds %d files after cancellation", len(entries))
	}
}

func TestFileRecorderTorchState(t *testing.T) {
	rec := NewFileRecorder(writeSourceClip(t), t.TempDir())

	if err := rec.SetTorch(true); err != nil {
		t.Fatalf("SetTorch(true) error = %v", err)
	}
	if !rec.TorchOn() {
		t.Error("torch should report on")
	}
	if err := rec.SetTorch(false); err != nil {
		t.Fatalf("SetTorch(false) error = %v", err)
	}
	if rec.TorchOn() {
		t.Error("torch should report off")
	}
}
