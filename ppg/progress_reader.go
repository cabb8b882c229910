package ppg

import (
	"io"

	"vitalscan/core"
)

// progressCallbackInterval is how many bytes pass between progress
// callbacks. Keeps the UI updated without a callback per network write.
const progressCallbackInterval = 64 * 1024

// progressReader wraps the upload body and feeds the tracker as the HTTP
// transport consumes it.
type progressReader struct {
	inner     io.Reader
	tracker   *core.ProgressTracker
	onChange  ProgressFunc
	sinceLast int64
}

func newProgressReader(inner io.Reader, tracker *core.ProgressTracker, onChange ProgressFunc) *progressReader {
	return &progressReader{
		inner:    inner,
		tracker:  tracker,
		onChange: onChange,
	}
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.inner.Read(p)
	if n > 0 {
		r.tracker.Update(int64(n))
		r.sinceLast += int64(n)

		if r.onChange != nil && (r.sinceLast >= progressCallbackInterval || err == io.EOF || r.tracker.IsComplete()) {
			r.sinceLast = 0
			r.onChange(r.tracker.Progress())
		}
	}
	return n, err
}
