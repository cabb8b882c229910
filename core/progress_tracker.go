package core

import (
	"sync"
	"time"
)

// ProgressInfo contains the current upload progress information.
// This is returned by ProgressTracker.Progress() for display.
type ProgressInfo struct {
	// Total bytes to send (0 if unknown)
	Total int64
	// Sent bytes so far
	Sent int64
	// Percentage complete (0-100, or -1 if total is unknown)
	Percent float64
	// Upload speed in bytes per second
	SpeedBytesPerSec float64
	// Speed formatted as human-readable string (e.g., "5.2 MB/s")
	SpeedFormatted string
	// Estimated time remaining (0 if unknown or complete)
	ETA time.Duration
	// Elapsed time since the upload started
	Elapsed time.Duration
	// Human-readable sent size
	SentFormatted string
	// Human-readable total size (or "unknown" if 0)
	TotalFormatted string
}

// ProgressTracker tracks upload progress with thread-safe updates.
// It calculates speed, ETA, and provides formatted progress information for
// the UI layer without blocking the uploader.
type ProgressTracker struct {
	mu sync.RWMutex

	total     int64
	sent      int64
	startTime time.Time
	// for speed calculation
	lastUpdateTime time.Time
	lastSent       int64
	// exponential moving average of speed (bytes/sec)
	speedAvg   float64
	speedAlpha float64
}

// NewProgressTracker creates a new progress tracker.
// total is the total bytes to send (use 0 if unknown).
func NewProgressTracker(total int64) *ProgressTracker {
	now := time.Now()
	return &ProgressTracker{
		total:          total,
		startTime:      now,
		lastUpdateTime: now,
		speedAlpha:     0.3, // balance between responsiveness and smoothness
	}
}

// Update adds n bytes to the sent count.
// This method is thread-safe.
func (p *ProgressTracker) Update(n int64) {
	if n <= 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.sent += n
	p.updateSpeed()
}

// SetTotal updates the total bytes to send.
// This method is thread-safe.
func (p *ProgressTracker) SetTotal(total int64) {
	if total < 0 {
		total = 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = total
}

// updateSpeed recalculates the upload speed.
// Must be called with mu held.
func (p *ProgressTracker) updateSpeed() {
	now := time.Now()
	elapsed := now.Sub(p.lastUpdateTime).Seconds()

	// Only update speed if some time has passed
	if elapsed >= 0.1 {
		bytesInInterval := p.sent - p.lastSent
		instantSpeed := float64(bytesInInterval) / elapsed

		if p.speedAvg == 0 {
			p.speedAvg = instantSpeed
		} else {
			p.speedAvg = p.speedAlpha*instantSpeed + (1-p.speedAlpha)*p.speedAvg
		}

		p.lastUpdateTime = now
		p.lastSent = p.sent
	}
}

// Progress returns the current progress information.
// This method is thread-safe.
func (p *ProgressTracker) Progress() ProgressInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()

	info := ProgressInfo{
		Total:            p.total,
		Sent:             p.sent,
		Percent:          -1, // unknown if total is 0
		SpeedBytesPerSec: p.speedAvg,
		SpeedFormatted:   FormatBytes(int64(p.speedAvg)) + "/s",
		Elapsed:          time.Since(p.startTime),
		SentFormatted:    FormatBytes(p.sent),
		TotalFormatted:   "unknown",
	}

	if p.total > 0 {
		info.Percent = float64(p.sent) / float64(p.total) * 100
		info.TotalFormatted = FormatBytes(p.total)

		if info.Percent > 100 {
			info.Percent = 100
		}

		if p.speedAvg > 0 && p.sent < p.total {
			remaining := float64(p.total - p.sent)
			info.ETA = time.Duration(remaining / p.speedAvg * float64(time.Second))
		}
	}

	return info
}

// Sent returns the current sent byte count.
// This method is thread-safe.
func (p *ProgressTracker) Sent() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sent
}

// Total returns the total bytes to send.
// This method is thread-safe.
func (p *ProgressTracker) Total() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.total
}

// IsComplete returns true if the upload is complete (sent >= total).
// Returns false if total is unknown (0).
func (p *ProgressTracker) IsComplete() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.total > 0 && p.sent >= p.total
}
