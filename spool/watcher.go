// Package spool watches a directory for recorded clips dropped by external
// capture rigs and feeds them through the measurement pipeline. Kiosk
// deployments use this instead of an interactive camera.
package spool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"vitalscan/logging"
)

// Handler processes one settled clip. The file still exists when the handler
// runs; the handler (or its downstream) owns cleanup.
type Handler func(ctx context.Context, path string) error

// clipExtensions are the file types picked up from the spool directory.
var clipExtensions = map[string]bool{
	".mp4": true,
	".mov": true,
}

// pendingFile tracks a clip still being written.
type pendingFile struct {
	size  int64
	since time.Time
}

// Watcher turns spool directory activity into sequential handler calls.
// A clip is handed over only once its size has been stable for the settle
// window, so half-written files are never processed.
type Watcher struct {
	dir     string
	settle  time.Duration
	handler Handler
	log     *logging.Logger

	mu      sync.Mutex
	pending map[string]pendingFile
}

// NewWatcher creates a Watcher over dir. The directory must exist.
func NewWatcher(dir string, settle time.Duration, handler Handler, log *logging.Logger) (*Watcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("spool directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("spool path %s is not a directory", dir)
	}
	if settle <= 0 {
		settle = 2 * time.Second
	}
	if log == nil {
		log = logging.Nop()
	}

	return &Watcher{
		dir:     dir,
		settle:  settle,
		handler: handler,
		log:     log.Named("spool"),
		pending: make(map[string]pendingFile),
	}, nil
}

// Run watches until the context is cancelled. Clips already present at
// startup are processed too, so nothing is lost across restarts.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	if err := w.scanExisting(); err != nil {
		return err
	}

	pollInterval := w.settle / 2
	if pollInterval < 100*time.Millisecond {
		pollInterval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	w.log.Info("spool watcher started",
		zap.String("dir", w.dir),
		zap.Duration("settle", w.settle),
	)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 && isClip(event.Name) {
				w.observe(event.Name)
			}

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", zap.Error(watchErr))

		case <-ticker.C:
			for _, path := range w.ready(time.Now()) {
				w.log.Info("processing spooled clip", zap.String("path", path))
				if err := w.handler(ctx, path); err != nil {
					w.log.Error("spooled clip failed", zap.String("path", path), zap.Error(err))
				}
			}
		}
	}
}

// scanExisting queues clips that were already in the spool before Run.
func (w *Watcher) scanExisting() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("scan spool: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && isClip(entry.Name()) {
			w.observe(filepath.Join(w.dir, entry.Name()))
		}
	}
	return nil
}

// observe records current file size, restarting the settle window whenever
// the size moved.
func (w *Watcher) observe(path string) {
	info, err := os.Stat(path)
	if err != nil {
		// Deleted or renamed between event and stat.
		w.forget(path)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	existing, ok := w.pending[path]
	if ok && existing.size == info.Size() {
		return
	}
	w.pending[path] = pendingFile{size: info.Size(), since: time.Now()}
}

// ready returns the clips whose size has been stable for the settle window
// and removes them from the pending set. Paths come back sorted so handling
// order is deterministic.
func (w *Watcher) ready(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []string
	for path, p := range w.pending {
		info, err := os.Stat(path)
		if err != nil {
			delete(w.pending, path)
			continue
		}
		if info.Size() != p.size {
			w.pending[path] = pendingFile{size: info.Size(), since: now}
			continue
		}
		if info.Size() > 0 && now.Sub(p.since) >= w.settle {
			out = append(out, path)
			delete(w.pending, path)
		}
	}

	sort.Strings(out)
	return out
}

func (w *Watcher) forget(path string) {
	w.mu.Lock()
	delete(w.pending, path)
	w.mu.Unlock()
}

// PendingCount reports how many clips are waiting to settle.
func (w *Watcher) PendingCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

func isClip(path string) bool {
	return clipExtensions[strings.ToLower(filepath.Ext(path))]
}
