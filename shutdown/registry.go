// Package shutdown coordinates orderly teardown: components register
// cleanup functions with priorities, and a signal listener drives them when
// the process is asked to stop.
package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"vitalscan/core"
	"vitalscan/logging"
)

// Func is a cleanup step. It must respect the context deadline.
type Func func(ctx context.Context) error

// Priorities for common teardown phases. Lower runs first.
const (
	PriorityWatcher  = 10 // stop taking new work
	PriorityUploads  = 20 // let in-flight uploads drain
	PriorityDatabase = 30 // close storage
	PriorityLogger   = 90 // flush logs last
)

type entry struct {
	name     string
	priority int
	fn       Func
}

// Registry holds cleanup functions ordered by priority.
type Registry struct {
	mu      sync.Mutex
	entries []entry
	log     *logging.Logger
	done    bool
}

// NewRegistry creates an empty registry. log may be nil.
func NewRegistry(log *logging.Logger) *Registry {
	if log == nil {
		log = logging.Nop()
	}
	return &Registry{log: log.Named("shutdown")}
}

// Register adds a cleanup step. Steps with equal priority run in
// registration order.
func (r *Registry) Register(name string, priority int, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry{name: name, priority: priority, fn: fn})
}

// Shutdown runs every registered step in priority order. A failing step is
// recorded and teardown continues; the combined failures come back as a
// slice. Shutdown runs at most once.
func (r *Registry) Shutdown(ctx context.Context) []error {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return nil
	}
	r.done = true
	steps := make([]entry, len(r.entries))
	copy(steps, r.entries)
	r.mu.Unlock()

	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].priority < steps[j].priority
	})

	var errs []error
	for _, step := range steps {
		r.log.Info("shutting down", zap.String("step", step.name))
		if err := step.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
			r.log.Error("shutdown step failed", zap.String("step", step.name), zap.Error(err))
		}
	}
	return errs
}

// ListenAndShutdown blocks until SIGINT or SIGTERM, runs the registry with
// the given grace period, and returns the conventional exit code for the
// signal. A second signal aborts the grace period and exits immediately.
func (r *Registry) ListenAndShutdown(grace time.Duration) int {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	sig := <-sigCh
	r.log.Info("signal received", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	done := make(chan struct{})
	go func() {
		r.Shutdown(ctx)
		close(done)
	}()

	select {
	case <-done:
	case second := <-sigCh:
		r.log.Warn("second signal, aborting graceful shutdown", zap.String("signal", second.String()))
	case <-ctx.Done():
		r.log.Warn("shutdown grace period expired")
	}

	if sig == syscall.SIGTERM {
		return core.ExitCodeSIGTERM
	}
	return core.ExitCodeSIGINT
}
