package shutdown

import (
	"context"
	"errors"
	"testing"
)

func TestShutdownRunsInPriorityOrder(t *testing.T) {
	reg := NewRegistry(nil)

	var order []string
	step := func(name string) Func {
		return func(ctx context.Context) error {
			order = append(order, name)
			return nil
		}
	}

	reg.Register("logger", PriorityLogger, step("logger"))
	reg.Register("database", PriorityDatabase, step("database"))
	reg.Register("watcher", PriorityWatcher, step("watcher"))
	reg.Register("uploads", PriorityUploads, step("uploads"))

	if errs := reg.Shutdown(context.Background()); len(errs) != 0 {
		t.Fatalf("Shutdown() errors = %v", errs)
	}

	want := []string{"watcher", "uploads", "database", "logger"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestShutdownEqualPriorityKeepsRegistrationOrder(t *testing.T) {
	reg := NewRegistry(nil)

	var order []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		reg.Register(name, PriorityDatabase, func(ctx context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	reg.Shutdown(context.Background())
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Errorf("order = %v, want [a b c]", order)
	}
}

func TestShutdownContinuesPastFailures(t *testing.T) {
	reg := NewRegistry(nil)

	var ran []string
	reg.Register("broken", PriorityWatcher, func(ctx context.Context) error {
		ran = append(ran, "broken")
		return errors.New("wedged")
	})
	reg.Register("healthy", PriorityDatabase, func(ctx context.Context) error {
		ran = append(ran, "healthy")
		return nil
	})

	errs := reg.Shutdown(context.Background())
	if len(errs) != 1 {
		t.Fatalf("errors = %v, want 1", errs)
	}
	if len(ran) != 2 {
		t.Errorf("ran = %v, want both steps", ran)
	}
}

func TestShutdownRunsOnce(t *testing.T) {
	reg := NewRegistry(nil)

	calls := 0
	reg.Register("step", PriorityDatabase, func(ctx context.Context) error {
		calls++
		return nil
	})

	reg.Shutdown(context.Background())
	reg.Shutdown(context.Background())

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
