package capture

import (
	"context"
	"errors"
	"testing"
)

// fakeAuthority scripts the platform permission subsystem.
type fakeAuthority struct {
	state        PermissionState
	requestState PermissionState
	requestErr   error
	requests     int
}

func (f *fakeAuthority) Check() PermissionState {
	return f.state
}

func (f *fakeAuthority) Request(ctx context.Context) (PermissionState, error) {
	f.requests++
	if f.requestErr != nil {
		return f.state, f.requestErr
	}
	f.state = f.requestState
	return f.state, nil
}

func TestGateResolveGranted(t *testing.T) {
	auth := &fakeAuthority{state: PermissionGranted}
	gate := NewGate(auth, nil)

	state, decision, err := gate.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if state != PermissionGranted {
		t.Errorf("state = %v, want granted", state)
	}
	if decision != DecisionProceed {
		t.Errorf("decision = %v, want proceed", decision)
	}
	if auth.requests != 0 {
		t.Errorf("requests = %d, want 0 (already granted)", auth.requests)
	}
}

func TestGateResolveRequestsWhenUndetermined(t *testing.T) {
	auth := &fakeAuthority{state: PermissionUndetermined, requestState: PermissionGranted}
	gate := NewGate(auth, nil)

	state, decision, err := gate.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if auth.requests != 1 {
		t.Errorf("requests = %d, want 1", auth.requests)
	}
	if state != PermissionGranted || decision != DecisionProceed {
		t.Errorf("got state=%v decision=%v, want granted/proceed", state, decision)
	}
}

func TestGateResolveDeniedRetriable(t *testing.T) {
	auth := &fakeAuthority{state: PermissionDeniedRetriable}
	gate := NewGate(auth, nil)

	_, decision, err := gate.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if decision != DecisionShowRationale {
		t.Errorf("decision = %v, want rationale", decision)
	}
	if auth.requests != 0 {
		t.Errorf("requests = %d, want 0 (denial does not auto-prompt)", auth.requests)
	}
}

func TestGateResolveDeniedPermanently(t *testing.T) {
	auth := &fakeAuthority{state: PermissionDeniedPermanently}
	gate := NewGate(auth, nil)

	_, decision, err := gate.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if decision != DecisionOpenSettings {
		t.Errorf("decision = %v, want open settings", decision)
	}
}

func TestGateRetryPromptsOnlyWhenRetriable(t *testing.T) {
	auth := &fakeAuthority{state: PermissionDeniedRetriable, requestState: PermissionGranted}
	gate := NewGate(auth, nil)

	state, decision, err := gate.Retry(context.Background())
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if auth.requests != 1 {
		t.Errorf("requests = %d, want 1", auth.requests)
	}
	if state != PermissionGranted || decision != DecisionProceed {
		t.Errorf("got state=%v decision=%v, want granted/proceed", state, decision)
	}
}

func TestGateRetrySkipsPromptOnPermanentDenial(t *testing.T) {
	auth := &fakeAuthority{state: PermissionDeniedPermanently}
	gate := NewGate(auth, nil)

	_, decision, err := gate.Retry(context.Background())
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if auth.requests != 0 {
		t.Errorf("requests = %d, want 0 (permanent denial cannot prompt)", auth.requests)
	}
	if decision != DecisionOpenSettings {
		t.Errorf("decision = %v, want open settings", decision)
	}
}

func TestGateResolveRequestError(t *testing.T) {
	reqErr := errors.New("dialog unavailable")
	auth := &fakeAuthority{state: PermissionUndetermined, requestErr: reqErr}
	gate := NewGate(auth, nil)

	_, _, err := gate.Resolve(context.Background())
	if !errors.Is(err, reqErr) {
		t.Errorf("Resolve() error = %v, want wrapped %v", err, reqErr)
	}
}
