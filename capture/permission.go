// Package capture implements the client side of the pulse measurement flow:
// the camera permission gate, the recording session state machine, and the
// recorder collaborator interface. The actual camera belongs to the platform;
// this package only coordinates it.
package capture

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"vitalscan/logging"
)

// PermissionState mirrors the platform camera permission subsystem.
// The platform is the source of truth; this value is read before every
// capture attempt and never cached across attempts.
type PermissionState int

const (
	// PermissionUndetermined means the user has never been asked.
	PermissionUndetermined PermissionState = iota

	// PermissionGranted allows capture to proceed.
	PermissionGranted

	// PermissionDeniedRetriable means denied, but the platform will show the
	// dialog again if re-requested.
	PermissionDeniedRetriable

	// PermissionDeniedPermanently means denied and the platform will not ask
	// again; only the system settings screen can change it.
	PermissionDeniedPermanently
)

func (s PermissionState) String() string {
	switch s {
	case PermissionUndetermined:
		return "undetermined"
	case PermissionGranted:
		return "granted"
	case PermissionDeniedRetriable:
		return "denied"
	case PermissionDeniedPermanently:
		return "denied_permanently"
	default:
		return "unknown"
	}
}

// PermissionAuthority is the platform permission subsystem collaborator.
type PermissionAuthority interface {
	// Check returns the current permission state without prompting.
	Check() PermissionState

	// Request shows the platform permission dialog and blocks until the user
	// resolves it. The returned state is the post-dialog state.
	Request(ctx context.Context) (PermissionState, error)
}

// Decision tells the UI layer what to present after resolving permission.
type Decision int

const (
	// DecisionProceed: permission granted, go straight to the capture UI.
	DecisionProceed Decision = iota

	// DecisionShowRationale: show the rationale plus a "Grant" action that
	// re-requests.
	DecisionShowRationale

	// DecisionOpenSettings: show the rationale plus a deep link to system
	// settings. No in-app retry is offered; that is platform policy.
	DecisionOpenSettings
)

// Gate applies the permission policy for the measurement screen:
// eagerly request on entry when undetermined, otherwise map the platform
// state to a UI decision.
type Gate struct {
	authority PermissionAuthority
	log       *logging.Logger
}

// NewGate creates a Gate over the given platform authority.
// log may be nil.
func NewGate(authority PermissionAuthority, log *logging.Logger) *Gate {
	if log == nil {
		log = logging.Nop()
	}
	return &Gate{authority: authority, log: log}
}

// Resolve checks the current permission state, eagerly requesting when the
// user has never been asked, and returns the state with the UI decision.
func (g *Gate) Resolve(ctx context.Context) (PermissionState, Decision, error) {
	state := g.authority.Check()

	if state == PermissionUndetermined {
		var err error
		state, err = g.authority.Request(ctx)
		if err != nil {
			return state, DecisionShowRationale, fmt.Errorf("permission request failed: %w", err)
		}
		g.log.Debug("permission requested", zap.Stringer("state", state))
	}

	return state, decisionFor(state), nil
}

// Retry re-requests permission. It only prompts when the platform would
// actually show a dialog; a permanent denial maps straight to settings.
func (g *Gate) Retry(ctx context.Context) (PermissionState, Decision, error) {
	state := g.authority.Check()

	switch state {
	case PermissionUndetermined, PermissionDeniedRetriable:
		var err error
		state, err = g.authority.Request(ctx)
		if err != nil {
			return state, DecisionShowRationale, fmt.Errorf("permission request failed: %w", err)
		}
	}

	return state, decisionFor(state), nil
}

func decisionFor(state PermissionState) Decision {
	switch state {
	case PermissionGranted:
		return DecisionProceed
	case PermissionDeniedPermanently:
		return DecisionOpenSettings
	default:
		return DecisionShowRationale
	}
}
