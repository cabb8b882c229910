package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a scan failure for programmatic handling.
// The controller maps each kind to a single user-facing message; nothing
// below the controller boundary talks to the user directly.
type ErrorKind string

const (
	// KindPermissionDenied means camera permission was not granted.
	KindPermissionDenied ErrorKind = "PERMISSION_DENIED"

	// KindCaptureFailed means the capture layer reported a genuine failure.
	// A user-initiated stop is NOT a capture failure; see capture.ErrRecordingStopped.
	KindCaptureFailed ErrorKind = "CAPTURE_FAILED"

	// KindNoFileProduced means recording finished but left no usable video file.
	KindNoFileProduced ErrorKind = "NO_FILE_PRODUCED"

	// KindFileTooLarge means the capture exceeds the configured upload limit.
	KindFileTooLarge ErrorKind = "FILE_TOO_LARGE"

	// KindNetworkError means the HTTP request never completed (DNS, dial,
	// timeout, connection reset).
	KindNetworkError ErrorKind = "NETWORK_ERROR"

	// KindServerError means the backend answered with a non-2xx status.
	KindServerError ErrorKind = "SERVER_ERROR"

	// KindMalformedResponse means the backend answered 2xx with a body that
	// is not valid JSON.
	KindMalformedResponse ErrorKind = "MALFORMED_RESPONSE"

	// KindMissingResultField means the backend answered valid JSON that lacks
	// the required result field (e.g. "bpm", "foods").
	KindMissingResultField ErrorKind = "MISSING_RESULT_FIELD"
)

// ScanError is the single error type crossing the capture/upload boundary.
// It carries enough structure for the controller to render one alert and
// persist one inline error state.
type ScanError struct {
	Kind ErrorKind
	// Message is a short operator-facing description.
	Message string
	// Detail carries backend-provided context (the "detail"/"message" body
	// field, or a truncated raw body for malformed responses).
	Detail string
	// Status is the HTTP status code for KindServerError, 0 otherwise.
	Status int
	// Retriable is meaningful for KindPermissionDenied: false means the
	// platform will no longer show the permission dialog.
	Retriable bool
	// Cause is the underlying error, if any.
	Cause error
}

func (e *ScanError) Error() string {
	switch {
	case e.Status != 0 && e.Detail != "":
		return fmt.Sprintf("%s (%d): %s", e.Message, e.Status, e.Detail)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Message, e.Detail)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	default:
		return e.Message
	}
}

func (e *ScanError) Unwrap() error {
	return e.Cause
}

// NewPermissionDenied reports a denied camera permission.
func NewPermissionDenied(retriable bool) *ScanError {
	return &ScanError{
		Kind:      KindPermissionDenied,
		Message:   "camera permission denied",
		Retriable: retriable,
	}
}

// NewCaptureFailed wraps a genuine capture-layer failure.
func NewCaptureFailed(cause error) *ScanError {
	return &ScanError{
		Kind:    KindCaptureFailed,
		Message: "video capture failed",
		Cause:   cause,
	}
}

// NewNoFileProduced reports a recording that left no usable file behind.
func NewNoFileProduced(path string) *ScanError {
	return &ScanError{
		Kind:    KindNoFileProduced,
		Message: "recording produced no video file",
		Detail:  path,
	}
}

// NewFileTooLarge reports a capture exceeding the upload size limit.
func NewFileTooLarge(size, limit int64) *ScanError {
	return &ScanError{
		Kind:    KindFileTooLarge,
		Message: "capture exceeds upload limit",
		Detail:  fmt.Sprintf("%s > %s", FormatBytes(size), FormatBytes(limit)),
	}
}

// NewNetworkError wraps a transport-level failure.
func NewNetworkError(cause error) *ScanError {
	return &ScanError{
		Kind:    KindNetworkError,
		Message: "could not reach analysis service",
		Cause:   cause,
	}
}

// NewServerError reports a non-2xx backend response. detail comes from the
// response body ("detail" or "message" field) and may be empty.
func NewServerError(status int, detail string) *ScanError {
	return &ScanError{
		Kind:    KindServerError,
		Message: "analysis service returned an error",
		Status:  status,
		Detail:  detail,
	}
}

// NewMalformedResponse reports a 2xx response whose body is not valid JSON.
// rawBody is truncated before storage so log lines stay bounded.
func NewMalformedResponse(rawBody string) *ScanError {
	return &ScanError{
		Kind:    KindMalformedResponse,
		Message: "analysis service returned an unreadable response",
		Detail:  Truncate(rawBody, 256),
	}
}

// NewMissingResultField reports a valid JSON response missing a required field.
func NewMissingResultField(field string) *ScanError {
	return &ScanError{
		Kind:    KindMissingResultField,
		Message: "analysis service response is missing a result",
		Detail:  field,
	}
}

// AsScanError unwraps err into a *ScanError if one is present in the chain.
func AsScanError(err error) (*ScanError, bool) {
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr, true
	}
	return nil, false
}

// IsKind reports whether err is a ScanError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	if scanErr, ok := AsScanError(err); ok {
		return scanErr.Kind == kind
	}
	return false
}

// Truncate shortens s to at most n bytes, appending an ellipsis marker when
// anything was cut. Used for bounding raw response bodies in errors and logs.
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
