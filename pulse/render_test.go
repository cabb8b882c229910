package pulse

import (
	"errors"
	"strings"
	"testing"

	"vitalscan/core"
)

func TestFormatBPM(t *testing.T) {
	if got := FormatBPM(72); got != "72 BPM" {
		t.Errorf("FormatBPM(72) = %q, want %q", got, "72 BPM")
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		fragment string
	}{
		{"permission retriable", core.NewPermissionDenied(true), "Grant it"},
		{"permission permanent", core.NewPermissionDenied(false), "system settings"},
		{"capture failed", core.NewCaptureFailed(errors.New("hw")), "Recording failed"},
		{"no file", core.NewNoFileProduced("/tmp/x.mp4"), "did not produce a video"},
		{"too large", core.NewFileTooLarge(100, 10), "too large"},
		{"network", core.NewNetworkError(errors.New("dial")), "Check your connection"},
		{"server with detail", core.NewServerError(500, "decode error"), "decode error"},
		{"server without detail", core.NewServerError(503, ""), "could not process"},
		{"malformed", core.NewMalformedResponse("<html>"), "unexpected answer"},
		{"missing field", core.NewMissingResultField("bpm"), "unexpected answer"},
		{"unknown error", errors.New("surprise"), "Something went wrong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UserMessage(tt.err)
			if !strings.Contains(got, tt.fragment) {
				t.Errorf("UserMessage() = %q, want fragment %q", got, tt.fragment)
			}
		})
	}
}

func TestUserMessageNeverLeaksInternals(t *testing.T) {
	// Raw transport errors stay in logs; the user sees one stable message.
	msg := UserMessage(core.NewNetworkError(errors.New("dial tcp 10.0.0.5:443: i/o timeout")))
	if strings.Contains(msg, "10.0.0.5") || strings.Contains(msg, "dial tcp") {
		t.Errorf("UserMessage leaked transport detail: %q", msg)
	}
}
