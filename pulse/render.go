package pulse

import (
	"fmt"

	"vitalscan/core"
)

// FormatBPM renders a measured heart rate for display.
func FormatBPM(bpm int) string {
	return fmt.Sprintf("%d BPM", bpm)
}

// UserMessage maps a measurement error to the single message shown to the
// user. Each failure kind has exactly one message; backend-provided detail is
// included where it helps the user understand what to do differently.
func UserMessage(err error) string {
	scanErr, ok := core.AsScanError(err)
	if !ok {
		return "Something went wrong. Please try again."
	}

	switch scanErr.Kind {
	case core.KindPermissionDenied:
		if scanErr.Retriable {
			return "Camera access is needed to measure your pulse. Grant it to continue."
		}
		return "Camera access is turned off. Enable it in system settings to measure your pulse."

	case core.KindCaptureFailed:
		return "Recording failed. Check that the camera is available and try again."

	case core.KindNoFileProduced:
		return "The recording did not produce a video. Please try again."

	case core.KindFileTooLarge:
		return "The recording is too large to upload. Please try again."

	case core.KindNetworkError:
		return "Could not reach the analysis service. Check your connection and try again."

	case core.KindServerError:
		if scanErr.Detail != "" {
			return fmt.Sprintf("The analysis service could not process the video (%s).", scanErr.Detail)
		}
		return "The analysis service could not process the video. Please try again."

	case core.KindMalformedResponse, core.KindMissingResultField:
		return "The analysis service returned an unexpected answer. Please try again."

	default:
		return "Something went wrong. Please try again."
	}
}
