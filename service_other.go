//go:build !windows

package main

import (
	"fmt"
	"os"

	"vitalscan/core"
	"vitalscan/logging"
)

// runService exists so the command set is uniform across platforms; the
// service wrapper itself is Windows-only. Use `vitalscan watch` under
// systemd or launchd instead.
func runService(cfg *core.Config, logger *logging.Logger, args []string) int {
	fmt.Fprintln(os.Stderr, "service mode is only supported on Windows; use `vitalscan watch` with your init system")
	return core.ExitCodeError
}
