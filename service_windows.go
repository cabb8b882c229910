//go:build windows

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/kardianos/service"
	"go.uber.org/zap"

	"vitalscan/core"
	"vitalscan/logging"
)

// runService runs the spool worker under the Windows service manager, or
// applies a control action (install, uninstall, start, stop, restart).
func runService(cfg *core.Config, logger *logging.Logger, args []string) int {
	svcConfig := &service.Config{
		Name:        "vitalscan",
		DisplayName: "VitalScan Spool Worker",
		Description: "Processes spooled scan clips through the analysis backend.",
		Arguments:   []string{"service"},
	}

	prg := &spoolProgram{cfg: cfg, logger: logger}
	svc, err := service.New(prg, svcConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "service setup failed: %v\n", err)
		return core.ExitCodeError
	}

	if len(args) > 0 {
		if err := service.Control(svc, args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "service %s failed: %v\n", args[0], err)
			return core.ExitCodeError
		}
		fmt.Printf("service %s: ok\n", args[0])
		return core.ExitCodeSuccess
	}

	if err := svc.Run(); err != nil {
		logger.Error("service run failed", zap.Error(err))
		return core.ExitCodeError
	}
	return core.ExitCodeSuccess
}

// spoolProgram adapts the spool watcher to the service lifecycle.
type spoolProgram struct {
	cfg    *core.Config
	logger *logging.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

func (p *spoolProgram) Start(s service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		runWatchLoop(ctx, p.cfg, p.logger)
	}()
	return nil
}

func (p *spoolProgram) Stop(s service.Service) error {
	if p.cancel != nil {
		p.cancel()
	}
	if p.done != nil {
		select {
		case <-p.done:
		case <-time.After(shutdownGrace):
			p.logger.Warn("spool worker did not stop within the grace period")
		}
	}
	return nil
}
