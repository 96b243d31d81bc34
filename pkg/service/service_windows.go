//go:build windows

package service

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sys/windows/svc"
)

func run(ctx context.Context, cfg Config, fn Func) error {
	isService, err := svc.IsWindowsService()
	if err != nil {
		return fmt.Errorf("failed to detect service environment: %w", err)
	}
	if !isService {
		return runInteractive(ctx, cfg, NewConsoleReporter(cfg.Logger), fn)
	}

	h := &scmHandler{ctx: ctx, logger: cfg.Logger, fn: fn}
	if err := svc.Run(cfg.Name, h); err != nil {
		return fmt.Errorf("service %q failed: %w", cfg.Name, err)
	}
	return h.err
}

// scmHandler bridges the SCM change-request channel to a Func.
type scmHandler struct {
	ctx    context.Context
	logger *slog.Logger
	fn     Func
	err    error
}

func (h *scmHandler) Execute(args []string, requests <-chan svc.ChangeRequest, changes chan<- svc.Status) (bool, uint32) {
	ctx, cancel := context.WithCancel(h.ctx)
	defer cancel()

	changes <- svc.Status{State: svc.StartPending}

	controls := make(chan Control, 4)
	done := make(chan error, 1)
	go func() {
		done <- h.fn(ctx, NewHandle(&scmReporter{changes: changes}), controls)
	}()

	for {
		select {
		case err := <-done:
			h.err = err
			if err != nil {
				h.logger.Error("Service exited with error", "error", err)
				return true, 1
			}
			return false, 0

		case req := <-requests:
			// Interrogate is answered by the service body re-reporting its status
			c, ok := controlForRequest(req.Cmd)
			if !ok {
				h.logger.Debug("Ignoring service control", "cmd", uint32(req.Cmd))
				continue
			}
			select {
			case controls <- c:
			default:
				h.logger.Warn("Control queue full, dropping control", "control", c)
			}
		}
	}
}

func controlForRequest(cmd svc.Cmd) (Control, bool) {
	switch cmd {
	case svc.Stop:
		return Stop, true
	case svc.Shutdown, svc.PreShutdown:
		return Shutdown, true
	case svc.Pause:
		return Pause, true
	case svc.Continue:
		return Continue, true
	case svc.Interrogate:
		return Interrogate, true
	case svc.ParamChange:
		return ParamChange, true
	default:
		return 0, false
	}
}

// scmReporter pushes status records back to the SCM.
type scmReporter struct {
	changes chan<- svc.Status
}

func (r *scmReporter) Report(s Status) error {
	r.changes <- svc.Status{
		State:                   svc.State(s.State),
		Accepts:                 toSvcAccepted(s.Accepts),
		WaitHint:                uint32(s.WaitHint.Milliseconds()),
		ServiceSpecificExitCode: s.ExitCode,
	}
	return nil
}

func toSvcAccepted(a Accept) svc.Accepted {
	var out svc.Accepted
	if a.Has(AcceptStop) {
		out |= svc.AcceptStop
	}
	if a.Has(AcceptPauseContinue) {
		out |= svc.AcceptPauseAndContinue
	}
	if a.Has(AcceptShutdown) {
		out |= svc.AcceptShutdown
	}
	if a.Has(AcceptParamChange) {
		out |= svc.AcceptParamChange
	}
	return out
}
