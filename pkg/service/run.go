package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
)

// Func is the body of a service. It should set its status through h and
// return once a terminating control arrives on controls or ctx is done.
type Func func(ctx context.Context, h *Handle, controls <-chan Control) error

// Config holds configuration for running a service
type Config struct {
	Name string
	// Systemd reports status over NOTIFY_SOCKET when it is set.
	Systemd bool
	Logger  *slog.Logger
}

// Run hosts fn under the platform's service manager. When the process was
// not started by one, controls come from process signals instead.
func Run(ctx context.Context, cfg Config, fn Func) error {
	if cfg.Name == "" {
		return errors.New("service name is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return run(ctx, cfg, fn)
}

// runInteractive drives fn from process signals.
func runInteractive(ctx context.Context, cfg Config, reporter Reporter, fn Func) error {
	sigs := make(chan os.Signal, 1)
	notifySignals(sigs)
	defer signal.Stop(sigs)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	controls := make(chan Control, 4)
	go forwardSignals(ctx, cfg.Logger, sigs, controls)

	cfg.Logger.Debug("Running service interactively", "name", cfg.Name)
	return fn(ctx, NewHandle(reporter), controls)
}

// forwardSignals translates signals into controls until ctx is done, then
// offers a final Shutdown.
func forwardSignals(ctx context.Context, logger *slog.Logger, sigs <-chan os.Signal, controls chan<- Control) {
	for {
		select {
		case <-ctx.Done():
			select {
			case controls <- Shutdown:
			default:
			}
			return
		case sig := <-sigs:
			c, ok := controlForSignal(sig)
			if !ok {
				continue
			}
			logger.Info("Received signal", "signal", sig, "control", c)
			select {
			case controls <- c:
			case <-ctx.Done():
				return
			}
		}
	}
}
