//go:build !windows

package service

import "context"

func run(ctx context.Context, cfg Config, fn Func) error {
	var reporter Reporter = NewConsoleReporter(cfg.Logger)

	if cfg.Systemd {
		sd := NewSystemdReporter(cfg.Logger)
		if sd.Available() {
			reporter = sd

			watchdogCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			go sd.Watchdog(watchdogCtx)
		} else {
			cfg.Logger.Warn("Systemd mode requested but NOTIFY_SOCKET is not set")
		}
	}

	return runInteractive(ctx, cfg, reporter, fn)
}
