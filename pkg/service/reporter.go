package service

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// ConsoleReporter only logs status changes. It is used when the process is
// not running under a service manager.
type ConsoleReporter struct {
	logger *slog.Logger
}

// NewConsoleReporter creates a new console reporter
func NewConsoleReporter(logger *slog.Logger) *ConsoleReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsoleReporter{logger: logger}
}

func (r *ConsoleReporter) Report(s Status) error {
	r.logger.Debug("Service status",
		"type", s.Type,
		"state", s.State,
		"accepts", s.Accepts,
		"message", s.Message)
	return nil
}

// SystemdReporter speaks the sd_notify protocol over NOTIFY_SOCKET.
type SystemdReporter struct {
	logger     *slog.Logger
	socketPath string
}

// NewSystemdReporter reads NOTIFY_SOCKET from the environment.
func NewSystemdReporter(logger *slog.Logger) *SystemdReporter {
	if logger == nil {
		logger = slog.Default()
	}
	socketPath := os.Getenv("NOTIFY_SOCKET")
	// Handle abstract socket notation
	if strings.HasPrefix(socketPath, "@") {
		socketPath = "\x00" + socketPath[1:]
	}
	return &SystemdReporter{logger: logger, socketPath: socketPath}
}

// Available reports whether systemd handed us a notify socket.
func (r *SystemdReporter) Available() bool {
	return r.socketPath != ""
}

// Report sends the sd_notify assignments matching s. Without a notify socket
// it does nothing.
func (r *SystemdReporter) Report(s Status) error {
	return r.Notify(notifyState(s)...)
}

// Notify sends raw sd_notify assignments in a single datagram.
func (r *SystemdReporter) Notify(assignments ...string) error {
	if !r.Available() || len(assignments) == 0 {
		return nil
	}

	conn, err := net.Dial("unixgram", r.socketPath)
	if err != nil {
		return fmt.Errorf("failed to connect to systemd notify socket: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(strings.Join(assignments, "\n"))); err != nil {
		return fmt.Errorf("failed to send systemd notification: %w", err)
	}
	return nil
}

// Watchdog pings systemd at half of WATCHDOG_USEC until ctx is done. It
// returns at once when no watchdog is configured.
func (r *SystemdReporter) Watchdog(ctx context.Context) {
	if !r.Available() {
		return
	}

	watchdogUsec := os.Getenv("WATCHDOG_USEC")
	if watchdogUsec == "" {
		return
	}

	usec, err := strconv.ParseInt(watchdogUsec, 10, 64)
	if err != nil || usec <= 0 {
		r.logger.Debug("Invalid WATCHDOG_USEC value", "value", watchdogUsec, "error", err)
		return
	}

	interval := time.Duration(usec) * time.Microsecond / 2
	r.logger.Debug("Starting watchdog loop", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.Notify("WATCHDOG=1"); err != nil {
				r.logger.Debug("Failed to ping watchdog", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func notifyState(s Status) []string {
	var out []string
	switch s.State {
	case Running:
		out = append(out, "READY=1")
	case StopPending, Stopped:
		out = append(out, "STOPPING=1")
	}
	if s.WaitHint > 0 && (s.State == StartPending || s.State == StopPending) {
		out = append(out, fmt.Sprintf("EXTEND_TIMEOUT_USEC=%d", s.WaitHint.Microseconds()))
	}
	if s.Message != "" {
		out = append(out, "STATUS="+s.Message)
	}
	return out
}
