package daemon

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
)

// writePIDFile writes the current process ID to a file
func (d *Daemon) writePIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	pid := os.Getpid()
	if err := os.WriteFile(d.pidFile, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	d.logger.Debug("Wrote PID file", "path", d.pidFile, "pid", pid)
	return nil
}

// removePIDFile removes the PID file
func (d *Daemon) removePIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// listen opens the status socket, preferring one handed over by systemd
// socket activation.
func (d *Daemon) listen() (net.Listener, error) {
	if d.systemdMode {
		if l := d.activatedListener(); l != nil {
			return l, nil
		}
	}

	if d.config.Network != "unix" {
		return net.Listen(d.config.Network, d.config.Address)
	}

	// Remove a stale socket from a previous run
	if err := os.RemoveAll(d.config.Address); err != nil {
		return nil, fmt.Errorf("failed to remove existing socket: %w", err)
	}

	socketDir := filepath.Dir(d.config.Address)
	if err := os.MkdirAll(socketDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}

	return listenPrivate(d.config.Network, d.config.Address)
}

// activatedListener returns the first socket passed via LISTEN_FDS, or nil.
func (d *Daemon) activatedListener() net.Listener {
	listenFDs := os.Getenv("LISTEN_FDS")
	if listenFDs == "" {
		return nil
	}

	numFDs, err := strconv.Atoi(listenFDs)
	if err != nil || numFDs < 1 {
		return nil
	}

	// File descriptors start at 3 (0=stdin, 1=stdout, 2=stderr)
	file := os.NewFile(uintptr(3), "systemd-socket")
	if file == nil {
		return nil
	}
	defer file.Close()

	listener, err := net.FileListener(file)
	if err != nil {
		d.logger.Warn("Failed to create listener from systemd socket", "error", err)
		return nil
	}

	d.activated = true
	d.logger.Info("Using systemd socket activation")
	return listener
}
