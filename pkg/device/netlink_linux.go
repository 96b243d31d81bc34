//go:build linux

package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sys/unix"
)

// kernelUeventGroup is the multicast group the kernel publishes raw uevents
// on. Group 2 carries udevd's rebroadcast, which we don't want.
const kernelUeventGroup = 1

// netlinkSource reads kernel uevents from a NETLINK_KOBJECT_UEVENT socket
// for edge-triggered arrival/removal. It implements Source.
type netlinkSource struct {
	cfg    SourceConfig
	logger *slog.Logger
	tr     *ueventTranslator
	events chan Notification
}

// probeNetlink checks that a uevent socket can be opened and bound in this
// process, e.g. not blocked by a sandbox or missing network namespace.
func probeNetlink() error {
	fd, err := openUeventSocket()
	if err != nil {
		return err
	}
	return unix.Close(fd)
}

func openUeventSocket() (int, error) {
	fd, err := unix.Socket(
		unix.AF_NETLINK,
		unix.SOCK_RAW|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK,
		unix.NETLINK_KOBJECT_UEVENT,
	)
	if err != nil {
		return -1, fmt.Errorf("open uevent socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Groups: kernelUeventGroup,
	}); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("bind uevent socket: %w", err)
	}
	return fd, nil
}

func newNetlinkSource(cfg SourceConfig) (Source, error) {
	cfg = cfg.withDefaults()
	tr, err := newUeventTranslator(cfg.SysfsRoot, cfg.Classes)
	if err != nil {
		return nil, newError(SetupFailure, "netlink source", err)
	}
	return &netlinkSource{
		cfg:    cfg,
		logger: cfg.Logger,
		tr:     tr,
		events: make(chan Notification, 64),
	}, nil
}

func newPlatformSource(cfg SourceConfig) Source {
	if err := probeNetlink(); err != nil {
		cfg.Logger.Info("netlink uevents not available, falling back to polling", "error", err)
		return NewPollSource(cfg)
	}
	src, err := newNetlinkSource(cfg)
	if err != nil {
		cfg.Logger.Info("netlink source unsupported for classes, falling back to polling", "error", err)
		return NewPollSource(cfg)
	}
	cfg.Logger.Info("using netlink uevent monitoring")
	return src
}

func (s *netlinkSource) Start(ctx context.Context) error {
	fd, err := openUeventSocket()
	if err != nil {
		return newError(SetupFailure, "netlink source", err)
	}

	// A bigger receive buffer makes ENOBUFS during hub resets less likely.
	// Failing to raise it is not fatal.
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, 1<<20); err != nil {
		s.logger.Debug("failed to raise uevent socket buffer", "error", err)
	}

	var closePipe [2]int
	if err := unix.Pipe2(closePipe[:], unix.O_CLOEXEC); err != nil {
		_ = unix.Close(fd)
		return newError(SetupFailure, "netlink source", fmt.Errorf("create close pipe: %w", err))
	}

	// signal the read loop to exit by hanging up the pipe
	stop := sync.OnceFunc(func() {
		_ = unix.Close(closePipe[1])
	})
	context.AfterFunc(ctx, stop)

	go s.readLoop(ctx, fd, closePipe[0], stop)
	return nil
}

func (s *netlinkSource) Notifications() <-chan Notification {
	return s.events
}

func (s *netlinkSource) String() string {
	return SourceNetlink
}

func (s *netlinkSource) readLoop(ctx context.Context, fd, pipeFd int, stop func()) {
	defer close(s.events)
	defer func() {
		_ = unix.Close(fd)
		_ = unix.Close(pipeFd)
	}()
	defer stop()

	if s.cfg.Enumerate {
		existing, err := s.tr.enumerate()
		if err != nil {
			s.logger.Warn("failed to enumerate existing devices", "error", err)
		}
		for _, n := range existing {
			s.logger.Debug("existing device", "port", n.Port, "vendor", n.VendorID, "product", n.ProductID)
			if !emit(ctx, s.events, n) {
				return
			}
		}
	}

	fds := []unix.PollFd{
		{Fd: int32(pipeFd), Events: unix.POLLIN},
		{Fd: int32(fd), Events: unix.POLLIN},
	}
	buf := make([]byte, 64*1024)

	for {
		_, err := unix.Poll(fds, -1)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			s.lost(ctx, fmt.Errorf("poll: %w", err))
			return
		}

		if fds[0].Revents != 0 {
			return
		}

		if fds[1].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 && fds[1].Revents&unix.POLLIN == 0 {
			s.lost(ctx, fmt.Errorf("uevent socket revents 0x%x", fds[1].Revents))
			return
		}

		if fds[1].Revents&unix.POLLIN != 0 {
			if !s.drain(ctx, fd, buf) {
				return
			}
		}
	}
}

// drain reads every queued datagram. It returns false once the loop should
// exit.
func (s *netlinkSource) drain(ctx context.Context, fd int, buf []byte) bool {
	for {
		n, from, err := unix.Recvfrom(fd, buf, 0)
		if err != nil {
			switch {
			case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EWOULDBLOCK):
				return true
			case errors.Is(err, unix.EINTR):
				continue
			case errors.Is(err, unix.ENOBUFS):
				s.logger.Warn("uevent socket overrun, notifications were lost")
				return emit(ctx, s.events, Notification{Err: fmt.Errorf("uevent overrun: %w", err)})
			default:
				s.lost(ctx, fmt.Errorf("recv: %w", err))
				return false
			}
		}

		// only trust messages from the kernel itself
		if sa, ok := from.(*unix.SockaddrNetlink); !ok || sa.Pid != 0 {
			continue
		}

		env, err := parseUevent(buf[:n])
		if err != nil {
			if !emit(ctx, s.events, Notification{Err: err}) {
				return false
			}
			continue
		}

		note, ok := s.tr.translate(env)
		if !ok {
			continue
		}

		s.logger.Debug("uevent",
			"action", note.Action,
			"port", note.Port,
			"vendor", note.VendorID,
			"product", note.ProductID)

		if !emit(ctx, s.events, note) {
			return false
		}
	}
}

func (s *netlinkSource) lost(ctx context.Context, err error) {
	s.logger.Error("uevent source lost", "error", err)
	emit(ctx, s.events, Notification{Err: newError(SourceLost, "netlink source", err)})
}
