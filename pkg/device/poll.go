package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.bug.st/serial/enumerator"
)

// maxScanFailures is how many enumerations in a row may fail before the
// polling source gives up with SourceLost.
const maxScanFailures = 5

// PollSource detects serial devices coming and going by diffing successive
// port enumerations. It works wherever go.bug.st/serial can enumerate, and
// rescans early when the device directory changes.
type PollSource struct {
	cfg    SourceConfig
	logger *slog.Logger
	events chan Notification
	list   func() ([]*enumerator.PortDetails, error)

	// touched only by the loop goroutine after Start
	known map[string]Identity
}

// NewPollSource creates a new polling source
func NewPollSource(cfg SourceConfig) *PollSource {
	cfg = cfg.withDefaults()
	return &PollSource{
		cfg:    cfg,
		logger: cfg.Logger,
		events: make(chan Notification, 64),
		list:   enumerator.GetDetailedPortsList,
		known:  make(map[string]Identity),
	}
}

// Start takes the initial port snapshot and begins polling.
func (s *PollSource) Start(ctx context.Context) error {
	for _, c := range s.cfg.Classes {
		if c != SerialPortClass {
			return newError(SetupFailure, "poll source", fmt.Errorf("device class %s cannot be enumerated", c))
		}
	}

	ports, err := s.list()
	if err != nil {
		return newError(SetupFailure, "poll source", fmt.Errorf("enumerate serial ports: %w", err))
	}

	var initial []Notification
	for port, id := range usbPorts(ports) {
		s.known[port] = id
		if s.cfg.Enumerate {
			initial = append(initial, s.notification(ActionAdd, port, id))
		}
		s.logger.Debug("initial serial port detected", "port", port, "identity", id)
	}
	sortNotifications(initial)

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		if err = watcher.Add(s.cfg.DevDir); err != nil {
			_ = watcher.Close()
			watcher = nil
		}
	}
	if err != nil {
		s.logger.Debug("device directory watch unavailable, relying on polling",
			"dir", s.cfg.DevDir,
			"error", err)
	}

	go s.loop(ctx, watcher, initial)
	return nil
}

// Notifications returns the channel of raw notifications
func (s *PollSource) Notifications() <-chan Notification {
	return s.events
}

func (s *PollSource) String() string {
	return SourcePoll
}

func (s *PollSource) loop(ctx context.Context, watcher *fsnotify.Watcher, initial []Notification) {
	defer close(s.events)

	var (
		wake  <-chan fsnotify.Event
		werrs <-chan error
	)
	if watcher != nil {
		defer func() {
			_ = watcher.Close()
		}()
		wake, werrs = watcher.Events, watcher.Errors
	}

	for _, n := range initial {
		if !emit(ctx, s.events, n) {
			return
		}
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case ev, ok := <-wake:
			if !ok {
				emit(ctx, s.events, Notification{
					Err: newError(ChannelClosed, "poll source", errors.New("device directory watch closed")),
				})
				return
			}
			s.logger.Debug("device directory changed", "name", ev.Name, "op", ev.Op.String())
		case err, ok := <-werrs:
			if !ok {
				werrs = nil
				continue
			}
			if !emit(ctx, s.events, Notification{Err: fmt.Errorf("device directory watch: %w", err)}) {
				return
			}
			continue
		}

		ports, err := s.list()
		if err != nil {
			failures++
			s.logger.Debug("failed to enumerate serial ports", "error", err, "failures", failures)
			if failures >= maxScanFailures {
				emit(ctx, s.events, Notification{
					Err: newError(SourceLost, "poll source", fmt.Errorf("enumeration failed %d times: %w", failures, err)),
				})
				return
			}
			if !emit(ctx, s.events, Notification{Err: err}) {
				return
			}
			continue
		}
		failures = 0

		for _, n := range s.diff(usbPorts(ports)) {
			if !emit(ctx, s.events, n) {
				return
			}
		}
	}
}

// diff updates the known set and returns removals before arrivals, so a port
// reused by a different device within one interval reads as unplug then plug.
func (s *PollSource) diff(current map[string]Identity) []Notification {
	var removed, added []Notification

	for port, id := range s.known {
		if cur, ok := current[port]; !ok || cur != id {
			delete(s.known, port)
			removed = append(removed, s.notification(ActionRemove, port, id))
			s.logger.Info("serial port removed", "port", port, "identity", id)
		}
	}
	for port, id := range current {
		if _, ok := s.known[port]; !ok {
			s.known[port] = id
			added = append(added, s.notification(ActionAdd, port, id))
			s.logger.Info("serial port added", "port", port, "identity", id)
		}
	}

	sortNotifications(removed)
	sortNotifications(added)
	return append(removed, added...)
}

func (s *PollSource) notification(action Action, port string, id Identity) Notification {
	return Notification{
		Action:    action,
		Class:     SerialPortClass,
		VendorID:  id.VendorID,
		ProductID: id.ProductID,
		Port:      port,
		Timestamp: time.Now(),
	}
}

// usbPorts keeps only ports that report a usable USB identity.
func usbPorts(ports []*enumerator.PortDetails) map[string]Identity {
	out := make(map[string]Identity, len(ports))
	for _, p := range ports {
		if p == nil || !p.IsUSB {
			continue
		}
		id := Identity{VendorID: canonicalHexID(p.VID), ProductID: canonicalHexID(p.PID)}
		if id.VendorID == "" || id.ProductID == "" {
			continue
		}
		out[p.Name] = id
	}
	return out
}

func sortNotifications(ns []Notification) {
	sort.Slice(ns, func(i, j int) bool { return ns[i].Port < ns[j].Port })
}

// Identity returns the vendor:product pair carried by the notification.
func (n Notification) Identity() Identity {
	return Identity{VendorID: n.VendorID, ProductID: n.ProductID}
}
