package device

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"
)

// Source is implemented by anything that can emit raw device notifications.
// Both the netlink uevent source and the polling source satisfy it.
//
// Start returns setup failures synchronously. Once running, per-event
// failures are delivered in-band as a Notification with Err set; losing the
// underlying facility delivers a terminal SourceLost or ChannelClosed error
// and then closes the channel. Cancelling ctx closes the channel quietly.
type Source interface {
	Start(ctx context.Context) error
	Notifications() <-chan Notification
}

// Source kinds accepted by NewSource.
const (
	SourceAuto    = "auto"
	SourceNetlink = "netlink"
	SourcePoll    = "poll"
)

// SourceConfig holds configuration for building a Source
type SourceConfig struct {
	Kind         string
	Classes      []DeviceClass
	PollInterval time.Duration
	Enumerate    bool
	// DevDir is watched by the polling source for node creation/removal.
	DevDir string
	// SysfsRoot overrides /sys for the netlink source.
	SysfsRoot string
	Logger    *slog.Logger
}

func (c SourceConfig) withDefaults() SourceConfig {
	if len(c.Classes) == 0 {
		c.Classes = []DeviceClass{SerialPortClass}
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.DevDir == "" {
		c.DevDir = "/dev"
	}
	if c.SysfsRoot == "" {
		c.SysfsRoot = "/sys"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// NewSource returns a Source for the configured kind. "auto" picks the best
// facility available on this platform.
func NewSource(cfg SourceConfig) (Source, error) {
	cfg = cfg.withDefaults()
	switch cfg.Kind {
	case "", SourceAuto:
		return newPlatformSource(cfg), nil
	case SourcePoll:
		return NewPollSource(cfg), nil
	case SourceNetlink:
		return newNetlinkSource(cfg)
	default:
		return nil, newError(SetupFailure, "new source", fmt.Errorf("unknown source kind: %q", cfg.Kind))
	}
}

// Listen adapts a started Source into a pull-based stream. It ends when the
// source closes its channel, after a terminal error, or when ctx is done.
func Listen(ctx context.Context, src Source) iter.Seq2[Notification, error] {
	return func(yield func(Notification, error) bool) {
		ch := src.Notifications()
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-ch:
				if !ok {
					return
				}
				if n.Err != nil {
					if !yield(Notification{}, n.Err) || IsTerminal(n.Err) {
						return
					}
					continue
				}
				if !yield(n, nil) {
					return
				}
			}
		}
	}
}

// emit delivers n unless ctx is done first. Sources block rather than drop:
// losing a removal would leave a session open forever.
func emit(ctx context.Context, ch chan<- Notification, n Notification) bool {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}
	select {
	case ch <- n:
		return true
	case <-ctx.Done():
		return false
	}
}
