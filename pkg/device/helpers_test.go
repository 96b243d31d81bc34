package device

import (
	"context"
	"io"
	"iter"
	"log/slog"
	"testing"
	"time"
)

// Compile-time checks that our sources satisfy Source.
var (
	_ Source = (*PollSource)(nil)
	_ Source = (*chanSource)(nil)
)

// chanSource is a Source whose notifications are pushed by the test.
type chanSource struct {
	ch       chan Notification
	startErr error
	started  bool
	ctx      context.Context
}

func newChanSource(notes ...Notification) *chanSource {
	s := &chanSource{ch: make(chan Notification, 64)}
	for _, n := range notes {
		s.ch <- n
	}
	return s
}

// finiteSource is a chanSource that is already exhausted.
func finiteSource(notes ...Notification) *chanSource {
	s := newChanSource(notes...)
	close(s.ch)
	return s
}

func (s *chanSource) Start(ctx context.Context) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	s.ctx = ctx
	return nil
}

func (s *chanSource) Notifications() <-chan Notification {
	return s.ch
}

func plug(vid, pid, port string) Notification {
	return Notification{Action: ActionAdd, Class: SerialPortClass, VendorID: vid, ProductID: pid, Port: port}
}

func unplug(vid, pid, port string) Notification {
	return Notification{Action: ActionRemove, Class: SerialPortClass, VendorID: vid, ProductID: pid, Port: port}
}

func plugEv(vid, pid, port string) Event {
	return Event{Kind: Plug, VendorID: vid, ProductID: pid, Port: port}
}

func unplugEv(vid, pid, port string) Event {
	return Event{Kind: Unplug, VendorID: vid, ProductID: pid, Port: port}
}

// eventSeq replays a fixed list of events.
func eventSeq(events ...Event) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for _, ev := range events {
			if !yield(ev, nil) {
				return
			}
		}
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func collect(t *testing.T, seq iter.Seq2[*TrackedDevice, error]) ([]*TrackedDevice, error) {
	t.Helper()
	var devices []*TrackedDevice
	for dev, err := range seq {
		if err != nil {
			return devices, err
		}
		devices = append(devices, dev)
	}
	return devices, nil
}

// drainNotifications reads until the channel closes or timeout passes.
func drainNotifications(t *testing.T, ch <-chan Notification, timeout time.Duration) []Notification {
	t.Helper()
	var out []Notification
	deadline := time.After(timeout)
	for {
		select {
		case n, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, n)
		case <-deadline:
			t.Fatalf("timed out waiting for notification channel to close, got %d notifications", len(out))
			return out
		}
	}
}
