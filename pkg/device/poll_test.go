package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.bug.st/serial/enumerator"
)

// fakePorts is a swappable port list for PollSource.list.
type fakePorts struct {
	mu    sync.Mutex
	ports []*enumerator.PortDetails
	err   error
}

func (f *fakePorts) set(ports ...*enumerator.PortDetails) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ports = ports
}

func (f *fakePorts) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakePorts) list() ([]*enumerator.PortDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.ports, nil
}

func usbPort(name, vid, pid string) *enumerator.PortDetails {
	return &enumerator.PortDetails{Name: name, IsUSB: true, VID: vid, PID: pid}
}

func newTestPollSource(t *testing.T, fake *fakePorts, enumerate bool) *PollSource {
	t.Helper()
	s := NewPollSource(SourceConfig{
		Kind:         SourcePoll,
		PollInterval: 5 * time.Millisecond,
		Enumerate:    enumerate,
		DevDir:       t.TempDir(),
		Logger:       discardLogger(),
	})
	s.list = fake.list
	return s
}

// nextNotification waits for one notification or fails the test.
func nextNotification(t *testing.T, ch <-chan Notification) Notification {
	t.Helper()
	select {
	case n, ok := <-ch:
		if !ok {
			t.Fatal("notification channel closed")
		}
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
	return Notification{}
}

func TestUSBPorts(t *testing.T) {
	ports := []*enumerator.PortDetails{
		usbPort("/dev/ttyACM0", "2fe3", "100"),
		{Name: "/dev/ttyS0"},
		usbPort("/dev/ttyUSB0", "", ""),
		usbPort("/dev/ttyUSB1", "zzzz", "0001"),
		nil,
	}

	got := usbPorts(ports)
	if len(got) != 1 {
		t.Fatalf("usbPorts() = %v, want one port", got)
	}
	if got["/dev/ttyACM0"] != ID("2FE3", "0100") {
		t.Errorf("usbPorts()[ttyACM0] = %v, want 2FE3:0100", got["/dev/ttyACM0"])
	}
}

func TestPollDiff(t *testing.T) {
	s := NewPollSource(SourceConfig{Logger: discardLogger()})
	s.known = map[string]Identity{
		"COM1": ID("2FE3", "0100"),
		"COM2": ID("2FE3", "0100"),
		"COM3": ID("1234", "5678"),
	}

	got := s.diff(map[string]Identity{
		"COM1": ID("2FE3", "0100"),
		"COM3": ID("2FE3", "0100"), // different device on the same port
		"COM4": ID("2FE3", "0100"),
	})

	want := []struct {
		action Action
		port   string
		id     Identity
	}{
		{ActionRemove, "COM2", ID("2FE3", "0100")},
		{ActionRemove, "COM3", ID("1234", "5678")},
		{ActionAdd, "COM3", ID("2FE3", "0100")},
		{ActionAdd, "COM4", ID("2FE3", "0100")},
	}

	if len(got) != len(want) {
		t.Fatalf("diff() returned %d notifications, want %d: %+v", len(got), len(want), got)
	}
	for i, w := range want {
		if got[i].Action != w.action || got[i].Port != w.port || got[i].Identity() != w.id {
			t.Errorf("diff()[%d] = %s %s %v, want %s %s %v",
				i, got[i].Action, got[i].Port, got[i].Identity(), w.action, w.port, w.id)
		}
	}

	if len(s.known) != 3 {
		t.Errorf("known has %d ports after diff, want 3", len(s.known))
	}
}

func TestPollSourceEnumerate(t *testing.T) {
	fake := &fakePorts{}
	fake.set(
		usbPort("/dev/ttyACM1", "2FE3", "0100"),
		usbPort("/dev/ttyACM0", "2FE3", "0100"),
	)
	s := newTestPollSource(t, fake, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	first := nextNotification(t, s.Notifications())
	second := nextNotification(t, s.Notifications())
	if first.Port != "/dev/ttyACM0" || second.Port != "/dev/ttyACM1" {
		t.Errorf("initial ports = %s, %s, want sorted", first.Port, second.Port)
	}
	if first.Action != ActionAdd || second.Action != ActionAdd {
		t.Errorf("initial actions = %s, %s, want add", first.Action, second.Action)
	}

	cancel()
	drainNotifications(t, s.Notifications(), 2*time.Second)
}

func TestPollSourceDetectsChanges(t *testing.T) {
	fake := &fakePorts{}
	fake.set(usbPort("/dev/ttyACM0", "2FE3", "0100"))
	s := newTestPollSource(t, fake, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// already present at start and not enumerated, so only the change shows
	fake.set(usbPort("/dev/ttyACM0", "2FE3", "0100"), usbPort("/dev/ttyACM1", "2FE3", "0100"))
	n := nextNotification(t, s.Notifications())
	if n.Action != ActionAdd || n.Port != "/dev/ttyACM1" {
		t.Errorf("got %s %s, want add /dev/ttyACM1", n.Action, n.Port)
	}

	fake.set(usbPort("/dev/ttyACM1", "2FE3", "0100"))
	n = nextNotification(t, s.Notifications())
	if n.Action != ActionRemove || n.Port != "/dev/ttyACM0" {
		t.Errorf("got %s %s, want remove /dev/ttyACM0", n.Action, n.Port)
	}
	if n.Identity() != ID("2FE3", "0100") {
		t.Errorf("removal identity = %v, want 2FE3:0100", n.Identity())
	}

	cancel()
	drainNotifications(t, s.Notifications(), 2*time.Second)
}

func TestPollSourceSetupFailures(t *testing.T) {
	t.Run("unsupported class", func(t *testing.T) {
		s := NewPollSource(SourceConfig{Classes: []DeviceClass{HIDClass}, Logger: discardLogger()})
		if err := s.Start(context.Background()); !errors.Is(err, ErrSetupFailure) {
			t.Errorf("Start() error = %v, want SetupFailure", err)
		}
	})

	t.Run("enumeration fails", func(t *testing.T) {
		fake := &fakePorts{}
		fake.fail(errors.New("access denied"))
		s := newTestPollSource(t, fake, false)
		if err := s.Start(context.Background()); !errors.Is(err, ErrSetupFailure) {
			t.Errorf("Start() error = %v, want SetupFailure", err)
		}
	})
}

func TestPollSourceLost(t *testing.T) {
	fake := &fakePorts{}
	s := newTestPollSource(t, fake, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	fake.fail(errors.New("bus gone"))

	notes := drainNotifications(t, s.Notifications(), 2*time.Second)
	if len(notes) != maxScanFailures {
		t.Fatalf("got %d notifications, want %d", len(notes), maxScanFailures)
	}
	for _, n := range notes[:maxScanFailures-1] {
		if n.Err == nil || IsTerminal(n.Err) {
			t.Errorf("intermediate notification = %+v, want a non-terminal error", n)
		}
	}
	if last := notes[len(notes)-1]; !errors.Is(last.Err, ErrSourceLost) {
		t.Errorf("last notification error = %v, want SourceLost", last.Err)
	}
}
