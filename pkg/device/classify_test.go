package device

import (
	"context"
	"errors"
	"testing"
)

func TestPlugEvent(t *testing.T) {
	tests := []struct {
		name   string
		input  Notification
		want   Event
		wantOK bool
	}{
		{
			name:   "add",
			input:  plug("2FE3", "0100", "COM3"),
			want:   plugEv("2FE3", "0100", "COM3"),
			wantOK: true,
		},
		{
			name:   "remove",
			input:  unplug("2FE3", "0100", "COM3"),
			want:   unplugEv("2FE3", "0100", "COM3"),
			wantOK: true,
		},
		{
			name:   "lower case ids",
			input:  plug("2fe3", "01ab", "/dev/ttyACM0"),
			want:   plugEv("2FE3", "01AB", "/dev/ttyACM0"),
			wantOK: true,
		},
		{
			name:  "change",
			input: Notification{Action: ActionChange, VendorID: "2FE3", ProductID: "0100", Port: "COM3"},
		},
		{
			name:  "bind",
			input: Notification{Action: ActionBind, VendorID: "2FE3", ProductID: "0100", Port: "COM3"},
		},
		{
			name:  "missing port",
			input: plug("2FE3", "0100", ""),
		},
		{
			name:  "missing identity",
			input: plug("", "", "COM3"),
		},
		{
			name:  "malformed identity",
			input: plug("2FE", "0100", "COM3"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := PlugEvent(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("PlugEvent() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("PlugEvent() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestClassifyErrors(t *testing.T) {
	src := finiteSource(
		Notification{Err: errors.New("overrun")},
		plug("2FE3", "0100", "COM3"),
		Notification{Err: newError(ChannelClosed, "test", nil)},
		unplug("2FE3", "0100", "COM3"),
	)

	var (
		events []Event
		errs   []error
	)
	for ev, err := range Classify(Listen(context.Background(), src), discardLogger()) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		events = append(events, ev)
	}

	if len(events) != 1 || events[0].Kind != Plug {
		t.Errorf("events = %v, want a single plug", events)
	}
	if len(errs) != 1 || !errors.Is(errs[0], ErrChannelClosed) {
		t.Errorf("errors = %v, want a single ChannelClosed", errs)
	}
}
