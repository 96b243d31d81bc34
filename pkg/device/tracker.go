package device

import (
	"iter"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// TrackedDevice is one physically connected device, valid from plug to
// unplug. Unplugged resolves successfully when the device goes away; if the
// pipeline stops first it never resolves, so callers wait with their own
// context.
type TrackedDevice struct {
	ID        string
	Port      string
	VendorID  string
	ProductID string
	PluggedAt time.Time
	Unplugged *Signal
}

// Identity returns the vendor:product pair of the device.
func (d *TrackedDevice) Identity() Identity {
	return Identity{VendorID: d.VendorID, ProductID: d.ProductID}
}

// Tracker correlates plug and unplug events into TrackedDevices.
type Tracker struct {
	logger *slog.Logger
}

// NewTracker creates a new tracker
func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{logger: logger}
}

// Track correlates events in arrival order. Each call owns a fresh session
// table that is only touched by the goroutine ranging over the result.
//
// A Plug for an idle port yields a new TrackedDevice before anything else is
// pulled. A Plug for a port that is already active is a duplicate and is
// ignored. An Unplug for an active port resolves that device's signal and
// frees the port; an Unplug for an idle port is ignored. An upstream error
// is yielded as the last item. When the stream ends for any reason the
// remaining sessions are dropped unresolved.
func (t *Tracker) Track(events iter.Seq2[Event, error]) iter.Seq2[*TrackedDevice, error] {
	return func(yield func(*TrackedDevice, error) bool) {
		active := make(map[string]*resolver)
		defer func() {
			if len(active) > 0 {
				t.logger.Debug("Tracking stopped with devices still connected", "count", len(active))
			}
		}()

		for ev, err := range events {
			if err != nil {
				t.logger.Warn("Device event stream failed", "error", err)
				yield(nil, err)
				return
			}

			switch ev.Kind {
			case Plug:
				if _, exists := active[ev.Port]; exists {
					t.logger.Debug("Ignoring duplicate plug",
						"port", ev.Port,
						"vendor", ev.VendorID,
						"product", ev.ProductID)
					continue
				}

				sig, r := newSignal()
				dev := &TrackedDevice{
					ID:        uuid.New().String(),
					Port:      ev.Port,
					VendorID:  ev.VendorID,
					ProductID: ev.ProductID,
					PluggedAt: time.Now(),
					Unplugged: sig,
				}
				active[ev.Port] = r

				t.logger.Info("Device plugged",
					"port", dev.Port,
					"vendor", dev.VendorID,
					"product", dev.ProductID,
					"id", dev.ID)

				if !yield(dev, nil) {
					return
				}

			case Unplug:
				r, exists := active[ev.Port]
				if !exists {
					t.logger.Debug("Ignoring unplug for unknown port", "port", ev.Port)
					continue
				}
				delete(active, ev.Port)
				r.resolve(nil)

				t.logger.Info("Device unplugged",
					"port", ev.Port,
					"vendor", ev.VendorID,
					"product", ev.ProductID)
			}
		}
	}
}
