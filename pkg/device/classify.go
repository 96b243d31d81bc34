package device

import (
	"iter"
	"log/slog"
)

// PlugEvent maps a raw notification to a plug or unplug event. Anything that
// is not an arrival or removal, or lacks a port or a well-formed identity,
// is reported as not an event.
func PlugEvent(n Notification) (Event, bool) {
	var kind EventKind
	switch n.Action {
	case ActionAdd:
		kind = Plug
	case ActionRemove:
		kind = Unplug
	default:
		return Event{}, false
	}

	if n.Port == "" {
		return Event{}, false
	}
	id, err := n.Identity().Normalize()
	if err != nil {
		return Event{}, false
	}

	return Event{
		Kind:      kind,
		VendorID:  id.VendorID,
		ProductID: id.ProductID,
		Port:      n.Port,
	}, true
}

// Classify applies PlugEvent over a notification stream. Per-event errors are
// noise and are dropped; terminal errors are passed on and end the stream.
func Classify(notes iter.Seq2[Notification, error], logger *slog.Logger) iter.Seq2[Event, error] {
	if logger == nil {
		logger = slog.Default()
	}
	return func(yield func(Event, error) bool) {
		for n, err := range notes {
			if err != nil {
				if IsTerminal(err) {
					yield(Event{}, err)
					return
				}
				logger.Debug("dropping notification error", "error", err)
				continue
			}
			ev, ok := PlugEvent(n)
			if !ok {
				continue
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}
