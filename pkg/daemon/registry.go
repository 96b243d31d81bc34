package daemon

import (
	"sort"
	"sync"

	"github.com/phinze/plugwatch/pkg/device"
)

// Registry is the daemon's view of connected devices. It is written by the
// tracking loop and read by connection handlers. Unplugged devices stay
// until the next List or Counts, so Get keeps finding them.
type Registry struct {
	mu      sync.Mutex
	devices map[string]*device.TrackedDevice
	total   int
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{devices: make(map[string]*device.TrackedDevice)}
}

// Add records a newly plugged device.
func (r *Registry) Add(dev *device.TrackedDevice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[dev.ID] = dev
	r.total++
}

// Get returns a connected device by session id. A device that has been
// unplugged is still returned until the next List or Counts, so a waiter
// racing the unplug sees it resolved rather than unknown.
func (r *Registry) Get(id string) (*device.TrackedDevice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dev, ok := r.devices[id]
	return dev, ok
}

// List returns the connected devices, oldest first.
func (r *Registry) List() []*device.TrackedDevice {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked()

	out := make([]*device.TrackedDevice, 0, len(r.devices))
	for _, dev := range r.devices {
		out = append(out, dev)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PluggedAt.Equal(out[j].PluggedAt) {
			return out[i].Port < out[j].Port
		}
		return out[i].PluggedAt.Before(out[j].PluggedAt)
	})
	return out
}

// Counts returns the number of connected devices and of devices ever seen.
func (r *Registry) Counts() (active, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked()
	return len(r.devices), r.total
}

// Clear forgets every device. Called once tracking stops, since no further
// unplug will ever be observed.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.devices)
}

func (r *Registry) pruneLocked() {
	for id, dev := range r.devices {
		if dev.Unplugged.Resolved() {
			delete(r.devices, id)
		}
	}
}
