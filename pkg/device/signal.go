package device

import (
	"context"
	"sync"
)

// Signal is a single-resolution completion cell. One resolver writes it at
// most once; any number of observers may wait on it. An observer giving up
// (ctx cancelled) has no effect on the resolver or other observers.
type Signal struct {
	done chan struct{}
	mu   sync.Mutex
	err  error
	set  bool
}

// resolver is the write side of a Signal. Only the Tracker holds one.
type resolver struct {
	sig *Signal
}

func newSignal() (*Signal, *resolver) {
	s := &Signal{done: make(chan struct{})}
	return s, &resolver{sig: s}
}

// resolve writes the outcome. Later calls are ignored and return false.
func (r *resolver) resolve(err error) bool {
	s := r.sig
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set {
		return false
	}
	s.err = err
	s.set = true
	close(s.done)
	return true
}

// Done is closed once the signal resolves. It stays open forever if the
// resolver was dropped.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}

// Resolved reports whether the signal has been written.
func (s *Signal) Resolved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set
}

// Err returns the resolved outcome. It is nil both before resolution and
// after a successful one; use Resolved or Done to tell them apart.
func (s *Signal) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Wait blocks until the signal resolves or ctx is done. A ctx error is
// returned as is and leaves the signal untouched.
func (s *Signal) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
