package device

import (
	"context"
	"errors"
	"iter"
	"sync"
)

// ErrGateFired is returned by Gate.Fire on every call after the first.
var ErrGateFired = errors.New("cancellation gate already fired")

// Gate is a one-shot cancellation signal owned by whoever runs the pipeline.
type Gate struct {
	once   sync.Once
	fired  chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// NewGate returns an unfired gate.
func NewGate() *Gate {
	ctx, cancel := context.WithCancel(context.Background())
	return &Gate{fired: make(chan struct{}), ctx: ctx, cancel: cancel}
}

// Fire trips the gate. Firing again is a no-op that returns ErrGateFired.
func (g *Gate) Fire() error {
	err := ErrGateFired
	g.once.Do(func() {
		close(g.fired)
		g.cancel()
		err = nil
	})
	return err
}

// Fired is closed once the gate has been fired.
func (g *Gate) Fired() <-chan struct{} {
	return g.fired
}

// IsFired reports whether Fire has been called.
func (g *Gate) IsFired() bool {
	select {
	case <-g.fired:
		return true
	default:
		return false
	}
}

// Context returns a child of parent that is cancelled when the gate fires.
// It wakes a Listen blocked on the source; TakeUntil does the actual gating.
// No goroutine is held: the link to the gate is dropped once the returned
// context is done for any reason.
func (g *Gate) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	unlink := context.AfterFunc(g.ctx, cancel)
	context.AfterFunc(ctx, func() { unlink() })
	return ctx, cancel
}

// TakeUntil forwards items from seq until the gate fires. The check happens
// before each item is handed on, so nothing pulled after the firing reaches
// downstream, while an item already handed on is processed to completion.
func TakeUntil[T any](g *Gate, seq iter.Seq2[T, error]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		if g.IsFired() {
			return
		}
		for v, err := range seq {
			if g.IsFired() {
				return
			}
			if !yield(v, err) {
				return
			}
		}
	}
}
