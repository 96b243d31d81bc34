package device

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"
)

func TestGateFireTwice(t *testing.T) {
	g := NewGate()
	if g.IsFired() {
		t.Fatal("new gate is already fired")
	}
	if err := g.Fire(); err != nil {
		t.Fatalf("first Fire() error = %v", err)
	}
	if !g.IsFired() {
		t.Fatal("gate not fired after Fire()")
	}
	if err := g.Fire(); !errors.Is(err, ErrGateFired) {
		t.Fatalf("second Fire() error = %v, want ErrGateFired", err)
	}
}

func TestGateConcurrentFire(t *testing.T) {
	g := NewGate()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Fire() == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Errorf("%d Fire() calls succeeded, want exactly 1", succeeded)
	}
}

func TestGateContext(t *testing.T) {
	g := NewGate()
	ctx, cancel := g.Context(context.Background())
	defer cancel()

	select {
	case <-ctx.Done():
		t.Fatal("context done before gate fired")
	default:
	}

	_ = g.Fire()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled after gate fired")
	}
}

func TestGateContextParentCancelled(t *testing.T) {
	g := NewGate()
	parent, cancelParent := context.WithCancel(context.Background())
	ctx, cancel := g.Context(parent)
	defer cancel()

	cancelParent()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled with its parent")
	}

	// firing after the parent is gone must not panic or block
	if err := g.Fire(); err != nil {
		t.Fatalf("Fire() error = %v", err)
	}
}

func TestGateContextHoldsNoGoroutine(t *testing.T) {
	g := NewGate()
	before := runtime.NumGoroutine()

	cancels := make([]context.CancelFunc, 0, 100)
	for i := 0; i < 100; i++ {
		_, cancel := g.Context(context.Background())
		cancels = append(cancels, cancel)
	}
	if after := runtime.NumGoroutine(); after-before >= 100 {
		t.Errorf("NumGoroutine() grew from %d to %d for unfired contexts", before, after)
	}

	for _, cancel := range cancels {
		cancel()
	}
}

func TestTakeUntilFiredBeforeStart(t *testing.T) {
	g := NewGate()
	_ = g.Fire()

	pulled := 0
	seq := func(yield func(Event, error) bool) {
		pulled++
		yield(plugEv("2FE3", "0100", "COM3"), nil)
	}

	for range TakeUntil(g, seq) {
		t.Fatal("item delivered through a fired gate")
	}
	if pulled != 0 {
		t.Errorf("source pulled %d times through a fired gate", pulled)
	}
}

// TestGateBetweenEvents fires the gate while the consumer holds the first
// device; the events queued after it must never reach the correlator.
func TestGateBetweenEvents(t *testing.T) {
	src := newChanSource(plug("2FE3", "0100", "COM3"))
	gate := NewGate()
	p := newTestPipeline(t, src, gate)

	stream, err := p.Devices(context.Background())
	if err != nil {
		t.Fatalf("Devices() error = %v", err)
	}

	var devices []*TrackedDevice
	done := make(chan struct{})
	go func() {
		defer close(done)
		for dev, err := range stream {
			if err != nil {
				t.Errorf("unexpected stream error: %v", err)
				return
			}
			devices = append(devices, dev)
			if len(devices) == 1 {
				if err := gate.Fire(); err != nil {
					t.Errorf("Fire() error = %v", err)
				}
				src.ch <- unplug("2FE3", "0100", "COM3")
				src.ch <- plug("2FE3", "0100", "COM4")
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after the gate fired")
	}

	if len(devices) != 1 {
		t.Fatalf("got %d devices, want 1", len(devices))
	}
	if devices[0].Unplugged.Resolved() {
		t.Error("unplug after the gate fired reached the correlator")
	}
}

func TestGateWakesBlockedPipeline(t *testing.T) {
	src := newChanSource()
	gate := NewGate()
	p := newTestPipeline(t, src, gate)

	stream, err := p.Devices(context.Background())
	if err != nil {
		t.Fatalf("Devices() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range stream {
			t.Error("unexpected device")
		}
	}()

	time.Sleep(10 * time.Millisecond)
	_ = gate.Fire()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("blocked pipeline was not woken by the gate")
	}
}
