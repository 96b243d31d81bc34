package device

import (
	"context"
	"errors"
	"iter"
	"log/slog"
)

// PipelineConfig holds configuration for a device tracking pipeline
type PipelineConfig struct {
	Source     Source
	Identities []Identity
	// Gate stops the pipeline early. A fresh one is created if nil.
	Gate   *Gate
	Logger *slog.Logger
}

// Pipeline wires Source → Classify → Filter → TakeUntil → Track.
type Pipeline struct {
	source  Source
	filter  *IdentityFilter
	gate    *Gate
	tracker *Tracker
	logger  *slog.Logger
}

// NewPipeline validates the identities before anything is started.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Source == nil {
		return nil, newError(SetupFailure, "new pipeline", errors.New("no event source"))
	}
	filter, err := NewIdentityFilter(cfg.Identities...)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gate := cfg.Gate
	if gate == nil {
		gate = NewGate()
	}
	return &Pipeline{
		source:  cfg.Source,
		filter:  filter,
		gate:    gate,
		tracker: NewTracker(logger),
		logger:  logger,
	}, nil
}

// Gate returns the gate that stops this pipeline.
func (p *Pipeline) Gate() *Gate {
	return p.gate
}

// Source returns the event source feeding this pipeline.
func (p *Pipeline) Source() Source {
	return p.source
}

// Identities returns the identities this pipeline tracks.
func (p *Pipeline) Identities() []Identity {
	return p.filter.Identities()
}

// Devices starts the source and returns the tracked device stream. Setup
// failures are returned here, before any events flow. The stream ends when
// the gate fires, ctx is done, or the source ends. A caller that never ranges
// over the stream must cancel ctx or fire the gate to release the source.
func (p *Pipeline) Devices(ctx context.Context) (iter.Seq2[*TrackedDevice, error], error) {
	ctx, cancel := p.gate.Context(ctx)

	if err := p.source.Start(ctx); err != nil {
		cancel()
		var terr *TrackingError
		if errors.As(err, &terr) {
			return nil, err
		}
		return nil, newError(SetupFailure, "start source", err)
	}

	p.logger.Info("Tracking devices", "identities", p.filter.Identities())

	raw := Listen(ctx, p.source)
	events := p.filter.Apply(Classify(raw, p.logger))
	tracked := p.tracker.Track(TakeUntil(p.gate, events))

	return func(yield func(*TrackedDevice, error) bool) {
		defer cancel()
		for dev, err := range tracked {
			if !yield(dev, err) {
				return
			}
		}
	}, nil
}
