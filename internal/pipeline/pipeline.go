// Package pipeline drives the active frame producer into the display sink
// at a fixed cadence, collecting counters for the stats endpoint.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/lumenwall/lumen/internal/display"
	"github.com/lumenwall/lumen/internal/media"
)

// Producer yields the next complete frame. The network receiver and the
// render producer are interchangeable behind this interface; which one feeds
// the sink is a configuration decision made before the loop starts, never a
// concurrent race.
type Producer interface {
	Produce(ctx context.Context) (*media.Frame, error)
}

// Snapshot is a point-in-time view of pipeline health, suitable for JSON
// delivery on the stats endpoint.
type Snapshot struct {
	UptimeMs        int64 `json:"uptimeMs"`
	FramesProduced  int64 `json:"framesProduced"`
	FramesPresented int64 `json:"framesPresented"`
	FramesRejected  int64 `json:"framesRejected"`
}

// Pipeline bridges one Producer and the display Sink.
type Pipeline struct {
	log      *slog.Logger
	producer Producer
	sink     *display.Sink
	pacer    *display.Pacer

	startTime time.Time
	produced  atomic.Int64
	presented atomic.Int64
	rejected  atomic.Int64
}

// New creates a Pipeline. If log is nil, slog.Default() is used.
func New(producer Producer, sink *display.Sink, pacer *display.Pacer, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		log:       log.With("component", "pipeline"),
		producer:  producer,
		sink:      sink,
		pacer:     pacer,
		startTime: time.Now(),
	}
}

// Run produces and presents frames until the context is cancelled. Both the
// producer and the pacer honor the context, so cancellation lands within one
// pacing period. The panel is blanked before returning, whatever the reason
// for exit.
func (p *Pipeline) Run(ctx context.Context) error {
	defer func() {
		if err := p.sink.Close(); err != nil {
			p.log.Warn("clearing panel on shutdown", "error", err)
		}
	}()

	p.log.Info("pipeline running", "period", p.pacer.Period())
	for {
		start := time.Now()

		frame, err := p.producer.Produce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("produce: %w", err)
		}
		p.produced.Add(1)

		if err := p.sink.Present(frame); err != nil {
			// Dimension mismatches are configuration bugs, not transient
			// conditions. Log loudly but keep the loop alive.
			p.rejected.Add(1)
			p.log.Error("frame rejected by sink", "error", err)
		} else {
			p.presented.Add(1)
		}

		if err := p.pacer.Wait(ctx, start); err != nil {
			return nil
		}
	}
}

// Snapshot returns the pipeline counters.
func (p *Pipeline) Snapshot() Snapshot {
	return Snapshot{
		UptimeMs:        time.Since(p.startTime).Milliseconds(),
		FramesProduced:  p.produced.Load(),
		FramesPresented: p.presented.Load(),
		FramesRejected:  p.rejected.Load(),
	}
}
