package display

import (
	"context"
	"time"
)

// DefaultFPS is the target display cadence.
const DefaultFPS = 30

// Pacer bounds how often the present loop runs, independent of producer
// arrival jitter.
type Pacer struct {
	period time.Duration
}

// NewPacer creates a Pacer targeting fps frames per second. Values ≤ 0 fall
// back to DefaultFPS.
func NewPacer(fps int) *Pacer {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return &Pacer{period: time.Second / time.Duration(fps)}
}

// Period returns the pacing period.
func (p *Pacer) Period() time.Duration {
	return p.period
}

// Wait sleeps out the remainder of the cycle that began at start. A cycle
// that overran its period gets no sleep and no compensating catch-up: the
// next frame starts immediately rather than being batched to restore an
// arithmetic cadence. Returns early with the context's error on cancel.
func (p *Pacer) Wait(ctx context.Context, start time.Time) error {
	remaining := p.period - time.Since(start)
	if remaining <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
