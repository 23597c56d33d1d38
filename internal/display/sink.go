package display

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/lumenwall/lumen/internal/media"
)

// ErrDimensionMismatch reports a frame whose dimensions disagree with the
// panel. This is a configuration bug, not a transient condition: it should
// never occur once the resolution is fixed, and frames are never silently
// resized.
var ErrDimensionMismatch = errors.New("display: frame dimensions do not match panel")

// Sink owns exactly two frame buffers: the one currently shown and the one
// being prepared. Present copies a complete frame into the pending buffer,
// pushes it to the canvas, and exchanges the two on the vsync swap, bounding
// memory to two frames regardless of producer rate. Not safe for concurrent
// use; exactly one producer feeds the sink at a time.
type Sink struct {
	log    *slog.Logger
	canvas Canvas
	width  int
	height int

	shown   []byte
	pending []byte

	presented atomic.Int64
	rejected  atomic.Int64
}

// NewSink creates a Sink for the given canvas. If log is nil, slog.Default()
// is used.
func NewSink(canvas Canvas, log *slog.Logger) *Sink {
	if log == nil {
		log = slog.Default()
	}
	w, h := canvas.Size()
	return &Sink{
		log:     log.With("component", "display-sink"),
		canvas:  canvas,
		width:   w,
		height:  h,
		shown:   make([]byte, media.Size(w, h)),
		pending: make([]byte, media.Size(w, h)),
	}
}

// Size returns the panel resolution.
func (s *Sink) Size() (width, height int) {
	return s.width, s.height
}

// Present validates and displays one complete frame. It never blocks waiting
// on a producer: callers invoke it only once a frame is fully in hand.
func (s *Sink) Present(frame *media.Frame) error {
	if frame.Width != s.width || frame.Height != s.height ||
		len(frame.Pix) != media.Size(s.width, s.height) {
		s.rejected.Add(1)
		return fmt.Errorf("%w: frame %dx%d (%d bytes), panel %dx%d",
			ErrDimensionMismatch, frame.Width, frame.Height, len(frame.Pix), s.width, s.height)
	}

	copy(s.pending, frame.Pix)
	s.blit(s.pending)
	if err := s.canvas.SwapOnVSync(); err != nil {
		return fmt.Errorf("display: swap: %w", err)
	}
	s.shown, s.pending = s.pending, s.shown
	s.presented.Add(1)
	return nil
}

// blit hands the prepared buffer to the canvas. The buffer itself is managed
// with bulk copies; the scalar loop exists only because SetPixel is the
// hardware driver's actual contract.
func (s *Sink) blit(pix []byte) {
	i := 0
	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			s.canvas.SetPixel(x, y, pix[i], pix[i+1], pix[i+2])
			i += 3
		}
	}
}

// Shown returns a copy of the currently shown buffer, for tests and the
// stats endpoint.
func (s *Sink) Shown() []byte {
	return append([]byte(nil), s.shown...)
}

// Presented reports how many frames have been swapped onto the panel.
func (s *Sink) Presented() int64 {
	return s.presented.Load()
}

// Rejected reports how many frames failed dimension validation.
func (s *Sink) Rejected() int64 {
	return s.rejected.Load()
}

// Close blanks the panel and releases the canvas.
func (s *Sink) Close() error {
	return s.canvas.Clear()
}
