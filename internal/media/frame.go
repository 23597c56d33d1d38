// Package media defines the frame type exchanged between producers and the
// display sink.
package media

import "fmt"

// FrameBufferSize is the channel depth between the network producer and the
// display loop. Kept small on purpose: a backlog means the display is behind,
// and on a live feed stale frames are better dropped than queued.
const FrameBufferSize = 4

// Frame is a fixed-size RGB pixel grid: row-major, top-to-bottom, with
// interleaved R,G,B samples. Immutable once constructed: producers hand
// frames to the sink by reference and must not touch them afterwards.
type Frame struct {
	Width  int
	Height int
	Pix    []byte // len == Width*Height*3
}

// Size returns the byte length of a width×height RGB frame.
func Size(width, height int) int {
	return width * height * 3
}

// NewFrame allocates a zeroed (black) frame.
func NewFrame(width, height int) *Frame {
	return &Frame{Width: width, Height: height, Pix: make([]byte, Size(width, height))}
}

// FromPix wraps an existing pixel buffer, enforcing the length invariant.
// A buffer that fails the check never reaches the sink.
func FromPix(width, height int, pix []byte) (*Frame, error) {
	if len(pix) != Size(width, height) {
		return nil, fmt.Errorf("media: pixel buffer is %d bytes, want %d for %dx%d",
			len(pix), Size(width, height), width, height)
	}
	return &Frame{Width: width, Height: height, Pix: pix}, nil
}

// At returns the RGB sample at (x, y). Intended for tests and debugging;
// bulk consumers should slice Pix row-wise.
func (f *Frame) At(x, y int) (r, g, b byte) {
	i := (y*f.Width + x) * 3
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2]
}

// Row returns pixel row y as a 3×Width byte slice aliasing Pix.
func (f *Frame) Row(y int) []byte {
	start := y * f.Width * 3
	return f.Pix[start : start+f.Width*3]
}
