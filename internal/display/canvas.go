// Package display owns the physical output path: the hardware canvas
// contract, the double-buffered sink, and frame pacing.
package display

// Canvas is the narrow contract a panel driver must satisfy. Implementations
// stage pixels on a hidden buffer; SwapOnVSync makes the staged buffer
// visible at a refresh boundary so a frame is never shown mid-update.
type Canvas interface {
	// Size returns the panel resolution in pixels.
	Size() (width, height int)
	// SetPixel stages one pixel on the hidden buffer.
	SetPixel(x, y int, r, g, b byte)
	// SwapOnVSync shows the staged buffer at the next refresh boundary.
	SwapOnVSync() error
	// Clear blanks the panel and releases it. Called once on shutdown.
	Clear() error
}
