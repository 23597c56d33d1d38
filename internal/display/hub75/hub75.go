// Package hub75 drives a chained HUB75 LED panel array through the
// rpi-rgb-led-matrix binding. It adapts the driver's positional pixel API to
// the display.Canvas contract; the driver itself owns the offscreen buffer
// and performs the vsync-gated swap.
package hub75

import (
	"fmt"
	"image/color"

	rgbmatrix "github.com/mcuadros/go-rpi-rgb-led-matrix"
)

// Config describes the panel chain geometry. The wall resolution is
// Cols×ChainLength wide and Rows×Parallel tall.
type Config struct {
	Rows            int // pixel rows per panel
	Cols            int // pixel columns per panel
	ChainLength     int // panels per chain
	Parallel        int // parallel chains
	Brightness      int // 1..100, 0 keeps the driver default
	HardwareMapping string
}

// Canvas implements display.Canvas on real panel hardware.
type Canvas struct {
	m      rgbmatrix.Matrix
	width  int
	height int
}

// Open initializes the matrix driver. Failure here is fatal at startup:
// there is nothing to display on.
func Open(cfg Config) (*Canvas, error) {
	hw := rgbmatrix.DefaultConfig
	hw.Rows = cfg.Rows
	hw.Cols = cfg.Cols
	hw.ChainLength = cfg.ChainLength
	hw.Parallel = cfg.Parallel
	if cfg.Brightness > 0 {
		hw.Brightness = cfg.Brightness
	}
	if cfg.HardwareMapping != "" {
		hw.HardwareMapping = cfg.HardwareMapping
	}

	m, err := rgbmatrix.NewRGBLedMatrix(&hw)
	if err != nil {
		return nil, fmt.Errorf("hub75: open matrix: %w", err)
	}
	w, h := m.Geometry()
	return &Canvas{m: m, width: w, height: h}, nil
}

func (c *Canvas) Size() (int, int) {
	return c.width, c.height
}

func (c *Canvas) SetPixel(x, y int, r, g, b byte) {
	c.m.Set(y*c.width+x, color.RGBA{R: r, G: g, B: b, A: 255})
}

// SwapOnVSync renders the staged buffer; the underlying driver swaps it in
// at the panel's refresh boundary.
func (c *Canvas) SwapOnVSync() error {
	return c.m.Render()
}

// Clear blanks the wall and releases the driver.
func (c *Canvas) Clear() error {
	for i := 0; i < c.width*c.height; i++ {
		c.m.Set(i, color.Black)
	}
	if err := c.m.Render(); err != nil {
		return fmt.Errorf("hub75: blank: %w", err)
	}
	if err := c.m.Close(); err != nil {
		return fmt.Errorf("hub75: close: %w", err)
	}
	return nil
}
