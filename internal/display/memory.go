package display

import "github.com/lumenwall/lumen/internal/media"

// Memory is an in-process canvas for tests and headless runs. It keeps the
// staged and visible buffers separate, so tests can verify that nothing
// becomes visible before a vsync swap.
type Memory struct {
	width   int
	height  int
	staged  []byte
	visible []byte
	swaps   int
	cleared bool
}

// NewMemory creates a Memory canvas of the given resolution.
func NewMemory(width, height int) *Memory {
	return &Memory{
		width:   width,
		height:  height,
		staged:  make([]byte, media.Size(width, height)),
		visible: make([]byte, media.Size(width, height)),
	}
}

func (m *Memory) Size() (int, int) {
	return m.width, m.height
}

func (m *Memory) SetPixel(x, y int, r, g, b byte) {
	i := (y*m.width + x) * 3
	m.staged[i], m.staged[i+1], m.staged[i+2] = r, g, b
}

func (m *Memory) SwapOnVSync() error {
	copy(m.visible, m.staged)
	m.swaps++
	return nil
}

func (m *Memory) Clear() error {
	for i := range m.staged {
		m.staged[i] = 0
	}
	copy(m.visible, m.staged)
	m.cleared = true
	return nil
}

// Visible returns a copy of the buffer currently on "glass".
func (m *Memory) Visible() []byte {
	return append([]byte(nil), m.visible...)
}

// Swaps reports how many vsync swaps have occurred.
func (m *Memory) Swaps() int {
	return m.swaps
}

// Cleared reports whether the panel was blanked on shutdown.
func (m *Memory) Cleared() bool {
	return m.cleared
}
