// Package render produces frames by evaluating a user program against a
// monotonic clock and an audio spectrum. A newly uploaded program that fails
// to compile is absorbed: the last known-good program keeps running, so the
// wall never goes dark because of a malformed upload.
package render

// SpectrumBins is the fixed length of the auxiliary spectrum signal. Inputs
// of any other length are clamped or zero-padded to this size.
const SpectrumBins = 32

// Program is one compiled user program. Draw renders a full frame into dst
// (len width*height*3, RGB) in framebuffer readback order: row-major with
// the bottom row first, as a GPU readback delivers it. The producer flips it
// so (0,0) lands on the wall's top-left pixel.
type Program interface {
	Draw(dst []byte, width, height int, t float64, spectrum []float32)
}

// Renderer compiles user source into a Program. The result carries either a
// usable program or an error, never both. A GPU-backed implementation is an
// external collaborator; Builtin is the in-process CPU implementation.
type Renderer interface {
	Compile(source string) (Program, error)
}

// Source supplies the current user program source together with a
// monotonically comparable modification marker. ok is false while no source
// has ever been supplied.
type Source interface {
	Current() (src string, mark int64, ok bool)
}

// Spectrum samples the auxiliary signal once per render tick.
type Spectrum interface {
	Sample() []float32
}
