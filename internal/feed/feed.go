// Package feed reads the program source and spectrum files written by the
// relay, giving the render producer its inputs. The files are the hand-off
// boundary between the HTTP side and the render loop: the relay replaces
// them atomically, and this package polls them once per render tick.
package feed

import (
	"encoding/json"
	"log/slog"
	"os"

	"github.com/lumenwall/lumen/internal/render"
)

// ShaderFile supplies the current program source from a file, using the
// file's modification time as the change marker.
type ShaderFile struct {
	log  *slog.Logger
	path string
}

// NewShaderFile watches path for program source. If log is nil,
// slog.Default() is used.
func NewShaderFile(path string, log *slog.Logger) *ShaderFile {
	if log == nil {
		log = slog.Default()
	}
	return &ShaderFile{
		log:  log.With("component", "shader-feed"),
		path: path,
	}
}

// Current implements render.Source. A missing or unreadable file reports no
// source rather than an error: the producer just keeps its current program.
func (f *ShaderFile) Current() (string, int64, bool) {
	info, err := os.Stat(f.path)
	if err != nil {
		return "", 0, false
	}
	b, err := os.ReadFile(f.path)
	if err != nil {
		f.log.Debug("program source unreadable", "path", f.path, "error", err)
		return "", 0, false
	}
	return string(b), info.ModTime().UnixNano(), true
}

// SpectrumFile supplies the auxiliary spectrum from a JSON file of the form
// {"fft": [..]}. Malformed or missing data yields silence, never an error.
type SpectrumFile struct {
	log  *slog.Logger
	path string
	bins [render.SpectrumBins]float32
}

// NewSpectrumFile watches path for spectrum samples. If log is nil,
// slog.Default() is used.
func NewSpectrumFile(path string, log *slog.Logger) *SpectrumFile {
	if log == nil {
		log = slog.Default()
	}
	return &SpectrumFile{
		log:  log.With("component", "spectrum-feed"),
		path: path,
	}
}

// Sample implements render.Spectrum. The returned slice is reused between
// calls; the producer copies it into its own uniform buffer.
func (f *SpectrumFile) Sample() []float32 {
	for i := range f.bins {
		f.bins[i] = 0
	}
	b, err := os.ReadFile(f.path)
	if err != nil {
		return f.bins[:]
	}
	var doc struct {
		FFT []float64 `json:"fft"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		f.log.Debug("malformed spectrum file", "path", f.path, "error", err)
		return f.bins[:]
	}
	n := len(doc.FFT)
	if n > len(f.bins) {
		n = len(f.bins)
	}
	for i := 0; i < n; i++ {
		f.bins[i] = float32(doc.FFT[i])
	}
	return f.bins[:]
}
