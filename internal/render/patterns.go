package render

import (
	"fmt"
	"math"
	"strings"
)

// patternFunc evaluates one pixel. u and v are normalized coordinates in
// [0,1] with v=0 at the bottom of the frame, matching GL conventions.
type patternFunc func(u, v, t float64, spectrum []float32) (r, g, b float64)

// pattern is a CPU-evaluated Program.
type pattern struct {
	fn patternFunc
}

func (p pattern) Draw(dst []byte, width, height int, t float64, spectrum []float32) {
	i := 0
	for y := 0; y < height; y++ {
		v := float64(y) / float64(height-1)
		for x := 0; x < width; x++ {
			u := float64(x) / float64(width-1)
			r, g, b := p.fn(u, v, t, spectrum)
			dst[i+0] = clampByte(r)
			dst[i+1] = clampByte(g)
			dst[i+2] = clampByte(b)
			i += 3
		}
	}
}

func clampByte(x float64) byte {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 255
	}
	return byte(x * 255)
}

// stripes is the placeholder shown until a user program compiles: a slow
// diagonal grayscale wave.
func stripes(u, v, t float64, _ []float32) (float64, float64, float64) {
	w := 0.5 + 0.5*math.Sin(10*(u+v)+t)
	return w, w, w
}

func rings(u, v, t float64, _ []float32) (float64, float64, float64) {
	px := (u - 0.5) * 2
	py := (v - 0.5) * 2
	d := math.Hypot(px, py)
	ring := 0.5 + 0.5*math.Cos(10*d-t*2*math.Pi)
	return ring,
		0.5 + 0.5*math.Sin(t+px*4),
		0.5 + 0.5*math.Sin(t+py*4)
}

func plasma(u, v, t float64, _ []float32) (float64, float64, float64) {
	px := (u - 0.5) * 2
	py := (v - 0.5) * 2
	val := math.Sin(px*3+t*0.7) +
		math.Sin(py*4-t*1.3) +
		math.Sin(math.Hypot(px, py)*5-t)
	val /= 3
	return 0.5 + 0.5*math.Sin(math.Pi*val),
		0.5 + 0.5*math.Sin(math.Pi*val+2.094),
		0.5 + 0.5*math.Sin(math.Pi*val+4.188)
}

func waves(u, v, t float64, _ []float32) (float64, float64, float64) {
	w := 0.5 + 0.5*math.Sin(u*8+t*1.5)*math.Cos(v*6-t)
	return 0.1, w * 0.6, w
}

// bars renders the spectrum as vertical bars, one bin per column band.
func bars(u, v, _ float64, spectrum []float32) (float64, float64, float64) {
	bin := int(u * SpectrumBins)
	if bin >= SpectrumBins {
		bin = SpectrumBins - 1
	}
	level := float64(spectrum[bin])
	if v > level {
		return 0, 0, 0
	}
	return v, 1 - v, 0.2
}

var patterns = map[string]patternFunc{
	"stripes": stripes,
	"rings":   rings,
	"plasma":  plasma,
	"waves":   waves,
	"bars":    bars,
}

// Builtin compiles pattern programs evaluated on the CPU. The source's first
// non-comment word names the pattern; anything unknown is a compile error.
type Builtin struct{}

func (Builtin) Compile(source string) (Program, error) {
	name := firstWord(source)
	if name == "" {
		return nil, fmt.Errorf("render: empty program source")
	}
	fn, ok := patterns[name]
	if !ok {
		return nil, fmt.Errorf("render: unknown pattern %q", name)
	}
	return pattern{fn: fn}, nil
}

// firstWord returns the first whitespace-delimited token of the first line
// that is neither blank nor a // comment.
func firstWord(source string) string {
	for _, line := range strings.Split(source, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		return strings.Fields(line)[0]
	}
	return ""
}

// Placeholder is the built-in program used while no user program has ever
// compiled successfully.
func Placeholder() Program {
	return pattern{fn: stripes}
}
