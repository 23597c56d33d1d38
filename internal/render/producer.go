package render

import (
	"context"
	"log/slog"
	"time"

	"github.com/lumenwall/lumen/internal/media"
)

// state tracks where the producer is in its compile lifecycle.
type state int

const (
	// stateNoProgram: no user program has ever compiled; the placeholder runs.
	stateNoProgram state = iota
	// stateCompiling: a newly observed source is being built.
	stateCompiling
	// stateRunning: a known-good user program is active.
	stateRunning
)

func (s state) String() string {
	switch s {
	case stateNoProgram:
		return "no-program"
	case stateCompiling:
		return "compiling"
	case stateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Producer renders one frame per Produce call by evaluating the current
// program against a monotonic clock and the latest spectrum sample. It is
// not safe for concurrent use; the pipeline drives it from one goroutine.
type Producer struct {
	log      *slog.Logger
	renderer Renderer
	source   Source
	spectrum Spectrum
	width    int
	height   int

	state    state
	program  Program // last known-good; nil while stateNoProgram
	lastMark int64
	haveMark bool

	placeholder Program
	epoch       time.Time
	now         func() time.Time

	scratch []byte // readback buffer reused across ticks
	bins    [SpectrumBins]float32
}

// NewProducer creates a render producer for the given resolution. source and
// spectrum may be nil, in which case the placeholder runs forever against a
// silent spectrum. If log is nil, slog.Default() is used.
func NewProducer(width, height int, renderer Renderer, source Source, spectrum Spectrum, log *slog.Logger) *Producer {
	if log == nil {
		log = slog.Default()
	}
	return &Producer{
		log:         log.With("component", "render-producer"),
		renderer:    renderer,
		source:      source,
		spectrum:    spectrum,
		width:       width,
		height:      height,
		state:       stateNoProgram,
		placeholder: Placeholder(),
		epoch:       time.Now(),
		now:         time.Now,
		scratch:     make([]byte, media.Size(width, height)),
	}
}

// Produce renders the next frame. Compile failures are logged and absorbed;
// the only returned error is context cancellation.
func (p *Producer) Produce(ctx context.Context) (*media.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.reloadIfChanged()

	prog := p.program
	if prog == nil {
		prog = p.placeholder
	}

	t := p.now().Sub(p.epoch).Seconds()
	prog.Draw(p.scratch, p.width, p.height, t, p.sampleSpectrum())

	// The readback is bottom-to-top; flip so (0,0) is the top-left pixel.
	frame := media.NewFrame(p.width, p.height)
	flipVertical(p.scratch, frame.Pix, p.width, p.height)
	return frame, nil
}

// reloadIfChanged recompiles when the source's modification marker advances.
// On failure the previous program (or the placeholder) stays active.
func (p *Producer) reloadIfChanged() {
	if p.source == nil {
		return
	}
	src, mark, ok := p.source.Current()
	if !ok {
		return
	}
	if p.haveMark && mark <= p.lastMark {
		return
	}
	p.state = stateCompiling
	p.log.Info("program source changed, compiling", "mark", mark)

	prog, err := p.renderer.Compile(src)

	// Record the marker on both outcomes so a broken source is not
	// recompiled every tick; the next upload advances the marker again.
	p.lastMark, p.haveMark = mark, true

	if err != nil {
		if p.program != nil {
			p.state = stateRunning
		} else {
			p.state = stateNoProgram
		}
		p.log.Warn("compile failed, keeping previous program",
			"error", err, "fallback", p.state.String())
		return
	}
	p.program = prog
	p.state = stateRunning
	p.log.Info("program compiled", "mark", mark)
}

// sampleSpectrum returns exactly SpectrumBins values: the collaborator's
// sample clamped or zero-padded, or all zeros when absent.
func (p *Producer) sampleSpectrum() []float32 {
	for i := range p.bins {
		p.bins[i] = 0
	}
	if p.spectrum != nil {
		copy(p.bins[:], p.spectrum.Sample())
	}
	return p.bins[:]
}

// flipVertical copies src (bottom-to-top rows) into dst top-to-bottom.
func flipVertical(src, dst []byte, width, height int) {
	stride := width * 3
	for y := 0; y < height; y++ {
		copy(dst[y*stride:(y+1)*stride], src[(height-1-y)*stride:])
	}
}
