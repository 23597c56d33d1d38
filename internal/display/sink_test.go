package display

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lumenwall/lumen/internal/media"
)

const (
	testWidth  = 4
	testHeight = 3
)

func fillFrame(width, height int, val byte) *media.Frame {
	f := media.NewFrame(width, height)
	for i := range f.Pix {
		f.Pix[i] = val
	}
	return f
}

func TestPresent_SwapsOnVSync(t *testing.T) {
	t.Parallel()
	canvas := NewMemory(testWidth, testHeight)
	sink := NewSink(canvas, nil)

	frame := fillFrame(testWidth, testHeight, 0x7F)
	if err := sink.Present(frame); err != nil {
		t.Fatal(err)
	}
	if canvas.Swaps() != 1 {
		t.Errorf("swaps = %d, want 1", canvas.Swaps())
	}
	if !bytes.Equal(canvas.Visible(), frame.Pix) {
		t.Error("visible buffer does not match presented frame")
	}
	if !bytes.Equal(sink.Shown(), frame.Pix) {
		t.Error("shown buffer does not match presented frame")
	}
	if sink.Presented() != 1 {
		t.Errorf("presented = %d, want 1", sink.Presented())
	}
}

func TestPresent_RejectsDimensionMismatch(t *testing.T) {
	t.Parallel()
	canvas := NewMemory(testWidth, testHeight)
	sink := NewSink(canvas, nil)

	good := fillFrame(testWidth, testHeight, 0x11)
	if err := sink.Present(good); err != nil {
		t.Fatal(err)
	}
	before := sink.Shown()

	cases := []*media.Frame{
		fillFrame(testWidth+1, testHeight, 0xFF),
		fillFrame(testWidth, testHeight+1, 0xFF),
		{Width: testWidth, Height: testHeight, Pix: make([]byte, 5)},
	}
	for i, bad := range cases {
		err := sink.Present(bad)
		if !errors.Is(err, ErrDimensionMismatch) {
			t.Errorf("case %d: err = %v, want ErrDimensionMismatch", i, err)
		}
	}
	if !bytes.Equal(sink.Shown(), before) {
		t.Error("shown buffer mutated by a rejected frame")
	}
	if canvas.Swaps() != 1 {
		t.Errorf("swaps = %d, want 1 (no swap for rejected frames)", canvas.Swaps())
	}
	if sink.Rejected() != int64(len(cases)) {
		t.Errorf("rejected = %d, want %d", sink.Rejected(), len(cases))
	}
}

func TestPresent_SuccessiveFramesReplaceShown(t *testing.T) {
	t.Parallel()
	canvas := NewMemory(testWidth, testHeight)
	sink := NewSink(canvas, nil)

	for i, val := range []byte{0x10, 0x20, 0x30} {
		if err := sink.Present(fillFrame(testWidth, testHeight, val)); err != nil {
			t.Fatal(err)
		}
		if got := sink.Shown()[0]; got != val {
			t.Fatalf("after present %d: shown[0] = %#x, want %#x", i, got, val)
		}
	}
	if canvas.Swaps() != 3 {
		t.Errorf("swaps = %d, want 3", canvas.Swaps())
	}
}

func TestClose_BlanksPanel(t *testing.T) {
	t.Parallel()
	canvas := NewMemory(testWidth, testHeight)
	sink := NewSink(canvas, nil)

	if err := sink.Present(fillFrame(testWidth, testHeight, 0xFF)); err != nil {
		t.Fatal(err)
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}
	if !canvas.Cleared() {
		t.Error("canvas not cleared on close")
	}
	for i, b := range canvas.Visible() {
		if b != 0 {
			t.Fatalf("visible byte %d = %#x after clear, want 0", i, b)
		}
	}
}

func TestPacer_SleepsRemainder(t *testing.T) {
	t.Parallel()
	p := NewPacer(100) // 10ms period

	start := time.Now()
	if err := p.Wait(context.Background(), start); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 8*time.Millisecond {
		t.Errorf("Wait returned after %v, want ≈10ms", elapsed)
	}
}

func TestPacer_OverrunGetsNoSleep(t *testing.T) {
	t.Parallel()
	p := NewPacer(100)

	// The cycle started well over one period ago; Wait must return at once
	// with no compensating delay.
	start := time.Now().Add(-50 * time.Millisecond)
	began := time.Now()
	if err := p.Wait(context.Background(), start); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(began); elapsed > 5*time.Millisecond {
		t.Errorf("Wait slept %v on an overrun cycle, want immediate return", elapsed)
	}
}

func TestPacer_CancelledDuringSleep(t *testing.T) {
	t.Parallel()
	p := NewPacer(1) // 1s period

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	began := time.Now()
	err := p.Wait(ctx, time.Now())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if time.Since(began) > 500*time.Millisecond {
		t.Error("Wait did not return promptly on cancel")
	}
}
