package assemble

import (
	"bytes"
	"math/rand"
	"testing"
	"time"

	"github.com/lumenwall/lumen/internal/media"
	"github.com/lumenwall/lumen/internal/wire"
)

const (
	testWidth  = 10
	testHeight = 10
)

// fakeClock lets tests drive the assembler's notion of time.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestAssembler(t *testing.T) (*Assembler, *fakeClock) {
	t.Helper()
	a := New(Config{Width: testWidth, Height: testHeight})
	clock := &fakeClock{t: time.Unix(1000, 0)}
	a.now = clock.now
	return a, clock
}

// buildChunks slices pix into n chunks and returns the datagrams.
func buildChunks(t *testing.T, width, height, n int, pix []byte) [][]byte {
	t.Helper()
	if len(pix) != media.Size(width, height) {
		t.Fatalf("pix is %d bytes, want %d", len(pix), media.Size(width, height))
	}
	per := (len(pix) + n - 1) / n
	datagrams := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		start := i * per
		end := start + per
		if end > len(pix) {
			end = len(pix)
		}
		h := wire.Header{
			Width:      uint16(width),
			Height:     uint16(height),
			ChunkIndex: uint16(i),
			ChunkCount: uint16(n),
			Offset:     uint32(start),
		}
		datagrams = append(datagrams, wire.Append(nil, h, pix[start:end]))
	}
	return datagrams
}

func gradientPix(width, height int) []byte {
	pix := make([]byte, media.Size(width, height))
	for i := range pix {
		pix[i] = byte(i * 7)
	}
	return pix
}

func TestSubmit_AnyOrderReassembly(t *testing.T) {
	t.Parallel()
	pix := gradientPix(testWidth, testHeight)
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 20; trial++ {
		a, _ := newTestAssembler(t)
		datagrams := buildChunks(t, testWidth, testHeight, 7, pix)
		rng.Shuffle(len(datagrams), func(i, j int) {
			datagrams[i], datagrams[j] = datagrams[j], datagrams[i]
		})

		var frame *media.Frame
		for i, d := range datagrams {
			got := a.Submit(d)
			if i < len(datagrams)-1 && got != nil {
				t.Fatalf("trial %d: frame emitted after %d of %d chunks", trial, i+1, len(datagrams))
			}
			if i == len(datagrams)-1 {
				frame = got
			}
		}
		if frame == nil {
			t.Fatalf("trial %d: no frame after all chunks", trial)
		}
		if !bytes.Equal(frame.Pix, pix) {
			t.Fatalf("trial %d: reassembled frame differs from source", trial)
		}
	}
}

func TestSubmit_DuplicateChunkIsIdempotent(t *testing.T) {
	t.Parallel()
	a, _ := newTestAssembler(t)
	pix := gradientPix(testWidth, testHeight)
	datagrams := buildChunks(t, testWidth, testHeight, 4, pix)

	if got := a.Submit(datagrams[0]); got != nil {
		t.Fatal("frame emitted after first chunk")
	}
	// Retransmit of the same chunk must not bump the distinct-index count.
	if got := a.Submit(datagrams[0]); got != nil {
		t.Fatal("frame emitted after duplicate chunk")
	}
	for _, d := range datagrams[1:3] {
		if got := a.Submit(d); got != nil {
			t.Fatal("frame emitted before last distinct chunk")
		}
	}
	frame := a.Submit(datagrams[3])
	if frame == nil {
		t.Fatal("no frame after all distinct chunks")
	}
	if !bytes.Equal(frame.Pix, pix) {
		t.Fatal("reassembled frame differs from source")
	}
}

func TestSubmit_RejectsMalformedInput(t *testing.T) {
	t.Parallel()
	a, _ := newTestAssembler(t)

	cases := []struct {
		name     string
		datagram []byte
	}{
		{"short", []byte{0, 1, 2}},
		{"wrong resolution", wire.Append(nil, wire.Header{
			Width: 64, Height: 64, ChunkIndex: 0, ChunkCount: 1,
		}, []byte{1, 2, 3})},
		{"zero chunk count", wire.Append(nil, wire.Header{
			Width: testWidth, Height: testHeight, ChunkIndex: 0, ChunkCount: 0,
		}, []byte{1})},
		{"index beyond count", wire.Append(nil, wire.Header{
			Width: testWidth, Height: testHeight, ChunkIndex: 4, ChunkCount: 4,
		}, []byte{1})},
	}
	for _, tc := range cases {
		if got := a.Submit(tc.datagram); got != nil {
			t.Errorf("%s: frame emitted from invalid datagram", tc.name)
		}
	}
	if n := a.PendingIdentities(); n != 0 {
		t.Errorf("invalid datagrams opened %d identities, want 0", n)
	}
	if got := a.Stats().ChunksRejected; got != int64(len(cases)) {
		t.Errorf("ChunksRejected = %d, want %d", got, len(cases))
	}
}

func TestSubmit_OverrunChunkIsClipped(t *testing.T) {
	t.Parallel()
	a, _ := newTestAssembler(t)
	size := media.Size(testWidth, testHeight)

	// Chunk 0 covers the frame except the last 10 bytes; chunk 1 declares a
	// payload running 20 bytes past the end of the frame.
	body := bytes.Repeat([]byte{0xAA}, size-10)
	tail := bytes.Repeat([]byte{0xBB}, 30)

	a.Submit(wire.Append(nil, wire.Header{
		Width: testWidth, Height: testHeight, ChunkIndex: 0, ChunkCount: 2, Offset: 0,
	}, body))
	frame := a.Submit(wire.Append(nil, wire.Header{
		Width: testWidth, Height: testHeight, ChunkIndex: 1, ChunkCount: 2,
		Offset: uint32(size - 10),
	}, tail))

	if frame == nil {
		t.Fatal("no frame emitted")
	}
	if len(frame.Pix) != size {
		t.Fatalf("frame is %d bytes, want %d", len(frame.Pix), size)
	}
	for i := size - 10; i < size; i++ {
		if frame.Pix[i] != 0xBB {
			t.Fatalf("byte %d = %#x, want clipped tail byte 0xBB", i, frame.Pix[i])
		}
	}
}

func TestSubmit_OffsetBeyondFrameIsIgnored(t *testing.T) {
	t.Parallel()
	a, _ := newTestAssembler(t)
	size := media.Size(testWidth, testHeight)

	a.Submit(wire.Append(nil, wire.Header{
		Width: testWidth, Height: testHeight, ChunkIndex: 0, ChunkCount: 2, Offset: 0,
	}, bytes.Repeat([]byte{0x11}, size)))
	frame := a.Submit(wire.Append(nil, wire.Header{
		Width: testWidth, Height: testHeight, ChunkIndex: 1, ChunkCount: 2,
		Offset: uint32(size + 100),
	}, []byte{0xFF}))

	if frame == nil {
		t.Fatal("no frame emitted")
	}
	for i, b := range frame.Pix {
		if b != 0x11 {
			t.Fatalf("byte %d = %#x, out-of-range chunk corrupted the buffer", i, b)
		}
	}
}

func TestSweep_ExpiresStalePartialFrame(t *testing.T) {
	t.Parallel()
	a, clock := newTestAssembler(t)
	pix := gradientPix(testWidth, testHeight)
	datagrams := buildChunks(t, testWidth, testHeight, 4, pix)

	for _, d := range datagrams[:3] {
		a.Submit(d)
	}
	if n := a.PendingIdentities(); n != 1 {
		t.Fatalf("open identities = %d, want 1", n)
	}

	clock.advance(a.Deadline() + time.Millisecond)
	if n := a.Sweep(clock.now()); n != 1 {
		t.Fatalf("Sweep discarded %d entries, want 1", n)
	}
	if n := a.PendingIdentities(); n != 0 {
		t.Fatalf("open identities after sweep = %d, want 0", n)
	}

	// The last chunk now starts a fresh window instead of completing the
	// swept frame.
	if got := a.Submit(datagrams[3]); got != nil {
		t.Fatal("frame emitted from a single chunk of a fresh window")
	}
	if got := a.Stats().FramesExpired; got != 1 {
		t.Errorf("FramesExpired = %d, want 1", got)
	}
}

func TestSubmit_LateCompletionWithoutSweepIsDiscarded(t *testing.T) {
	t.Parallel()
	a, clock := newTestAssembler(t)
	pix := gradientPix(testWidth, testHeight)
	datagrams := buildChunks(t, testWidth, testHeight, 4, pix)

	for _, d := range datagrams[:3] {
		a.Submit(d)
	}

	// The completing chunk arrives past the deadline but before any sweep
	// ran. It must not complete the stale frame.
	clock.advance(a.Deadline() + time.Millisecond)
	if got := a.Submit(datagrams[3]); got != nil {
		t.Fatal("stale frame completed past its deadline")
	}
	if got := a.Stats().FramesExpired; got != 1 {
		t.Errorf("FramesExpired = %d, want 1", got)
	}
}

func TestSubmit_CompletionWithinDeadlineEmitsOneFrame(t *testing.T) {
	t.Parallel()
	a, clock := newTestAssembler(t)
	pix := gradientPix(testWidth, testHeight)
	datagrams := buildChunks(t, testWidth, testHeight, 4, pix)

	var frames int
	for _, d := range datagrams {
		clock.advance(10 * time.Millisecond) // well inside the deadline
		if got := a.Submit(d); got != nil {
			frames++
		}
	}
	if frames != 1 {
		t.Fatalf("emitted %d frames, want exactly 1", frames)
	}
}

func TestSubmit_NewIdentityEvictsOpenFrame(t *testing.T) {
	t.Parallel()
	a, _ := newTestAssembler(t)
	pix := gradientPix(testWidth, testHeight)

	// Open a 4-chunk identity, then start a 2-chunk identity for the same
	// resolution. Default policy favors the newest frame.
	for _, d := range buildChunks(t, testWidth, testHeight, 4, pix)[:3] {
		a.Submit(d)
	}
	two := buildChunks(t, testWidth, testHeight, 2, pix)
	if got := a.Submit(two[0]); got != nil {
		t.Fatal("frame emitted from first chunk of new identity")
	}
	if n := a.PendingIdentities(); n != 1 {
		t.Fatalf("open identities = %d, want 1 after eviction", n)
	}
	if got := a.Stats().FramesEvicted; got != 1 {
		t.Errorf("FramesEvicted = %d, want 1", got)
	}

	frame := a.Submit(two[1])
	if frame == nil {
		t.Fatal("new identity did not complete")
	}
	if !bytes.Equal(frame.Pix, pix) {
		t.Fatal("reassembled frame differs from source")
	}
}

func TestSubmit_MaxPendingTracksConcurrentIdentities(t *testing.T) {
	t.Parallel()
	a := New(Config{Width: testWidth, Height: testHeight, MaxPending: 2})
	clock := &fakeClock{t: time.Unix(1000, 0)}
	a.now = clock.now
	pix := gradientPix(testWidth, testHeight)

	four := buildChunks(t, testWidth, testHeight, 4, pix)
	two := buildChunks(t, testWidth, testHeight, 2, pix)

	// Interleave chunks of two identities; both must survive and complete.
	a.Submit(four[0])
	a.Submit(two[0])
	a.Submit(four[1])
	a.Submit(four[2])
	if n := a.PendingIdentities(); n != 2 {
		t.Fatalf("open identities = %d, want 2", n)
	}
	if frame := a.Submit(two[1]); frame == nil {
		t.Fatal("2-chunk identity did not complete")
	}
	if frame := a.Submit(four[3]); frame == nil {
		t.Fatal("4-chunk identity did not complete")
	}
	if got := a.Stats().FramesEvicted; got != 0 {
		t.Errorf("FramesEvicted = %d, want 0", got)
	}
}

func TestSubmit_SpecExampleFourChunks(t *testing.T) {
	t.Parallel()
	a, _ := newTestAssembler(t)

	// 10x10x3 = 300 bytes in four chunks: 100, 100, 75 and the remainder.
	payloads := [][]byte{
		bytes.Repeat([]byte{1}, 100),
		bytes.Repeat([]byte{2}, 100),
		bytes.Repeat([]byte{3}, 75),
		bytes.Repeat([]byte{4}, 25),
	}
	offsets := []uint32{0, 100, 200, 275}

	var frame *media.Frame
	for i, p := range payloads {
		frame = a.Submit(wire.Append(nil, wire.Header{
			Width: testWidth, Height: testHeight,
			ChunkIndex: uint16(i), ChunkCount: 4, Offset: offsets[i],
		}, p))
	}
	if frame == nil {
		t.Fatal("no frame emitted")
	}
	want := bytes.Join(payloads, nil)
	if !bytes.Equal(frame.Pix, want) {
		t.Fatal("frame is not the concatenation of payloads in offset order")
	}
}
