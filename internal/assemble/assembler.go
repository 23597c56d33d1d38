// Package assemble reconstructs whole RGB frames from out-of-order,
// loss-prone datagram chunks. Chunks are grouped by frame identity, the
// (width, height, chunk count) triple, and a frame is emitted once every
// distinct chunk index has arrived. Partial frames that stop making progress
// are discarded after a deadline so one stalled frame never delays the next.
package assemble

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/lumenwall/lumen/internal/media"
	"github.com/lumenwall/lumen/internal/wire"
)

// DefaultDeadline is how long a partial frame may sit with no progress
// before it is discarded. Derived from the target display cadence: at 30fps
// a frame more than three periods late is not worth finishing.
const DefaultDeadline = 100 * time.Millisecond

// identity groups chunks belonging to one logical frame. Two datagrams with
// the same triple are part of the same frame for the lifetime of one
// assembly window.
type identity struct {
	width      uint16
	height     uint16
	chunkCount uint16
}

type chunk struct {
	offset  uint32
	payload []byte
}

// entry is the assembly state for one open frame identity. The chunk map is
// keyed by chunk index, so retransmitted chunks overwrite in place and never
// inflate the distinct-index count.
type entry struct {
	chunks  map[uint16]chunk
	updated time.Time
}

// Config parameterizes an Assembler.
type Config struct {
	// Width and Height are the configured display resolution. Datagrams
	// declaring any other resolution are rejected with no state change.
	Width  int
	Height int

	// Deadline is the maximum age of a partial frame. Zero means
	// DefaultDeadline.
	Deadline time.Duration

	// MaxPending caps how many frame identities may be open at once.
	// The default of 1 favors freshness: a chunk for a new identity evicts
	// whatever is still open, since on a live feed latency matters more
	// than completing a stale frame. Larger values keep identities open
	// concurrently and evict oldest-first only when the cap is hit.
	MaxPending int

	Log *slog.Logger
}

// Stats is a snapshot of assembler counters.
type Stats struct {
	FramesAssembled int64 `json:"framesAssembled"`
	FramesExpired   int64 `json:"framesExpired"`
	FramesEvicted   int64 `json:"framesEvicted"`
	ChunksRejected  int64 `json:"chunksRejected"`
}

// Assembler owns the in-flight chunk table for one display. It is
// single-owner: Submit and Sweep must be called from the socket-reading
// goroutine, which removes any need for locking around the table. Counters
// are atomic so stats snapshots may be read from elsewhere.
type Assembler struct {
	log        *slog.Logger
	width      int
	height     int
	deadline   time.Duration
	maxPending int
	pending    map[identity]*entry
	now        func() time.Time

	framesAssembled atomic.Int64
	framesExpired   atomic.Int64
	framesEvicted   atomic.Int64
	chunksRejected  atomic.Int64
}

// New creates an Assembler for the given display resolution.
func New(cfg Config) *Assembler {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	deadline := cfg.Deadline
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	maxPending := cfg.MaxPending
	if maxPending < 1 {
		maxPending = 1
	}
	return &Assembler{
		log:        log.With("component", "assembler"),
		width:      cfg.Width,
		height:     cfg.Height,
		deadline:   deadline,
		maxPending: maxPending,
		pending:    make(map[identity]*entry),
		now:        time.Now,
	}
}

// Deadline returns the configured assembly deadline.
func (a *Assembler) Deadline() time.Duration {
	return a.deadline
}

// Submit parses one datagram and folds its chunk into the assembly table.
// It returns a complete frame when this chunk was the last one missing, and
// nil otherwise. Malformed datagrams and resolution mismatches are dropped
// with no state change.
func (a *Assembler) Submit(datagram []byte) *media.Frame {
	h, payload, err := wire.Parse(datagram)
	if err != nil {
		a.chunksRejected.Add(1)
		a.log.Debug("dropping short datagram", "len", len(datagram))
		return nil
	}
	if int(h.Width) != a.width || int(h.Height) != a.height {
		a.chunksRejected.Add(1)
		a.log.Debug("dropping datagram with wrong resolution",
			"got_width", h.Width, "got_height", h.Height,
			"want_width", a.width, "want_height", a.height)
		return nil
	}
	if h.ChunkCount == 0 || h.ChunkIndex >= h.ChunkCount {
		a.chunksRejected.Add(1)
		a.log.Debug("dropping chunk with bad index",
			"index", h.ChunkIndex, "count", h.ChunkCount)
		return nil
	}

	now := a.now()
	id := identity{width: h.Width, height: h.Height, chunkCount: h.ChunkCount}

	e, ok := a.pending[id]
	if ok && now.Sub(e.updated) > a.deadline {
		// The entry went stale between sweeps. A chunk completing a frame
		// past its deadline must not resurrect it; start a fresh window.
		delete(a.pending, id)
		a.framesExpired.Add(1)
		ok = false
	}
	if !ok {
		a.admit(id)
		e = &entry{chunks: make(map[uint16]chunk, h.ChunkCount)}
		a.pending[id] = e
	}

	// Overwrite on duplicate index: retransmits are idempotent.
	e.chunks[h.ChunkIndex] = chunk{
		offset:  h.Offset,
		payload: append([]byte(nil), payload...),
	}
	e.updated = now

	if len(e.chunks) < int(h.ChunkCount) {
		return nil
	}
	delete(a.pending, id)
	return a.reconstruct(e)
}

// reconstruct copies each chunk's payload to its declared offset in a zeroed
// frame buffer. Chunks that would overrun the buffer are clipped at the end,
// so a hostile or buggy offset can never corrupt memory outside the frame.
func (a *Assembler) reconstruct(e *entry) *media.Frame {
	frame := media.NewFrame(a.width, a.height)
	size := len(frame.Pix)
	for _, c := range e.chunks {
		off := int(c.offset)
		if off >= size {
			continue
		}
		copy(frame.Pix[off:], c.payload)
	}
	a.framesAssembled.Add(1)
	return frame
}

// admit makes room for a new identity per the configured policy.
func (a *Assembler) admit(id identity) {
	if a.maxPending == 1 {
		// Freshness policy: a chunk for a new frame supersedes anything
		// still open.
		for old := range a.pending {
			delete(a.pending, old)
			a.framesEvicted.Add(1)
			a.log.Debug("evicting stale frame for newer identity",
				"evicted_chunks", int(old.chunkCount))
		}
		return
	}
	for len(a.pending) >= a.maxPending {
		var oldest identity
		var oldestAt time.Time
		first := true
		for cand, e := range a.pending {
			if first || e.updated.Before(oldestAt) {
				oldest, oldestAt, first = cand, e.updated, false
			}
		}
		delete(a.pending, oldest)
		a.framesEvicted.Add(1)
	}
}

// Sweep discards entries whose last update is older than the deadline and
// returns how many were dropped. It must run at least as often as the
// deadline; the UDP server drives it from its read-timeout path.
func (a *Assembler) Sweep(now time.Time) int {
	var n int
	for id, e := range a.pending {
		if now.Sub(e.updated) > a.deadline {
			delete(a.pending, id)
			a.framesExpired.Add(1)
			n++
		}
	}
	if n > 0 {
		a.log.Debug("expired partial frames", "count", n)
	}
	return n
}

// PendingIdentities reports how many frame identities are currently open.
func (a *Assembler) PendingIdentities() int {
	return len(a.pending)
}

// Stats returns a snapshot of the assembler counters.
func (a *Assembler) Stats() Stats {
	return Stats{
		FramesAssembled: a.framesAssembled.Load(),
		FramesExpired:   a.framesExpired.Load(),
		FramesEvicted:   a.framesEvicted.Load(),
		ChunksRejected:  a.chunksRejected.Load(),
	}
}
