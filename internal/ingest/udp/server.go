// Package udp receives chunked frame datagrams and emits reassembled frames.
// One goroutine owns both the socket and the assembler, so reassembly needs
// no locking and reception never blocks on display presentation.
package udp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/lumenwall/lumen/internal/assemble"
	"github.com/lumenwall/lumen/internal/media"
)

// recvBufferSize is the requested socket receive buffer, sized to absorb a
// burst of one full frame's chunks between reads.
const recvBufferSize = 1 << 20

// maxDatagram is the largest UDP payload the read loop accepts.
const maxDatagram = 65535

// Stats captures receiver-level counters for the stats endpoint.
type Stats struct {
	Datagrams     int64 `json:"datagrams"`
	FramesDropped int64 `json:"framesDropped"`
}

// Server owns the UDP socket and the single goroutine allowed to touch the
// assembler. Complete frames are published on an internal channel; when the
// display loop falls behind, the oldest queued frame is dropped so the feed
// stays live. The sender is never slowed by the receiver.
type Server struct {
	log       *slog.Logger
	addr      string
	assembler *assemble.Assembler
	frames    chan *media.Frame

	// sweepEvery bounds how long a stale partial frame can outlive its
	// deadline when no datagrams arrive. It doubles as the read timeout.
	sweepEvery time.Duration

	datagrams atomic.Int64
	dropped   atomic.Int64
	localAddr atomic.Value // net.Addr, set once the socket is bound
}

// NewServer creates a Server listening on addr and feeding the assembler.
// If log is nil, slog.Default() is used.
func NewServer(addr string, assembler *assemble.Assembler, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		log:        log.With("component", "udp-server"),
		addr:       addr,
		assembler:  assembler,
		frames:     make(chan *media.Frame, media.FrameBufferSize),
		sweepEvery: assembler.Deadline() / 2,
	}
}

// Start binds the socket and runs the read loop. It blocks until the context
// is cancelled or the socket fails. Failing to bind is fatal; everything
// after that is drop-and-continue.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp", s.addr)
	if err != nil {
		return fmt.Errorf("udp listen on %s: %w", s.addr, err)
	}
	conn := pc.(*net.UDPConn)
	defer conn.Close()

	if err := conn.SetReadBuffer(recvBufferSize); err != nil {
		s.log.Warn("could not grow receive buffer", "error", err)
	}
	s.localAddr.Store(conn.LocalAddr())
	s.log.Info("listening", "addr", conn.LocalAddr())

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, maxDatagram)
	lastSweep := time.Now()
	for {
		// The read deadline doubles as the sweep cadence: even with no
		// traffic, stale partial frames are discarded on time.
		if err := conn.SetReadDeadline(time.Now().Add(s.sweepEvery)); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("udp set read deadline: %w", err)
		}

		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				lastSweep = time.Now()
				s.assembler.Sweep(lastSweep)
				continue
			}
			return fmt.Errorf("udp read: %w", err)
		}
		s.datagrams.Add(1)

		if now := time.Now(); now.Sub(lastSweep) >= s.sweepEvery {
			lastSweep = now
			s.assembler.Sweep(now)
		}

		frame := s.assembler.Submit(buf[:n])
		if frame == nil {
			continue
		}
		s.publish(frame)
	}
}

// publish enqueues a complete frame, dropping the oldest queued frame when
// the consumer is behind. Only the read loop calls this, so the drain-then-
// retry loop terminates.
func (s *Server) publish(frame *media.Frame) {
	for {
		select {
		case s.frames <- frame:
			return
		default:
		}
		select {
		case <-s.frames:
			s.dropped.Add(1)
		default:
		}
	}
}

// Produce blocks until the next complete network frame or cancellation.
// It implements the pipeline's Producer contract.
func (s *Server) Produce(ctx context.Context) (*media.Frame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case frame := <-s.frames:
		return frame, nil
	}
}

// LocalAddr returns the bound socket address, or nil before Start has bound.
func (s *Server) LocalAddr() net.Addr {
	addr, _ := s.localAddr.Load().(net.Addr)
	return addr
}

// Stats returns a snapshot of receiver counters.
func (s *Server) Stats() Stats {
	return Stats{
		Datagrams:     s.datagrams.Load(),
		FramesDropped: s.dropped.Load(),
	}
}
