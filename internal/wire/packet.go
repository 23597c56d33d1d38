// Package wire implements the chunked-datagram header that carries frames
// over UDP. A sender flattens one RGB frame into a byte array, slices it into
// chunks, and prefixes each chunk with a 12-byte header. The protocol is
// fire-and-forget: no acknowledgment, ordering, or congestion control.
package wire

import (
	"encoding/binary"
	"fmt"
)

const (
	// HeaderSize is the fixed length of the datagram header.
	HeaderSize = 12

	// MaxPayload is the largest chunk payload that fits one UDP datagram.
	MaxPayload = 65535 - HeaderSize
)

// Header describes one chunk of a flattened RGB frame. All fields are
// big-endian on the wire:
//
//	bytes 0-1   width
//	bytes 2-3   height
//	bytes 4-5   chunk index
//	bytes 6-7   total chunk count
//	bytes 8-11  byte offset into the assembled frame
type Header struct {
	Width      uint16
	Height     uint16
	ChunkIndex uint16
	ChunkCount uint16
	Offset     uint32
}

// Parse splits a datagram into its header and payload. The returned payload
// aliases the input buffer; callers that retain it must copy.
func Parse(datagram []byte) (Header, []byte, error) {
	if len(datagram) < HeaderSize {
		return Header{}, nil, fmt.Errorf("wire: datagram is %d bytes, header needs %d",
			len(datagram), HeaderSize)
	}
	h := Header{
		Width:      binary.BigEndian.Uint16(datagram[0:2]),
		Height:     binary.BigEndian.Uint16(datagram[2:4]),
		ChunkIndex: binary.BigEndian.Uint16(datagram[4:6]),
		ChunkCount: binary.BigEndian.Uint16(datagram[6:8]),
		Offset:     binary.BigEndian.Uint32(datagram[8:12]),
	}
	return h, datagram[HeaderSize:], nil
}

// Append serializes the header followed by the payload onto dst and returns
// the extended slice. Used by senders and tests.
func Append(dst []byte, h Header, payload []byte) []byte {
	var buf [HeaderSize]byte
	binary.BigEndian.PutUint16(buf[0:2], h.Width)
	binary.BigEndian.PutUint16(buf[2:4], h.Height)
	binary.BigEndian.PutUint16(buf[4:6], h.ChunkIndex)
	binary.BigEndian.PutUint16(buf[6:8], h.ChunkCount)
	binary.BigEndian.PutUint32(buf[8:12], h.Offset)
	dst = append(dst, buf[:]...)
	return append(dst, payload...)
}
