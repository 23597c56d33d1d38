// Command udp-push sends synthetic chunked frames to a running lumen
// receiver, for end-to-end testing without a real render source. It animates
// a scrolling color gradient at the target frame rate, splitting each frame
// into fixed-size chunks exactly the way a production sender does.
package main

import (
	"flag"
	"fmt"
	"math"
	"net"
	"os"
	"time"

	"github.com/lumenwall/lumen/internal/media"
	"github.com/lumenwall/lumen/internal/wire"
)

func main() {
	addrFlag := flag.String("addr", "127.0.0.1:9999", "lumen UDP receiver address")
	widthFlag := flag.Int("width", 256, "frame width in pixels")
	heightFlag := flag.Int("height", 192, "frame height in pixels")
	fpsFlag := flag.Int("fps", 30, "frames per second")
	chunkFlag := flag.Int("chunk", 1200, "chunk payload bytes per datagram")
	dropFlag := flag.Int("drop", 0, "drop every Nth chunk to exercise the assembly deadline (0 = none)")
	flag.Parse()

	if *chunkFlag <= 0 || *chunkFlag > wire.MaxPayload {
		fmt.Fprintf(os.Stderr, "chunk size must be in 1..%d\n", wire.MaxPayload)
		os.Exit(1)
	}

	conn, err := net.Dial("udp", *addrFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial %s: %v\n", *addrFlag, err)
		os.Exit(1)
	}
	defer conn.Close()

	width, height := *widthFlag, *heightFlag
	pix := make([]byte, media.Size(width, height))
	period := time.Second / time.Duration(*fpsFlag)
	fmt.Printf("pushing %dx%d frames to %s at %d fps, %d-byte chunks\n",
		width, height, *addrFlag, *fpsFlag, *chunkFlag)

	var sent, chunkNo int
	start := time.Now()
	for tick := time.NewTicker(period); ; <-tick.C {
		t := time.Since(start).Seconds()
		drawGradient(pix, width, height, t)

		chunkCount := (len(pix) + *chunkFlag - 1) / *chunkFlag
		for i := 0; i < chunkCount; i++ {
			chunkNo++
			if *dropFlag > 0 && chunkNo%*dropFlag == 0 {
				continue
			}
			off := i * *chunkFlag
			end := off + *chunkFlag
			if end > len(pix) {
				end = len(pix)
			}
			datagram := wire.Append(nil, wire.Header{
				Width:      uint16(width),
				Height:     uint16(height),
				ChunkIndex: uint16(i),
				ChunkCount: uint16(chunkCount),
				Offset:     uint32(off),
			}, pix[off:end])
			if _, err := conn.Write(datagram); err != nil {
				fmt.Fprintf(os.Stderr, "send: %v\n", err)
				os.Exit(1)
			}
		}

		sent++
		if sent%(*fpsFlag*5) == 0 {
			fmt.Printf("sent %d frames (%.1fs)\n", sent, t)
		}
	}
}

// drawGradient fills pix with a phase-scrolling RGB gradient.
func drawGradient(pix []byte, width, height int, t float64) {
	i := 0
	for y := 0; y < height; y++ {
		v := float64(y) / float64(height-1)
		for x := 0; x < width; x++ {
			u := float64(x) / float64(width-1)
			pix[i+0] = byte(255 * (0.5 + 0.5*math.Sin(2*math.Pi*(u+t*0.2))))
			pix[i+1] = byte(255 * v)
			pix[i+2] = byte(255 * (0.5 + 0.5*math.Cos(2*math.Pi*(v-t*0.1))))
			i += 3
		}
	}
}
