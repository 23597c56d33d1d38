package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lumenwall/lumen/internal/assemble"
	"github.com/lumenwall/lumen/internal/certs"
	"github.com/lumenwall/lumen/internal/display"
	"github.com/lumenwall/lumen/internal/display/hub75"
	"github.com/lumenwall/lumen/internal/feed"
	udpingest "github.com/lumenwall/lumen/internal/ingest/udp"
	"github.com/lumenwall/lumen/internal/pipeline"
	"github.com/lumenwall/lumen/internal/relay"
	"github.com/lumenwall/lumen/internal/render"
)

var version = "dev"

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	width := envInt("WIDTH", 256)
	height := envInt("HEIGHT", 192)
	source := envOr("SOURCE", "udp")
	output := envOr("OUTPUT", "hub75")
	udpAddr := envOr("UDP_ADDR", ":9999")
	relayAddr := envOr("RELAY_ADDR", ":5000")
	fps := envInt("FPS", display.DefaultFPS)
	deadline := envDuration("ASSEMBLY_DEADLINE", assemble.DefaultDeadline)
	maxPending := envInt("MAX_PENDING", 1)
	shaderPath := envOr("SHADER_PATH", "runtime_shader.glsl")
	spectrumPath := envOr("SPECTRUM_PATH", "runtime_fft.json")
	webDir := envOr("WEB_DIR", "")

	slog.Info("lumen starting",
		"version", version,
		"resolution", fmt.Sprintf("%dx%d", width, height),
		"source", source,
		"output", output,
		"fps", fps,
	)

	canvas, err := openCanvas(output, width, height)
	if err != nil {
		slog.Error("failed to initialize display", "error", err)
		os.Exit(1)
	}
	if w, h := canvas.Size(); w != width || h != height {
		slog.Error("display resolution disagrees with configuration",
			"canvas_width", w, "canvas_height", h,
			"want_width", width, "want_height", height)
		os.Exit(1)
	}

	sink := display.NewSink(canvas, nil)
	pacer := display.NewPacer(fps)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	g, ctx := errgroup.WithContext(ctx)

	var producer pipeline.Producer
	switch source {
	case "udp":
		asm := assemble.New(assemble.Config{
			Width:      width,
			Height:     height,
			Deadline:   deadline,
			MaxPending: maxPending,
		})
		srv := udpingest.NewServer(udpAddr, asm, nil)
		g.Go(func() error {
			return srv.Start(ctx)
		})
		producer = srv

	case "render":
		producer = render.NewProducer(width, height,
			render.Builtin{},
			feed.NewShaderFile(shaderPath, nil),
			feed.NewSpectrumFile(spectrumPath, nil),
			nil)

	default:
		slog.Error("unknown source", "source", source)
		os.Exit(1)
	}

	pipe := pipeline.New(producer, sink, pacer, nil)
	g.Go(func() error {
		return pipe.Run(ctx)
	})

	relayCfg := relay.Config{
		Addr:         relayAddr,
		ShaderPath:   shaderPath,
		SpectrumPath: spectrumPath,
		WebDir:       webDir,
		Stats:        pipe.Snapshot,
	}
	if os.Getenv("RELAY_TLS") != "" {
		cert, err := certs.Generate(0)
		if err != nil {
			slog.Error("failed to generate relay certificate", "error", err)
			os.Exit(1)
		}
		slog.Info("relay certificate generated",
			"fingerprint", cert.FingerprintBase64(),
			"expires", cert.NotAfter.Format(time.RFC3339))
		relayCfg.Cert = cert
	}
	relaySrv := relay.NewServer(relayCfg)
	g.Go(func() error {
		return relaySrv.Start(ctx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("daemon error", "error", err)
		os.Exit(1)
	}
}

// openCanvas builds the configured output. "hub75" drives real panels;
// "none" runs headless, which is useful with a sender that only needs the
// relay and stats surfaces.
func openCanvas(output string, width, height int) (display.Canvas, error) {
	switch output {
	case "hub75":
		return hub75.Open(hub75.Config{
			Rows:            envInt("PANEL_ROWS", 64),
			Cols:            envInt("PANEL_COLS", 64),
			ChainLength:     width / envInt("PANEL_COLS", 64),
			Parallel:        height / envInt("PANEL_ROWS", 64),
			Brightness:      envInt("BRIGHTNESS", 0),
			HardwareMapping: envOr("HARDWARE_MAPPING", ""),
		})
	case "none":
		return display.NewMemory(width, height), nil
	default:
		return nil, fmt.Errorf("unknown output %q", output)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("ignoring invalid integer in environment", "key", key, "value", v)
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("ignoring invalid duration in environment", "key", key, "value", v)
		return fallback
	}
	return d
}
