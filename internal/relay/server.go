// Package relay accepts program source and spectrum updates from remote
// clients over HTTP and persists them for the render daemon's file feed. The
// files, not this server, are the interface the renderer observes: every
// accepted update is written atomically so the feed never reads a torn file.
package relay

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lumenwall/lumen/internal/certs"
	"github.com/lumenwall/lumen/internal/pipeline"
	"github.com/lumenwall/lumen/internal/render"
)

// maxBodyBytes bounds accepted request bodies; program sources and spectrum
// frames are small.
const maxBodyBytes = 1 << 20

// Config parameterizes the relay server.
type Config struct {
	Addr         string
	ShaderPath   string
	SpectrumPath string

	// WebDir, when set, is served at / for the browser editor UI.
	WebDir string

	// Cert enables TLS when non-nil.
	Cert *certs.CertInfo

	// Stats, when set, backs GET /api/stats.
	Stats func() pipeline.Snapshot

	Log *slog.Logger
}

// Server is the HTTP relay.
type Server struct {
	log      *slog.Logger
	cfg      Config
	upgrader websocket.Upgrader
}

// NewServer creates a relay server. If cfg.Log is nil, slog.Default() is used.
func NewServer(cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		log: log.With("component", "relay"),
		cfg: cfg,
		upgrader: websocket.Upgrader{
			// The relay runs on a trusted LAN and authenticates nobody;
			// origin checks would only break the editor UI served elsewhere.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the relay's route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /shader", s.handleShader)
	mux.HandleFunc("POST /audio", s.handleAudio)
	mux.HandleFunc("GET /ws/audio", s.handleAudioWS)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	if s.cfg.WebDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.cfg.WebDir)))
	}
	return mux
}

// Start serves until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.cfg.Cert != nil {
			srv.TLSConfig = &tls.Config{
				Certificates: []tls.Certificate{s.cfg.Cert.TLSCert},
			}
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()
	s.log.Info("listening", "addr", s.cfg.Addr, "tls", s.cfg.Cert != nil)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("relay server: %w", err)
		}
		return nil
	}
}

type shaderRequest struct {
	Source *string `json:"source"`
}

func (s *Server) handleShader(w http.ResponseWriter, r *http.Request) {
	var req shaderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Source == nil {
		writeError(w, http.StatusBadRequest, "missing 'source'")
		return
	}
	if err := writeFileAtomic(s.cfg.ShaderPath, []byte(*req.Source)); err != nil {
		s.log.Error("persisting program source", "error", err)
		writeError(w, http.StatusInternalServerError, "could not persist source")
		return
	}
	s.log.Info("program source updated", "bytes", len(*req.Source))
	writeOK(w)
}

type spectrumRequest struct {
	FFT *[]float64 `json:"fft"`
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	var req spectrumRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.persistSpectrum(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeOK(w)
}

// handleAudioWS accepts a stream of spectrum frames over one websocket,
// avoiding per-update connection setup for clients sampling at display rate.
func (s *Server) handleAudioWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	s.log.Info("spectrum websocket connected", "remote", conn.RemoteAddr())

	for {
		var req spectrumRequest
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("spectrum websocket read", "error", err)
			}
			return
		}
		if err := s.persistSpectrum(req); err != nil {
			s.log.Debug("dropping malformed spectrum frame", "error", err)
		}
	}
}

// persistSpectrum clamps or zero-pads the bins to the renderer's fixed width
// and writes the normalized document for the feed to pick up.
func (s *Server) persistSpectrum(req spectrumRequest) error {
	if req.FFT == nil {
		return errors.New("missing 'fft'")
	}
	bins := make([]float64, render.SpectrumBins)
	copy(bins, *req.FFT)

	doc, err := json.Marshal(map[string][]float64{"fft": bins})
	if err != nil {
		return fmt.Errorf("encode spectrum: %w", err)
	}
	if err := writeFileAtomic(s.cfg.SpectrumPath, doc); err != nil {
		s.log.Error("persisting spectrum", "error", err)
		return errors.New("could not persist spectrum")
	}
	return nil
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Stats == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.cfg.Stats()); err != nil {
		s.log.Debug("encoding stats", "error", err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// writeFileAtomic replaces path via a temp file and rename, so the feed on
// the other side never observes a partial write. The rename also advances
// the file's modification time, which is the feed's change marker.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"ok": true})
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": msg})
}
