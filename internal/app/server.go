package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxtrigger/internal/config"
	"github.com/MrWong99/voxtrigger/internal/health"
	"github.com/MrWong99/voxtrigger/internal/observe"
	"github.com/MrWong99/voxtrigger/internal/transcript"
	"github.com/MrWong99/voxtrigger/pkg/provider/asr"
)

// ServerOption is a functional option for [NewServer].
type ServerOption func(*Server)

// WithMetrics sets the instruments used by the request middleware.
// Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithGatherer sets the registry served on /metrics. Defaults to the
// Prometheus default gatherer.
func WithGatherer(g prometheus.Gatherer) ServerOption {
	return func(s *Server) { s.gatherer = g }
}

// WithReadinessChecks adds checkers to /readyz on top of the model check.
func WithReadinessChecks(checks ...health.Checker) ServerOption {
	return func(s *Server) { s.checks = append(s.checks, checks...) }
}

// WithUploadDir sets where uploads are spooled. Defaults to [os.TempDir].
func WithUploadDir(dir string) ServerOption {
	return func(s *Server) { s.uploadDir = dir }
}

// Server exposes a [Transcriber] over HTTP:
//
//	POST /v1/transcribe  multipart field "file" -> {"text": "..."}
//	GET  /healthz        liveness
//	GET  /readyz         model loaded
//	GET  /metrics        Prometheus
type Server struct {
	tr        *Transcriber
	cfg       config.ServerConfig
	metrics   *observe.Metrics
	gatherer  prometheus.Gatherer
	checks    []health.Checker
	uploadDir string
}

// NewServer creates a Server for tr.
func NewServer(tr *Transcriber, cfg config.ServerConfig, opts ...ServerOption) *Server {
	s := &Server{tr: tr, cfg: cfg, uploadDir: os.TempDir()}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.cfg.MaxUploadBytes <= 0 {
		s.cfg.MaxUploadBytes = 32 << 20
	}
	if s.cfg.ShutdownTimeout <= 0 {
		s.cfg.ShutdownTimeout = 10 * time.Second
	}
	return s
}

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	checks := append([]health.Checker{health.ModelLoaded(s.tr.Backend())}, s.checks...)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/transcribe", s.handleTranscribe)
	health.New(checks...).Register(mux)
	mux.Handle("GET /metrics", observe.MetricsHandler(s.gatherer))
	return observe.Middleware(s.metrics)(mux)
}

// Run serves on the configured address until ctx is done, then shuts down
// gracefully. With preload configured the model is loaded in parallel with
// serving; /readyz reports it.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %q: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is [Server.Run] on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("app: http server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return fmt.Errorf("app: shutdown: %w", err)
		}
		slog.Info("app: http server stopped")
		return nil
	})
	if s.cfg.Preload {
		g.Go(func() error {
			if err := s.tr.Warm(gctx); err != nil {
				slog.Error("app: model preload failed", "err", err)
			}
			return nil
		})
	}
	return g.Wait()
}

type transcribeResponse struct {
	Text        string                  `json:"text,omitempty"`
	Raw         string                  `json:"raw,omitempty"`
	Corrections []transcript.Correction `json:"corrections,omitempty"`
	Error       string                  `json:"error,omitempty"`
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	log := observe.Logger(r.Context())

	if r.ContentLength > s.cfg.MaxUploadBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, transcribeResponse{Error: "upload exceeds the size limit"})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, transcribeResponse{Error: "upload exceeds the size limit"})
			return
		}
		writeJSON(w, http.StatusBadRequest, transcribeResponse{Error: "multipart field \"file\" is required"})
		return
	}
	defer file.Close()

	path, err := s.spool(file, header.Filename)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, transcribeResponse{Error: "upload exceeds the size limit"})
			return
		}
		log.Error("app: spool upload", "err", err)
		writeJSON(w, http.StatusInternalServerError, transcribeResponse{Error: "could not store upload"})
		return
	}
	defer os.Remove(path)

	out, err := s.tr.Transcribe(r.Context(), path)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusServiceUnavailable
		}
		if !errors.Is(err, transcript.ErrNoSpeech) && !errors.Is(err, asr.ErrEmptyTranscript) {
			log.Warn("app: transcription failed", "file", header.Filename, "err", err)
		}
		writeJSON(w, status, transcribeResponse{Error: err.Error(), Raw: out.Raw})
		return
	}
	writeJSON(w, http.StatusOK, transcribeResponse{Text: out.Text, Raw: out.Raw, Corrections: out.Corrections})
}

// spool copies an upload to a temporary file, keeping its extension so
// the decoder can tell the container apart.
func (s *Server) spool(src io.Reader, name string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if len(ext) > 8 {
		ext = ""
	}
	f, err := os.CreateTemp(s.uploadDir, "voxtrigger-upload-*"+ext)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("app: encode response", "err", err)
	}
}
