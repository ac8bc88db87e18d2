// Package app wires the voxtrigger subsystems into running commands.
//
// [App] builds the recognition backend from configuration and owns the
// shared [Transcriber]. The listen loop ([Orchestrator]) and the HTTP
// front end ([Server]) are built on top of it by the CLI.
//
// For testing, inject a backend via [WithBackend]; otherwise New creates
// the configured variants through the config registry.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/voxtrigger/internal/config"
	"github.com/MrWong99/voxtrigger/internal/observe"
	"github.com/MrWong99/voxtrigger/internal/transcript"
	"github.com/MrWong99/voxtrigger/pkg/provider/asr"
)

// App owns the configured backend and the hot-reloadable settings.
type App struct {
	cfg     *config.Config
	reg     *config.Registry
	metrics *observe.Metrics
	level   *slog.LevelVar
	backend asr.Backend
	tr      *Transcriber

	mu      sync.Mutex
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithBackend injects a backend instead of building one from the registry.
func WithBackend(b asr.Backend) Option {
	return func(a *App) { a.backend = b }
}

// WithInstruments enables backend spans and metrics on m.
func WithInstruments(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel lets configuration reloads adjust v.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// New creates an App for cfg. reg may be nil when [WithBackend] is given.
// No model is loaded here.
func New(cfg *config.Config, reg *config.Registry, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, reg: reg}
	for _, o := range opts {
		o(a)
	}

	if a.backend == nil {
		if reg == nil {
			return nil, fmt.Errorf("app: a registry is required to build asr/%q", cfg.ASR.Backend)
		}
		b, err := BuildBackend(cfg.ASR, reg, a.metrics)
		if err != nil {
			return nil, err
		}
		a.backend = b
	} else if a.metrics != nil {
		a.backend = observe.InstrumentBackend(a.backend, a.metrics)
	}

	a.tr = NewTranscriber(a.backend, DecodeConfig(cfg.ASR), NewNormalizer(cfg.Transcript))
	slog.Debug("app: initialised", "backend", a.backend.Variant(), "chain", cfg.ASR.Chain())
	return a, nil
}

// Config returns the configuration the App was built from.
func (a *App) Config() *config.Config { return a.cfg }

// Backend returns the (possibly instrumented) backend.
func (a *App) Backend() asr.Backend { return a.backend }

// Transcriber returns the shared transcriber.
func (a *App) Transcriber() *Transcriber { return a.tr }

// Reload applies the hot-reloadable parts of a configuration change: log
// level and transcript settings. Other changes are logged as requiring a
// restart. It is meant as a [config.Watcher] callback.
func (a *App) Reload(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(ParseLevel(d.NewLogLevel))
		slog.Info("app: log level changed", "level", d.NewLogLevel)
	}
	if d.TranscriptChanged {
		a.tr.SetNormalizer(NewNormalizer(new.Transcript))
		slog.Info("app: transcript settings reloaded", "vocabulary", len(new.Transcript.Vocabulary))
	}
	if !d.HotReloadable() {
		slog.Warn("app: configuration changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// OnShutdown registers fn to run during [App.Shutdown], in registration
// order.
func (a *App) OnShutdown(fn func() error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, fn)
}

// Shutdown runs the registered closers. It respects the context deadline:
// if ctx expires first, remaining closers are skipped and the context error
// is returned. Loaded models are not released; they live for the process.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.mu.Lock()
		closers := append([]func() error(nil), a.closers...)
		a.mu.Unlock()

		for i, closer := range closers {
			select {
			case <-ctx.Done():
				slog.Warn("app: shutdown deadline exceeded", "remaining", len(closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("app: closer error", "index", i, "err", err)
			}
		}
		slog.Debug("app: shutdown complete")
	})
	return shutdownErr
}

// NewNormalizer builds the transcript normalizer for cfg.
func NewNormalizer(cfg config.TranscriptConfig) *transcript.Normalizer {
	opts := []transcript.Option{transcript.WithMinRunes(cfg.MinRunes)}
	if len(cfg.Markers) > 0 {
		opts = append(opts, transcript.WithMarkers(cfg.Markers...))
	}
	if len(cfg.Vocabulary) > 0 {
		opts = append(opts, transcript.WithVocabulary(cfg.Vocabulary, nil))
	}
	return transcript.NewNormalizer(opts...)
}

// ParseLevel maps a configured level onto slog. Unknown values mean info.
func ParseLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
