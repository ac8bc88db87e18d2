// Package whisper implements the accurate recognition variant on top of the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH.
//
// Clips are decoded to 16 kHz mono and run through a fresh whisper context.
// Short clips take a single pass; clips longer than the chunk length are
// split into fixed windows that are transcribed in order and joined.
//
// Usage:
//
//	b, err := whisper.New("vinai/PhoWhisper-small",
//	    whisper.WithModelsDir("/var/lib/voxtrigger/models"),
//	)
//	res := asr.Run(ctx, b, asr.Request{Path: "clip.wav"})
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/voxtrigger/pkg/audio"
	"github.com/MrWong99/voxtrigger/pkg/provider/asr"
)

const (
	// DefaultModel is the published model used when none is configured.
	DefaultModel = "vinai/PhoWhisper-small"

	// EnvModel overrides the model identity.
	EnvModel = "VOXTRIGGER_WHISPER_MODEL"

	defaultChunkLength = 30 * time.Second
)

// Compile-time assertion that engine satisfies asr.Engine.
var _ asr.Engine = (*engine)(nil)

// Option is a functional option for [New].
type Option func(*loader)

// WithModelsDir sets the directory model identities are resolved under.
// Defaults to "models".
func WithModelsDir(dir string) Option {
	return func(l *loader) { l.modelsDir = dir }
}

// WithChunkLength sets the longest clip transcribed in a single pass. Longer
// clips are split. Zero disables chunking. Defaults to 30 s.
func WithChunkLength(d time.Duration) Option {
	return func(l *loader) { l.chunk = d }
}

// WithThreads sets the number of CPU threads per inference. Zero keeps the
// whisper.cpp default.
func WithThreads(n uint) Option {
	return func(l *loader) { l.threads = n }
}

// WithFFmpeg sets the ffmpeg binary used for non-WAV input.
func WithFFmpeg(path string) Option {
	return func(l *loader) { l.ffmpeg = path }
}

// WithBackendOptions forwards options to the underlying [asr.Cached].
func WithBackendOptions(opts ...asr.Option) Option {
	return func(l *loader) { l.backendOpts = append(l.backendOpts, opts...) }
}

type loader struct {
	modelsDir   string
	chunk       time.Duration
	threads     uint
	ffmpeg      string
	backendOpts []asr.Option
}

// New creates the whisper backend for model. The model is not loaded until
// the first Load call.
func New(model string, opts ...Option) (*asr.Cached, error) {
	if model == "" {
		model = DefaultModel
	}
	l := &loader{
		modelsDir: "models",
		chunk:     defaultChunkLength,
		ffmpeg:    "ffmpeg",
	}
	for _, o := range opts {
		o(l)
	}
	return asr.New(asr.VariantWhisper, model, l.load, l.backendOpts...)
}

func (l *loader) load(_ context.Context, spec asr.LoadSpec) (asr.Engine, error) {
	path, err := ResolveModelPath(l.modelsDir, spec.Model, spec.Precision)
	if err != nil {
		return nil, err
	}
	model, err := whisperlib.New(path)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", path, err)
	}
	slog.Debug("whisper: weights opened", "path", path, "multilingual", model.IsMultilingual())
	return &engine{
		model:   model,
		chunk:   l.chunk,
		threads: l.threads,
		ffmpeg:  l.ffmpeg,
	}, nil
}

// engine is the loaded whisper model. The model is shared; each inference
// creates its own context, which is not thread-safe.
type engine struct {
	model   whisperlib.Model
	chunk   time.Duration
	threads uint
	ffmpeg  string
}

// Transcribe implements asr.Engine.
func (e *engine) Transcribe(ctx context.Context, path string, cfg asr.DecodeConfig) (string, error) {
	if !e.model.IsMultilingual() && cfg.Language != "en" {
		return "", fmt.Errorf("whisper: model is English-only, cannot transcribe %q", cfg.Language)
	}
	clip, err := audio.Load(ctx, path, audio.SpeechRate, audio.WithFFmpeg(e.ffmpeg))
	if err != nil {
		return "", err
	}

	chunks := clip.Chunks(e.chunk)
	budget := cfg.MaxTokens
	var parts []string
	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("whisper: chunk %d/%d: %w", i+1, len(chunks), err)
		}
		text, used, err := e.infer(c.Samples, cfg, budget)
		if err != nil {
			return "", fmt.Errorf("whisper: chunk %d/%d: %w", i+1, len(chunks), err)
		}
		if text != "" {
			parts = append(parts, text)
		}
		budget -= used
		if budget <= 0 {
			slog.Debug("whisper: token budget exhausted", "chunks_done", i+1, "chunks", len(chunks))
			break
		}
	}
	return strings.Join(parts, " "), nil
}

// infer runs one whisper pass over samples with greedy decoding and returns
// the text of at most budget tokens together with the number consumed.
func (e *engine) infer(samples []float32, cfg asr.DecodeConfig, budget int) (string, int, error) {
	// Each context is NOT thread-safe, but the model can be shared across
	// goroutines. Fresh contexts use the greedy sampling strategy.
	wctx, err := e.model.NewContext()
	if err != nil {
		return "", 0, fmt.Errorf("create context: %w", err)
	}
	if err := wctx.SetLanguage(cfg.Language); err != nil {
		return "", 0, fmt.Errorf("set language %q: %w", cfg.Language, err)
	}
	wctx.SetTranslate(false)
	wctx.SetTemperature(0)
	wctx.SetTemperatureFallback(0)
	wctx.SetMaxTokensPerSegment(uint(budget))
	if e.threads > 0 {
		wctx.SetThreads(e.threads)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", 0, fmt.Errorf("process audio: %w", err)
	}

	var (
		parts []string
		used  int
	)
	for used < budget {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", used, fmt.Errorf("read segment: %w", err)
		}
		used += len(segment.Tokens)
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), used, nil
}

// Close releases the model.
func (e *engine) Close() error {
	return e.model.Close()
}
