// Package asr defines the speech-recognition backend abstraction.
//
// A [Backend] transcribes one recorded clip at a time. Every backend owns a
// process-lifetime [Handle]: the loaded model graph together with its feature
// processor or tokenizer. Load creates the handle on first use and returns
// the same pointer forever after; concurrent first calls share a single
// load. Transcribe never panics and never returns a raw error; every failure
// is folded into a [Result].
//
// Concrete engines live in subpackages (whisper, wav2vec2, openai) and plug
// into the shared caching logic of [Cached] through a [LoadFunc].
package asr

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors carried by failed results. Use errors.Is to classify.
var (
	// ErrLoad marks a failure to load the model handle.
	ErrLoad = errors.New("asr: model load failed")

	// ErrInvalidRequest marks a request rejected before inference, such as a
	// missing audio path or a non-greedy decode configuration.
	ErrInvalidRequest = errors.New("asr: invalid request")

	// ErrEmptyTranscript marks inference that produced no text.
	ErrEmptyTranscript = errors.New("asr: empty transcript")
)

// Variant names a backend implementation.
type Variant string

const (
	// VariantWhisper is the large, accurate encoder-decoder model.
	VariantWhisper Variant = "whisper"

	// VariantWav2Vec2 is the compact CTC model: fast, less accurate.
	VariantWav2Vec2 Variant = "wav2vec2"

	// VariantOpenAI sends the clip to an OpenAI-compatible transcription API.
	VariantOpenAI Variant = "openai"

	// VariantFallback is a chain of other backends tried in order.
	VariantFallback Variant = "fallback"
)

// Default decode settings.
const (
	DefaultLanguage  = "vi"
	DefaultMaxTokens = 224
)

// DecodeConfig controls decoding. Zero fields take the defaults: greedy
// search, [DefaultLanguage], [DefaultMaxTokens]. Decoding is always
// deterministic transcription; sampling and translation are not offered.
type DecodeConfig struct {
	// BeamWidth must be 1. Larger beams are rejected with ErrInvalidRequest.
	BeamWidth int

	// Language is the spoken-language hint (ISO 639-1).
	Language string

	// MaxTokens caps the generated output of autoregressive decoders to stop
	// runaway decoding. Frame-bounded CTC decoding ignores it.
	MaxTokens int
}

// WithDefaults returns c with zero fields filled in.
func (c DecodeConfig) WithDefaults() DecodeConfig {
	if c.BeamWidth == 0 {
		c.BeamWidth = 1
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	return c
}

// Request is one transcription call. It is immutable.
type Request struct {
	// Path is the audio file to transcribe.
	Path string

	Config DecodeConfig
}

// Result is the outcome of Transcribe: either non-empty Text or a non-nil
// Err, never both.
type Result struct {
	Text string
	Err  error

	// Elapsed is the wall time spent inside the engine.
	Elapsed time.Duration
}

// Failure wraps err into a failed Result.
func Failure(err error) Result {
	if err == nil {
		err = ErrEmptyTranscript
	}
	return Result{Err: err}
}

// OK reports whether the result carries text.
func (r Result) OK() bool { return r.Err == nil && r.Text != "" }

// Cause returns a one-line human-readable failure reason, or "" on success.
func (r Result) Cause() string {
	if r.OK() {
		return ""
	}
	if r.Err == nil {
		return ErrEmptyTranscript.Error()
	}
	return r.Err.Error()
}

// Engine is a loaded model ready for inference. Implementations come from
// the variant subpackages and are only ever called through a [Handle].
//
// Transcribe may return errors or even panic; the owning backend converts
// both into failed results.
type Engine interface {
	Transcribe(ctx context.Context, path string, cfg DecodeConfig) (string, error)
	Close() error
}

// Backend is the polymorphic recognition contract.
//
// Implementations must be safe for concurrent use.
type Backend interface {
	// Variant identifies the implementation.
	Variant() Variant

	// Load returns the process-wide handle, loading it on first use. Later
	// calls return the identical pointer without re-initialising. A failed
	// load is not cached; the next call retries.
	Load(ctx context.Context) (*Handle, error)

	// Loaded reports whether Load has completed successfully.
	Loaded() bool

	// Transcribe runs inference for req with the handle returned by Load.
	Transcribe(ctx context.Context, h *Handle, req Request) Result
}

// Run loads b and transcribes req, turning a load error into a failed
// Result.
func Run(ctx context.Context, b Backend, req Request) Result {
	h, err := b.Load(ctx)
	if err != nil {
		return Failure(err)
	}
	return b.Transcribe(ctx, h, req)
}
