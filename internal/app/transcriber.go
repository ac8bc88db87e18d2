package app

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/MrWong99/voxtrigger/internal/observe"
	"github.com/MrWong99/voxtrigger/internal/transcript"
	"github.com/MrWong99/voxtrigger/pkg/provider/asr"
)

// Transcriber runs one clip through the recognition backend and the
// transcript normalizer. It is shared by the CLI, the listen loop and the
// HTTP server, and is safe for concurrent use.
type Transcriber struct {
	backend asr.Backend
	decode  asr.DecodeConfig
	norm    atomic.Pointer[transcript.Normalizer]
}

// NewTranscriber creates a Transcriber. A nil normalizer uses the defaults.
func NewTranscriber(b asr.Backend, decode asr.DecodeConfig, n *transcript.Normalizer) *Transcriber {
	t := &Transcriber{backend: b, decode: decode}
	t.SetNormalizer(n)
	return t
}

// Backend returns the underlying backend.
func (t *Transcriber) Backend() asr.Backend { return t.backend }

// SetNormalizer swaps the normalizer used by later calls.
func (t *Transcriber) SetNormalizer(n *transcript.Normalizer) {
	if n == nil {
		n = transcript.NewNormalizer()
	}
	t.norm.Store(n)
}

// Warm loads the model ahead of the first request.
func (t *Transcriber) Warm(ctx context.Context) error {
	_, err := t.backend.Load(ctx)
	return err
}

// Transcribe recognises the clip at path. Backend failures keep their
// [asr] sentinels; a clip without usable speech wraps
// [transcript.ErrNoSpeech].
func (t *Transcriber) Transcribe(ctx context.Context, path string) (transcript.Normalized, error) {
	res := asr.Run(ctx, t.backend, asr.Request{Path: path, Config: t.decode})
	if !res.OK() {
		err := res.Err
		if err == nil {
			err = asr.ErrEmptyTranscript
		}
		return transcript.Normalized{}, fmt.Errorf("app: transcribe: %w", err)
	}

	out, err := t.norm.Load().Normalize(res.Text)
	if err != nil {
		return transcript.Normalized{Raw: res.Text}, fmt.Errorf("app: transcribe: %w", err)
	}
	if len(out.Corrections) > 0 {
		observe.Logger(ctx).Debug("app: vocabulary corrections applied",
			"raw", out.Raw, "text", out.Text, "corrections", len(out.Corrections))
	}
	return out, nil
}
