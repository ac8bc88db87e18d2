// Package mock provides test doubles for the asr package interfaces.
//
// Use Engine behind an [asr.Cached] backend to exercise the real caching and
// failure conversion with scripted inference. Use Backend where a caller only
// needs something that satisfies [asr.Backend].
//
// Example:
//
//	eng := &mock.Engine{Text: "bật đèn"}
//	loads := 0
//	b, _ := asr.New(asr.VariantWhisper, "test", eng.LoadFunc(&loads))
//	res := asr.Run(ctx, b, asr.Request{Path: "clip.wav"})
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/voxtrigger/pkg/provider/asr"
)

// TranscribeCall records a single invocation of Engine.Transcribe.
type TranscribeCall struct {
	Path   string
	Config asr.DecodeConfig
}

// Engine is a mock implementation of asr.Engine.
type Engine struct {
	mu sync.Mutex

	// Text is returned by Transcribe when TextByPath has no entry.
	Text string

	// TextByPath maps audio paths to transcripts.
	TextByPath map[string]string

	// Err, if non-nil, is returned by Transcribe.
	Err error

	// Panic, if non-nil, makes Transcribe panic with this value.
	Panic any

	// Delay blocks Transcribe for this long (or until ctx ends).
	Delay time.Duration

	// Calls records every call to Transcribe.
	Calls []TranscribeCall

	// Closed is set by Close.
	Closed bool
}

// Transcribe records the call and returns the scripted outcome.
func (e *Engine) Transcribe(ctx context.Context, path string, cfg asr.DecodeConfig) (string, error) {
	e.mu.Lock()
	e.Calls = append(e.Calls, TranscribeCall{Path: path, Config: cfg})
	text, ok := e.TextByPath[path]
	if !ok {
		text = e.Text
	}
	err, p, delay := e.Err, e.Panic, e.Delay
	e.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	if p != nil {
		panic(p)
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

// Close marks the engine closed.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.Closed = true
	e.mu.Unlock()
	return nil
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (e *Engine) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Calls)
}

// LoadFunc returns an asr.LoadFunc handing out e and counting invocations in
// *n. The counter is updated under e's lock.
func (e *Engine) LoadFunc(n *int) asr.LoadFunc {
	return func(context.Context, asr.LoadSpec) (asr.Engine, error) {
		e.mu.Lock()
		*n++
		e.mu.Unlock()
		return e, nil
	}
}

// Ensure Engine implements asr.Engine at compile time.
var _ asr.Engine = (*Engine)(nil)

// Backend is a mock implementation of asr.Backend.
type Backend struct {
	mu sync.Mutex

	// Name is returned by Variant. Defaults to "mock".
	Name asr.Variant

	// Handle is returned by Load. A handle wrapping a nil engine is created
	// on first Load when unset.
	Handle *asr.Handle

	// LoadErr, if non-nil, is returned by Load.
	LoadErr error

	// Result is returned by Transcribe when ResultFunc is nil.
	Result asr.Result

	// ResultFunc, if set, computes the result per request.
	ResultFunc func(req asr.Request) asr.Result

	// LoadCalls and Requests record invocations.
	LoadCalls int
	Requests  []asr.Request

	loaded bool
}

// Variant implements asr.Backend.
func (b *Backend) Variant() asr.Variant {
	if b.Name == "" {
		return "mock"
	}
	return b.Name
}

// Load implements asr.Backend.
func (b *Backend) Load(context.Context) (*asr.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.LoadCalls++
	if b.LoadErr != nil {
		return nil, b.LoadErr
	}
	if b.Handle == nil {
		b.Handle = asr.NewHandle(b.Variant(), "mock-model", asr.DeviceCPU, asr.PrecisionFP32, nil)
	}
	b.loaded = true
	return b.Handle, nil
}

// Loaded implements asr.Backend.
func (b *Backend) Loaded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loaded
}

// Transcribe implements asr.Backend.
func (b *Backend) Transcribe(_ context.Context, _ *asr.Handle, req asr.Request) asr.Result {
	b.mu.Lock()
	b.Requests = append(b.Requests, req)
	fn, res := b.ResultFunc, b.Result
	b.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	return res
}

// RequestCount returns the number of Transcribe calls. Thread-safe.
func (b *Backend) RequestCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Requests)
}

// Ensure Backend implements asr.Backend at compile time.
var _ asr.Backend = (*Backend)(nil)
