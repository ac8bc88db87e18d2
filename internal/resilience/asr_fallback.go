package resilience

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/MrWong99/voxtrigger/pkg/audio"
	"github.com/MrWong99/voxtrigger/pkg/provider/asr"
)

// Compile-time interface assertion.
var _ asr.Backend = (*ASRFallback)(nil)

// ASRFallback implements [asr.Backend] over an ordered chain of backends.
//
// Load returns one composite handle for the chain. Member handles stay with
// their members and are loaded lazily: a fallback member is only loaded the
// first time a request reaches it. Invalid requests are rejected up front
// and never count against a breaker.
type ASRFallback struct {
	group *FallbackGroup[asr.Backend]

	mu     sync.Mutex
	handle *asr.Handle
}

// NewASRFallback creates a chain with primary first. Member names are their
// variants.
func NewASRFallback(primary asr.Backend, cfg FallbackConfig) *ASRFallback {
	return &ASRFallback{group: NewFallbackGroup(primary, string(primary.Variant()), cfg)}
}

// AddFallback appends b to the chain. Not safe once the chain is in use.
func (f *ASRFallback) AddFallback(b asr.Backend) {
	f.group.Add(string(b.Variant()), b)
}

// Variant implements asr.Backend.
func (f *ASRFallback) Variant() asr.Variant { return asr.VariantFallback }

// Members returns the member variants with their breaker states.
func (f *ASRFallback) Members() map[asr.Variant]State {
	out := make(map[asr.Variant]State, f.group.Len())
	f.group.Each(func(_ string, b asr.Backend, s State) {
		out[b.Variant()] = s
	})
	return out
}

// Loaded implements asr.Backend.
func (f *ASRFallback) Loaded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handle != nil
}

// Load implements asr.Backend. It succeeds once any member loads, trying
// them in order. The composite handle reports that member's device.
func (f *ASRFallback) Load(ctx context.Context) (*asr.Handle, error) {
	f.mu.Lock()
	h := f.handle
	f.mu.Unlock()
	if h != nil {
		return h, nil
	}

	first, err := ExecuteWithResult(f.group, func(_ string, b asr.Backend) (*asr.Handle, error) {
		return b.Load(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("asr: %s: %w: %w", asr.VariantFallback, asr.ErrLoad, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handle == nil {
		f.handle = asr.NewHandle(asr.VariantFallback, f.chainName(), first.Device, first.Precision, nil)
		f.handle.LoadTime = first.LoadTime
	}
	return f.handle, nil
}

func (f *ASRFallback) chainName() string {
	var names []string
	f.group.Each(func(name string, _ asr.Backend, _ State) {
		names = append(names, name)
	})
	return strings.Join(names, ",")
}

// Transcribe implements asr.Backend. A failed result from one member moves
// on to the next; the returned failure joins every member's cause. A clip
// that cannot be read fails at the first member and is not held against any
// breaker.
func (f *ASRFallback) Transcribe(ctx context.Context, h *asr.Handle, req asr.Request) asr.Result {
	f.mu.Lock()
	own := h != nil && h == f.handle
	f.mu.Unlock()
	if !own {
		return asr.Failure(fmt.Errorf("%w: handle was not issued by this fallback chain", asr.ErrInvalidRequest))
	}
	if strings.TrimSpace(req.Path) == "" {
		return asr.Failure(fmt.Errorf("%w: audio path is empty", asr.ErrInvalidRequest))
	}
	if err := asr.ValidateConfig(req.Config); err != nil {
		return asr.Failure(err)
	}

	res, err := ExecuteWithResult(f.group, func(_ string, b asr.Backend) (asr.Result, error) {
		mh, err := b.Load(ctx)
		if err != nil {
			return asr.Result{}, err
		}
		r := b.Transcribe(ctx, mh, req)
		if r.OK() {
			return r, nil
		}
		if r.Err == nil {
			return r, asr.ErrEmptyTranscript
		}
		if audio.IsInputError(r.Err) {
			return r, Permanent(r.Err)
		}
		return r, r.Err
	})
	if err != nil {
		return asr.Failure(err)
	}
	return res
}
