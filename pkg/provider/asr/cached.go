package asr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Compile-time assertion that Cached satisfies Backend.
var _ Backend = (*Cached)(nil)

// LoadSpec tells a [LoadFunc] what to load.
type LoadSpec struct {
	Model     string
	Device    Device
	Precision Precision
}

// LoadFunc builds an engine. It is called at most once per successful load.
type LoadFunc func(ctx context.Context, spec LoadSpec) (Engine, error)

// Option is a functional option for configuring a [Cached] backend.
type Option func(*Cached)

// WithDevicePreference sets the device preference resolved at load time.
// Defaults to [PreferAuto].
func WithDevicePreference(p DevicePreference) Option {
	return func(c *Cached) { c.pref = p }
}

// WithDeviceResolver replaces [ResolveDevice]. Remote engines use it to
// report [DeviceRemote].
func WithDeviceResolver(fn func(DevicePreference) (Device, Precision)) Option {
	return func(c *Cached) { c.resolve = fn }
}

// Cached is the standard [Backend]: it owns the single handle of one variant
// and converts every engine fault into a failed [Result].
type Cached struct {
	variant Variant
	model   string
	pref    DevicePreference
	resolve func(DevicePreference) (Device, Precision)
	load    LoadFunc

	group  singleflight.Group
	mu     sync.Mutex
	handle *Handle
}

// New creates a backend for variant that loads model through load.
func New(variant Variant, model string, load LoadFunc, opts ...Option) (*Cached, error) {
	if variant == "" {
		return nil, errors.New("asr: variant must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("asr: %s: model must not be empty", variant)
	}
	if load == nil {
		return nil, fmt.Errorf("asr: %s: load function must not be nil", variant)
	}
	c := &Cached{
		variant: variant,
		model:   model,
		pref:    PreferAuto,
		resolve: ResolveDevice,
		load:    load,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Variant implements Backend.
func (c *Cached) Variant() Variant { return c.variant }

// Model returns the configured model identity.
func (c *Cached) Model() string { return c.model }

// Loaded implements Backend.
func (c *Cached) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle != nil
}

// Load implements Backend. Concurrent first calls share one load; a caller
// whose ctx ends stops waiting but does not abort the load for the others.
func (c *Cached) Load(ctx context.Context) (*Handle, error) {
	c.mu.Lock()
	h := c.handle
	c.mu.Unlock()
	if h != nil {
		return h, nil
	}

	ch := c.group.DoChan("load", func() (any, error) {
		return c.loadOnce(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("asr: %s: waiting for load: %w", c.variant, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Handle), nil
	}
}

func (c *Cached) loadOnce(ctx context.Context) (h *Handle, err error) {
	c.mu.Lock()
	if c.handle != nil {
		h = c.handle
		c.mu.Unlock()
		return h, nil
	}
	c.mu.Unlock()

	dev, prec := c.resolve(c.pref)
	log := slog.With("variant", c.variant, "model", c.model, "device", dev, "precision", prec)
	log.Info("asr: loading model")

	defer func() {
		if r := recover(); r != nil {
			h, err = nil, fmt.Errorf("asr: %s: load %q: %w: panic: %v", c.variant, c.model, ErrLoad, r)
		}
		if err != nil {
			log.Error("asr: model load failed", "err", err)
		}
	}()

	start := time.Now()
	eng, err := c.load(ctx, LoadSpec{Model: c.model, Device: dev, Precision: prec})
	if err != nil {
		return nil, fmt.Errorf("asr: %s: load %q: %w: %w", c.variant, c.model, ErrLoad, err)
	}
	if eng == nil {
		return nil, fmt.Errorf("asr: %s: load %q: %w: no engine returned", c.variant, c.model, ErrLoad)
	}

	h = NewHandle(c.variant, c.model, dev, prec, eng)
	h.LoadTime = time.Since(start)

	c.mu.Lock()
	c.handle = h
	c.mu.Unlock()
	log.Info("asr: model loaded", "took", h.LoadTime)
	return h, nil
}

// Transcribe implements Backend.
func (c *Cached) Transcribe(ctx context.Context, h *Handle, req Request) (res Result) {
	if err := c.validate(h, req); err != nil {
		return Failure(err)
	}
	cfg := req.Config.WithDefaults()

	start := time.Now()
	defer func() {
		res.Elapsed = time.Since(start)
		if r := recover(); r != nil {
			res = Result{
				Err:     fmt.Errorf("asr: %s: engine panic: %v", c.variant, r),
				Elapsed: time.Since(start),
			}
		}
	}()

	text, err := h.engine.Transcribe(ctx, req.Path, cfg)
	if err != nil {
		return Failure(fmt.Errorf("asr: %s: transcribe %q: %w", c.variant, req.Path, err))
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Failure(fmt.Errorf("asr: %s: %q: %w", c.variant, req.Path, ErrEmptyTranscript))
	}
	return Result{Text: text}
}

func (c *Cached) validate(h *Handle, req Request) error {
	if h == nil || h.engine == nil {
		return fmt.Errorf("%w: handle not loaded", ErrInvalidRequest)
	}
	if h.Variant != c.variant {
		return fmt.Errorf("%w: handle belongs to %s, not %s", ErrInvalidRequest, h.Variant, c.variant)
	}
	if strings.TrimSpace(req.Path) == "" {
		return fmt.Errorf("%w: audio path is empty", ErrInvalidRequest)
	}
	return ValidateConfig(req.Config)
}

// ValidateConfig rejects decode settings the engines do not support.
func ValidateConfig(cfg DecodeConfig) error {
	cfg = cfg.WithDefaults()
	var errs []error
	if cfg.BeamWidth != 1 {
		errs = append(errs, fmt.Errorf("beam width %d (only greedy decoding is supported)", cfg.BeamWidth))
	}
	if cfg.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("max tokens %d is negative", cfg.MaxTokens))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, errors.Join(errs...))
	}
	return nil
}
