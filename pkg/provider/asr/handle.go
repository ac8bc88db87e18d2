package asr

import "time"

// Handle is a loaded model. It is immutable after construction and lives
// until process exit; there is no eviction.
type Handle struct {
	Variant   Variant
	Model     string
	Device    Device
	Precision Precision

	// LoadedAt and LoadTime describe the load that produced the handle.
	LoadedAt time.Time
	LoadTime time.Duration

	engine Engine
}

// NewHandle wraps an engine. Backends other than [Cached] use it to build
// their own handles.
func NewHandle(v Variant, model string, dev Device, prec Precision, eng Engine) *Handle {
	return &Handle{
		Variant:   v,
		Model:     model,
		Device:    dev,
		Precision: prec,
		LoadedAt:  time.Now(),
		engine:    eng,
	}
}

// Engine returns the loaded engine.
func (h *Handle) Engine() Engine { return h.engine }
