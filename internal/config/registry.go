package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/voxtrigger/pkg/provider/asr"
)

// ErrProviderNotRegistered is returned by [Registry.CreateASR] when no
// factory has been registered under the requested backend name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// ASRFactory builds a recognition backend from the shared ASR settings.
type ASRFactory func(ASRConfig) (asr.Backend, error)

// Registry maps backend names to their constructor functions. It keeps
// cgo-backed engines out of this package: binaries register what they link.
// It is safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	asr map[string]ASRFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{asr: make(map[string]ASRFactory)}
}

// RegisterASR registers a backend factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterASR(name string, factory ASRFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.asr[name] = factory
}

// CreateASR instantiates the backend registered under name.
// Returns [ErrProviderNotRegistered] if no factory has been registered.
func (r *Registry) CreateASR(name string, cfg ASRConfig) (asr.Backend, error) {
	r.mu.RLock()
	factory, ok := r.asr[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: asr/%q", ErrProviderNotRegistered, name)
	}
	b, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: create asr/%q: %w", name, err)
	}
	return b, nil
}

// ASRNames returns the registered backend names in sorted order.
func (r *Registry) ASRNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.asr))
	for n := range r.asr {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
