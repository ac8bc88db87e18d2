package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrWong99/voxtrigger/internal/config"
	"github.com/MrWong99/voxtrigger/internal/observe"
	"github.com/MrWong99/voxtrigger/internal/resilience"
	"github.com/MrWong99/voxtrigger/pkg/provider/asr"
)

// BuildBackend creates the configured backend through reg. With fallbacks
// configured the members are chained behind circuit breakers. A non-nil m
// instruments the result with spans and metrics.
func BuildBackend(cfg config.ASRConfig, reg *config.Registry, m *observe.Metrics) (asr.Backend, error) {
	chain := cfg.Chain()
	primary, err := reg.CreateASR(chain[0], cfg)
	if err != nil {
		return nil, fmt.Errorf("app: build backend: %w", err)
	}

	b := primary
	if len(chain) > 1 {
		fb := resilience.NewASRFallback(primary, resilience.FallbackConfig{
			CircuitBreaker: resilience.CircuitBreakerConfig{
				MaxFailures:  cfg.Breaker.MaxFailures,
				ResetTimeout: cfg.Breaker.ResetTimeout,
				OnStateChange: func(name string, from, to resilience.State) {
					slog.Warn("app: backend breaker changed state", "backend", name, "from", from, "to", to)
					if m != nil {
						m.RecordBreakerTransition(context.Background(), name, to.String())
					}
				},
			},
		})
		for _, name := range chain[1:] {
			next, err := reg.CreateASR(name, cfg)
			if err != nil {
				return nil, fmt.Errorf("app: build fallback backend: %w", err)
			}
			fb.AddFallback(next)
		}
		b = fb
	}

	if m != nil {
		b = observe.InstrumentBackend(b, m)
	}
	return b, nil
}

// DecodeConfig returns the per-request decode settings from cfg.
func DecodeConfig(cfg config.ASRConfig) asr.DecodeConfig {
	return asr.DecodeConfig{
		BeamWidth: 1,
		Language:  cfg.Language,
		MaxTokens: cfg.MaxTokens,
	}
}
