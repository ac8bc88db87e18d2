package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MrWong99/voxtrigger/internal/observe"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

// telemetry holds the process metrics and the registry they are exported
// through.
type telemetry struct {
	metrics  *observe.Metrics
	registry *prometheus.Registry
	shutdown func(context.Context) error
}

// initTelemetry installs the OpenTelemetry providers with a Prometheus
// exporter on a private registry.
func initTelemetry(ctx context.Context) (*telemetry, error) {
	reg := prometheus.NewRegistry()
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voxtrigger",
		ServiceVersion: version,
		Registerer:     reg,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	m := observe.DefaultMetrics()
	return &telemetry{metrics: m, registry: reg, shutdown: shutdown}, nil
}

func (t *telemetry) close(ctx context.Context) {
	if err := t.shutdown(ctx); err != nil {
		slog.Warn("telemetry shutdown", "err", err)
	}
}
