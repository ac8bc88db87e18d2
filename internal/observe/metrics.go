// Package observe provides the observability primitives shared by the CLI
// and the HTTP server: OpenTelemetry metrics and tracing, trace-aware
// logging, an instrumented [asr.Backend] decorator and HTTP middleware.
//
// Metrics go through the OpenTelemetry Metrics API. [InitProvider] bridges
// them to Prometheus so /metrics can be scraped. Tests should build their own
// [Metrics] with [NewMetrics] and a ManualReader instead of the package
// default.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for all voxtrigger metrics.
const meterName = "github.com/MrWong99/voxtrigger"

// Metrics holds every instrument. The OTel types synchronise themselves.
type Metrics struct {
	// ASRDuration is transcription latency, by variant and status.
	ASRDuration metric.Float64Histogram

	// ASRLoadDuration is model load latency, by variant and device.
	ASRLoadDuration metric.Float64Histogram

	// ASRRequests counts transcriptions, by variant and status.
	ASRRequests metric.Int64Counter

	// ASRFailures counts failed transcriptions, by variant and reason.
	ASRFailures metric.Int64Counter

	// TriggerEvents counts detector events, by detector and kind.
	TriggerEvents metric.Int64Counter

	// BreakerTransitions counts circuit breaker changes, by backend and state.
	BreakerTransitions metric.Int64Counter

	// HTTPRequestDuration is HTTP handling latency, by method and path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets (seconds) span a short command clip on an accelerator up to
// a cold model load on CPU.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates all instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ASRDuration, err = m.Float64Histogram("voxtrigger.asr.duration",
		metric.WithDescription("Latency of one transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ASRLoadDuration, err = m.Float64Histogram("voxtrigger.asr.load.duration",
		metric.WithDescription("Latency of loading a recognition model."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ASRRequests, err = m.Int64Counter("voxtrigger.asr.requests",
		metric.WithDescription("Transcriptions by variant and status."),
	); err != nil {
		return nil, err
	}
	if met.ASRFailures, err = m.Int64Counter("voxtrigger.asr.failures",
		metric.WithDescription("Failed transcriptions by variant and reason."),
	); err != nil {
		return nil, err
	}
	if met.TriggerEvents, err = m.Int64Counter("voxtrigger.trigger.events",
		metric.WithDescription("Trigger detector events by detector and kind."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("voxtrigger.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes by backend and target state."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxtrigger.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] built on the global
// meter provider. Panics if instrument creation fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordTriggerEvent counts one detector event.
func (m *Metrics) RecordTriggerEvent(ctx context.Context, detector, kind string) {
	m.TriggerEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("detector", detector),
		attribute.String("kind", kind),
	))
}

// RecordBreakerTransition counts one breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, backend, state string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("state", state),
	))
}
