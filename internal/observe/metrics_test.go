package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns Metrics backed by a ManualReader.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// counterValue sums the data points of a counter whose attributes include
// every pair in want.
func counterValue(t *testing.T, rm metricdata.ResourceMetrics, name string, want ...attribute.KeyValue) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		return 0
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s is %T, want Sum[int64]", name, met.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		match := true
		for _, kv := range want {
			v, ok := dp.Attributes.Value(kv.Key)
			if !ok || v.Emit() != kv.Value.Emit() {
				match = false
				break
			}
		}
		if match {
			total += dp.Value
		}
	}
	return total
}

func TestRecordHelpers(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTriggerEvent(ctx, "keys", "started")
	m.RecordTriggerEvent(ctx, "keys", "ended")
	m.RecordTriggerEvent(ctx, "gesture", "started")
	m.RecordBreakerTransition(ctx, "whisper", "open")

	rm := collect(t, reader)
	tests := []struct {
		name   string
		metric string
		attrs  []attribute.KeyValue
		want   int64
	}{
		{"all trigger events", "voxtrigger.trigger.events", nil, 3},
		{"keys events", "voxtrigger.trigger.events", []attribute.KeyValue{attribute.String("detector", "keys")}, 2},
		{"gesture started", "voxtrigger.trigger.events", []attribute.KeyValue{attribute.String("detector", "gesture"), attribute.String("kind", "started")}, 1},
		{"breaker", "voxtrigger.breaker.transitions", []attribute.KeyValue{attribute.String("backend", "whisper"), attribute.String("state", "open")}, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := counterValue(t, rm, tc.metric, tc.attrs...); got != tc.want {
				t.Errorf("%s = %d, want %d", tc.metric, got, tc.want)
			}
		})
	}
}

func TestNewMetrics_AllInstrumentsUsable(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ASRDuration.Record(ctx, 0.4)
	m.ASRLoadDuration.Record(ctx, 12)
	m.ASRRequests.Add(ctx, 1)
	m.ASRFailures.Add(ctx, 1)
	m.HTTPRequestDuration.Record(ctx, 0.01)

	rm := collect(t, reader)
	for _, name := range []string{
		"voxtrigger.asr.duration",
		"voxtrigger.asr.load.duration",
		"voxtrigger.asr.requests",
		"voxtrigger.asr.failures",
		"voxtrigger.http.request.duration",
	} {
		if findMetric(rm, name) == nil {
			t.Errorf("metric %s not collected", name)
		}
	}
}
