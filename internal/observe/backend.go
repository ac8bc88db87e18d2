package observe

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/voxtrigger/pkg/provider/asr"
)

// Compile-time interface assertion.
var _ asr.Backend = (*instrumentedBackend)(nil)

// InstrumentBackend wraps b so that loads and transcriptions produce spans
// and metrics. The handle passes through untouched.
func InstrumentBackend(b asr.Backend, m *Metrics) asr.Backend {
	return &instrumentedBackend{next: b, m: m}
}

type instrumentedBackend struct {
	next asr.Backend
	m    *Metrics
}

func (ib *instrumentedBackend) Variant() asr.Variant { return ib.next.Variant() }
func (ib *instrumentedBackend) Loaded() bool         { return ib.next.Loaded() }

func (ib *instrumentedBackend) Load(ctx context.Context) (*asr.Handle, error) {
	variant := string(ib.next.Variant())
	wasLoaded := ib.next.Loaded()

	ctx, span := StartSpan(ctx, "asr.load", trace.WithAttributes(attribute.String("asr.variant", variant)))
	defer span.End()

	start := time.Now()
	h, err := ib.next.Load(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("asr.model", h.Model),
		attribute.String("asr.device", string(h.Device)),
		attribute.Bool("asr.cached", wasLoaded),
	)
	if !wasLoaded {
		ib.m.ASRLoadDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
			attribute.String("variant", variant),
			attribute.String("device", string(h.Device)),
		))
	}
	return h, nil
}

func (ib *instrumentedBackend) Transcribe(ctx context.Context, h *asr.Handle, req asr.Request) asr.Result {
	variant := string(ib.next.Variant())
	ctx, span := StartSpan(ctx, "asr.transcribe", trace.WithAttributes(
		attribute.String("asr.variant", variant),
		attribute.String("asr.language", req.Config.WithDefaults().Language),
	))
	defer span.End()

	start := time.Now()
	res := ib.next.Transcribe(ctx, h, req)
	elapsed := time.Since(start)

	status := "ok"
	if !res.OK() {
		status = "error"
		reason := FailureReason(res.Err)
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Cause())
		ib.m.ASRFailures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("variant", variant),
			attribute.String("reason", reason),
		))
	}
	attrs := metric.WithAttributes(
		attribute.String("variant", variant),
		attribute.String("status", status),
	)
	ib.m.ASRRequests.Add(ctx, 1, attrs)
	ib.m.ASRDuration.Record(ctx, elapsed.Seconds(), attrs)
	Logger(ctx).Debug("asr: transcription finished", "variant", variant, "status", status, "took", elapsed)
	return res
}

// FailureReason classifies a failed result's error into a low-cardinality
// metric label.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return "empty"
	case errors.Is(err, asr.ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, asr.ErrLoad):
		return "load"
	case errors.Is(err, asr.ErrEmptyTranscript):
		return "empty"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "engine"
	}
}
