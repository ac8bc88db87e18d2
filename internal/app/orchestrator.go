package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/voxtrigger/internal/observe"
	"github.com/MrWong99/voxtrigger/internal/recorder"
	"github.com/MrWong99/voxtrigger/pkg/trigger"
)

// Recording is a capture in progress.
type Recording interface {
	Path() string
	Stop() error
	Remove() error
}

// Recorder produces captures. Start runs until the returned Recording is
// stopped. Record captures for a fixed duration and removes the clip itself
// when it fails or ctx ends.
type Recorder interface {
	Start(ctx context.Context) (Recording, error)
	Record(ctx context.Context, d time.Duration) (Recording, error)
}

// FromRecorder adapts an external command recorder.
func FromRecorder(r *recorder.Recorder) Recorder {
	return commandRecorder{r: r}
}

type commandRecorder struct {
	r *recorder.Recorder
}

func (c commandRecorder) Start(ctx context.Context) (Recording, error) {
	rec, err := c.r.Start(ctx)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (c commandRecorder) Record(ctx context.Context, d time.Duration) (Recording, error) {
	rec, err := c.r.Record(ctx, d)
	if err != nil {
		return nil, err
	}
	slog.Debug("app: capture finished", "clip", rec.Path(), "took", rec.Duration())
	return rec, nil
}

// OrchestratorOption is a functional option for [NewOrchestrator].
type OrchestratorOption func(*Orchestrator)

// WithFixedRecording makes the recording start when the trigger window
// closes and last d. This suits one-shot signals such as a gesture, whose
// window only covers the settle delay. Without it the recording spans the
// window itself, as with a held key.
func WithFixedRecording(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.fixed = d }
}

// WithMaxRecord bounds a window-spanning recording. Defaults to 30 s.
func WithMaxRecord(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.maxRecord = d }
}

// WithOutput sets where transcripts are written, one per line.
// Defaults to os.Stdout.
func WithOutput(w io.Writer) OrchestratorOption {
	return func(o *Orchestrator) { o.out = w }
}

// WithOnce stops Listen after the first utterance, returning its error.
func WithOnce(once bool) OrchestratorOption {
	return func(o *Orchestrator) { o.once = once }
}

// WithKeepClips leaves recorded clips on disk.
func WithKeepClips(keep bool) OrchestratorOption {
	return func(o *Orchestrator) { o.keep = keep }
}

// WithTriggerMetrics records trigger edges under the detector name.
func WithTriggerMetrics(m *observe.Metrics, detector string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.metrics = m
		o.detectorName = detector
	}
}

// Orchestrator ties a trigger detector, the recorder and a [Transcriber]
// into the listen loop: wait for the signal, record, transcribe, print.
type Orchestrator struct {
	detector trigger.Detector
	rec      Recorder
	tr       *Transcriber

	fixed        time.Duration
	maxRecord    time.Duration
	out          io.Writer
	once         bool
	keep         bool
	metrics      *observe.Metrics
	detectorName string

	outMu sync.Mutex
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(det trigger.Detector, rec Recorder, tr *Transcriber, opts ...OrchestratorOption) (*Orchestrator, error) {
	if det == nil || rec == nil || tr == nil {
		return nil, errors.New("app: detector, recorder and transcriber are required")
	}
	o := &Orchestrator{
		detector:     det,
		rec:          rec,
		tr:           tr,
		maxRecord:    30 * time.Second,
		out:          os.Stdout,
		detectorName: "trigger",
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.maxRecord <= 0 || o.fixed < 0 {
		return nil, errors.New("app: recording durations must be positive")
	}
	return o, nil
}

// Listen handles utterances until ctx is done or the detector finishes
// without a window, both of which return nil. A failed utterance is logged
// and the loop continues, unless [WithOnce] is set. Device failures end the
// loop with an error.
func (o *Orchestrator) Listen(ctx context.Context) error {
	for {
		text, err := o.Utterance(ctx)
		switch {
		case errors.Is(err, errNoWindow) || ctx.Err() != nil:
			return nil
		case errors.Is(err, trigger.ErrDeviceUnavailable):
			return err
		case err != nil:
			if o.once {
				return err
			}
			observe.Logger(ctx).Warn("app: utterance failed", "err", err)
			continue
		}

		if err := o.emit(text); err != nil {
			return err
		}
		if o.once {
			return nil
		}
	}
}

var errNoWindow = errors.New("app: detector finished without a trigger window")

// Utterance runs one trigger window, records and returns the normalised
// transcript. The clip is removed afterwards unless kept.
func (o *Orchestrator) Utterance(ctx context.Context) (string, error) {
	ctx, span := observe.StartSpan(ctx, "app.utterance")
	defer span.End()
	log := observe.Logger(ctx)

	var (
		mu       sync.Mutex
		rec      Recording
		startErr error
		limit    *time.Timer
	)
	onStart := func(ev trigger.Event) {
		o.recordEdge(ctx, ev)
		if o.fixed > 0 {
			return
		}
		r, err := o.rec.Start(ctx)
		mu.Lock()
		defer mu.Unlock()
		rec, startErr = r, err
		if err == nil {
			log.Info("app: recording", "clip", r.Path())
			limit = time.AfterFunc(o.maxRecord, func() {
				log.Warn("app: recording hit the length limit", "limit", o.maxRecord)
				r.Stop()
			})
		}
	}

	_, end, ok, err := trigger.Window(ctx, o.detector, onStart)

	mu.Lock()
	if limit != nil {
		limit.Stop()
	}
	r, rerr := rec, startErr
	mu.Unlock()

	if r != nil {
		defer o.discard(ctx, r)
	}
	if err != nil && !errors.Is(err, trigger.ErrCanceled) {
		if r != nil {
			r.Stop()
		}
		return "", fmt.Errorf("app: trigger: %w", err)
	}
	if !ok {
		if r != nil {
			r.Stop()
		}
		return "", errNoWindow
	}
	o.recordEdge(ctx, end)
	if rerr != nil {
		return "", fmt.Errorf("app: start recording: %w", rerr)
	}

	if o.fixed > 0 {
		r, err = o.recordFixed(ctx)
		if err != nil {
			return "", err
		}
		defer o.discard(ctx, r)
	} else if err := r.Stop(); err != nil {
		return "", fmt.Errorf("app: stop recording: %w", err)
	}

	out, err := o.tr.Transcribe(ctx, r.Path())
	if err != nil {
		return "", err
	}
	return out.Text, nil
}

func (o *Orchestrator) recordFixed(ctx context.Context) (Recording, error) {
	observe.Logger(ctx).Info("app: recording", "for", o.fixed)
	r, err := o.rec.Record(ctx, o.fixed)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("app: record: %w", err)
	}
	return r, nil
}

func (o *Orchestrator) discard(ctx context.Context, r Recording) {
	if o.keep {
		return
	}
	if err := r.Remove(); err != nil {
		observe.Logger(ctx).Warn("app: failed to remove clip", "clip", r.Path(), "err", err)
	}
}

func (o *Orchestrator) recordEdge(ctx context.Context, ev trigger.Event) {
	slog.Debug("app: trigger edge", "detector", o.detectorName, "kind", ev.Kind, "frame", ev.Frame)
	if o.metrics != nil {
		o.metrics.RecordTriggerEvent(ctx, o.detectorName, ev.Kind.String())
	}
}

func (o *Orchestrator) emit(text string) error {
	o.outMu.Lock()
	defer o.outMu.Unlock()
	if _, err := fmt.Fprintln(o.out, text); err != nil {
		return fmt.Errorf("app: write transcript: %w", err)
	}
	return nil
}
