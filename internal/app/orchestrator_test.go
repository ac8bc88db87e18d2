package app_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/voxtrigger/internal/app"
	"github.com/MrWong99/voxtrigger/internal/recorder"
	"github.com/MrWong99/voxtrigger/pkg/provider/asr"
	"github.com/MrWong99/voxtrigger/pkg/provider/asr/mock"
	"github.com/MrWong99/voxtrigger/pkg/trigger"
)

func newOrchestrator(t *testing.T, det trigger.Detector, rec *fakeRecorder, b asr.Backend, opts ...app.OrchestratorOption) (*app.Orchestrator, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	tr := app.NewTranscriber(b, asr.DecodeConfig{}, nil)
	opts = append([]app.OrchestratorOption{app.WithOutput(&out)}, opts...)
	o, err := app.NewOrchestrator(det, rec, tr, opts...)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return o, &out
}

func TestOrchestrator_ListenHeldKey(t *testing.T) {
	t.Parallel()

	det := &scriptedDetector{windows: 2}
	rec := &fakeRecorder{dir: t.TempDir()}
	backend := &mock.Backend{Result: asr.Result{Text: "  bật   đèn [BLANK_AUDIO] "}}

	o, out := newOrchestrator(t, det, rec, backend)
	if err := o.Listen(context.Background()); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	if got, want := out.String(), "bật đèn\nbật đèn\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
	recs := rec.Recordings()
	if len(recs) != 2 {
		t.Fatalf("recordings = %d, want 2", len(recs))
	}
	for i, r := range recs {
		if r.Stops() == 0 {
			t.Errorf("recording %d never stopped", i)
		}
		if !r.Removed() {
			t.Errorf("recording %d not removed", i)
		}
	}
	if backend.RequestCount() != 2 {
		t.Errorf("transcribe requests = %d, want 2", backend.RequestCount())
	}
	if got := backend.Requests[0].Path; got != recs[0].Path() {
		t.Errorf("transcribed %q, want clip %q", got, recs[0].Path())
	}
}

func TestOrchestrator_FixedRecordingStartsAfterWindow(t *testing.T) {
	t.Parallel()

	det := &scriptedDetector{windows: 1}
	rec := &fakeRecorder{dir: t.TempDir(), detectorRuns: det.Runs}
	backend := &mock.Backend{Result: asr.Result{Text: "mở cửa"}}

	o, out := newOrchestrator(t, det, rec, backend, app.WithFixedRecording(20*time.Millisecond), app.WithOnce(true))
	start := time.Now()
	if err := o.Listen(context.Background()); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("fixed recording returned before its duration")
	}
	if out.String() != "mở cửa\n" {
		t.Errorf("output = %q", out.String())
	}
	if len(rec.runsAtRec) != 1 || rec.runsAtRec[0] != 1 {
		t.Errorf("recording started at detector runs %v, want after the first run", rec.runsAtRec)
	}
	if det.Runs() != 1 {
		t.Errorf("detector runs = %d, want 1 with once", det.Runs())
	}
}

func TestOrchestrator_FailedUtteranceContinues(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	det := &scriptedDetector{windows: 2}
	rec := &fakeRecorder{dir: t.TempDir()}
	backend := &mock.Backend{ResultFunc: func(asr.Request) asr.Result {
		if calls.Add(1) == 1 {
			return asr.Failure(errEngine)
		}
		return asr.Result{Text: "tắt đèn"}
	}}

	o, out := newOrchestrator(t, det, rec, backend)
	if err := o.Listen(context.Background()); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if out.String() != "tắt đèn\n" {
		t.Errorf("output = %q, want only the second utterance", out.String())
	}
	for i, r := range rec.Recordings() {
		if !r.Removed() {
			t.Errorf("recording %d not removed after failure", i)
		}
	}
}

func TestOrchestrator_OnceReturnsFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		rec     *fakeRecorder
		backend *mock.Backend
		want    error
	}{
		{
			name:    "engine failure",
			rec:     &fakeRecorder{},
			backend: &mock.Backend{Result: asr.Failure(errEngine)},
			want:    errEngine,
		},
		{
			name:    "recorder cannot start",
			rec:     &fakeRecorder{startErr: errors.New("no microphone")},
			backend: &mock.Backend{Result: asr.Result{Text: "bật đèn"}},
		},
		{
			name:    "recorder captured nothing",
			rec:     &fakeRecorder{stopErr: errors.New("empty clip")},
			backend: &mock.Backend{Result: asr.Result{Text: "bật đèn"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tt.rec.dir = t.TempDir()
			o, out := newOrchestrator(t, &scriptedDetector{windows: 1}, tt.rec, tt.backend, app.WithOnce(true))

			err := o.Listen(context.Background())
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if out.Len() != 0 {
				t.Errorf("unexpected output %q", out.String())
			}
		})
	}
}

func TestOrchestrator_DeviceFailureEndsListen(t *testing.T) {
	t.Parallel()

	det := &scriptedDetector{err: fmt.Errorf("keyhold: enter raw mode: %w", trigger.ErrDeviceUnavailable)}
	rec := &fakeRecorder{dir: t.TempDir()}
	o, _ := newOrchestrator(t, det, rec, &mock.Backend{})

	err := o.Listen(context.Background())
	if !errors.Is(err, trigger.ErrDeviceUnavailable) {
		t.Fatalf("Listen error = %v, want ErrDeviceUnavailable", err)
	}
	if det.Runs() != 1 {
		t.Errorf("detector runs = %d, want 1", det.Runs())
	}
}

func TestOrchestrator_MaxRecordStopsCapture(t *testing.T) {
	t.Parallel()

	rec := &fakeRecorder{dir: t.TempDir()}
	det := &scriptedDetector{windows: 1}
	limited := make(chan bool, 1)
	det.beforeEnd = func() {
		recs := rec.Recordings()
		select {
		case <-recs[0].stopped:
			limited <- true
		case <-time.After(5 * time.Second):
			limited <- false
		}
	}
	backend := &mock.Backend{Result: asr.Result{Text: "bật quạt"}}

	o, out := newOrchestrator(t, det, rec, backend, app.WithMaxRecord(10*time.Millisecond), app.WithOnce(true))
	if err := o.Listen(context.Background()); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if !<-limited {
		t.Fatal("recording was not stopped at the length limit")
	}
	if out.String() != "bật quạt\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestOrchestrator_CancelDuringFixedRecording(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	det := &scriptedDetector{windows: 5}
	rec := &fakeRecorder{dir: t.TempDir()}
	backend := &mock.Backend{Result: asr.Result{Text: "bật đèn"}}

	o, out := newOrchestrator(t, det, rec, backend, app.WithFixedRecording(time.Minute))
	time.AfterFunc(50*time.Millisecond, cancel)

	if err := o.Listen(ctx); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if out.Len() != 0 || backend.RequestCount() != 0 {
		t.Errorf("cancelled recording was transcribed: output %q", out.String())
	}
	recs := rec.Recordings()
	if len(recs) != 1 || !recs[0].Removed() {
		t.Errorf("partial clip not removed: %d recordings", len(recs))
	}
}

func TestOrchestrator_KeepClips(t *testing.T) {
	t.Parallel()

	rec := &fakeRecorder{dir: t.TempDir()}
	backend := &mock.Backend{Result: asr.Result{Text: "bật đèn"}}
	o, _ := newOrchestrator(t, &scriptedDetector{windows: 1}, rec, backend, app.WithKeepClips(true), app.WithOnce(true))

	if err := o.Listen(context.Background()); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if rec.Recordings()[0].Removed() {
		t.Error("clip removed despite WithKeepClips")
	}
}

func TestNewOrchestrator_Validation(t *testing.T) {
	t.Parallel()

	tr := app.NewTranscriber(&mock.Backend{}, asr.DecodeConfig{}, nil)
	rec := &fakeRecorder{}
	if _, err := app.NewOrchestrator(nil, rec, tr); err == nil {
		t.Error("nil detector: expected error")
	}
	if _, err := app.NewOrchestrator(&scriptedDetector{}, nil, tr); err == nil {
		t.Error("nil recorder: expected error")
	}
	if _, err := app.NewOrchestrator(&scriptedDetector{}, rec, tr, app.WithMaxRecord(0)); err == nil {
		t.Error("zero max record: expected error")
	}
	if _, err := app.NewOrchestrator(&scriptedDetector{}, rec, nil); err == nil || !strings.Contains(err.Error(), "required") {
		t.Errorf("nil transcriber: got %v", err)
	}
}

func TestOrchestrator_FixedRecordingWithCommandRecorder(t *testing.T) {
	t.Parallel()

	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()
	r, err := recorder.New(`sh -c 'printf RIFF > "$0"; exec sleep 30' {output}`, recorder.WithDir(dir))
	if err != nil {
		t.Fatalf("recorder.New: %v", err)
	}

	backend := &mock.Backend{Result: asr.Result{Text: "mở cửa"}}
	var out bytes.Buffer
	o, err := app.NewOrchestrator(&scriptedDetector{windows: 1}, app.FromRecorder(r),
		app.NewTranscriber(backend, asr.DecodeConfig{}, nil),
		app.WithOutput(&out), app.WithFixedRecording(50*time.Millisecond), app.WithOnce(true))
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	if err := o.Listen(context.Background()); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if out.String() != "mở cửa\n" {
		t.Errorf("output = %q", out.String())
	}
	if backend.RequestCount() != 1 || filepath.Dir(backend.Requests[0].Path) != dir {
		t.Fatalf("requests = %+v, want one clip in %s", backend.Requests, dir)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("clip dir not cleaned up: %d entries", len(entries))
	}
}
