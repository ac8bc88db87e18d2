package app_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/MrWong99/voxtrigger/internal/app"
	"github.com/MrWong99/voxtrigger/pkg/trigger"
)

// scriptedDetector emits one STARTED/ENDED pair per run for the first
// windows runs, then returns without events.
type scriptedDetector struct {
	mu      sync.Mutex
	windows int
	runs    int
	err     error

	// beforeEnd runs between the two edges.
	beforeEnd func()

	// ran receives the run index after each run returns.
	ran []int
}

func (d *scriptedDetector) Run(ctx context.Context, emit trigger.Sink) error {
	d.mu.Lock()
	i := d.runs
	d.runs++
	err, windows, hook := d.err, d.windows, d.beforeEnd
	d.mu.Unlock()

	if err != nil {
		return err
	}
	if i >= windows {
		return nil
	}
	emit(trigger.Event{Kind: trigger.KindStarted, At: time.Now()})
	if hook != nil {
		hook()
	}
	if ctx.Err() != nil {
		return nil
	}
	emit(trigger.Event{Kind: trigger.KindEnded, At: time.Now()})
	return nil
}

func (d *scriptedDetector) Runs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runs
}

// fakeRecording is a capture backed by a small file.
type fakeRecording struct {
	path    string
	stopErr error

	mu      sync.Mutex
	stops   int
	removed bool
	stopped chan struct{}
}

func (f *fakeRecording) Path() string { return f.path }

func (f *fakeRecording) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	if f.stops == 1 {
		close(f.stopped)
	}
	return f.stopErr
}

func (f *fakeRecording) Remove() error {
	f.mu.Lock()
	f.removed = true
	f.mu.Unlock()
	return os.Remove(f.path)
}

func (f *fakeRecording) Stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

func (f *fakeRecording) Removed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.removed
}

// fakeRecorder hands out fakeRecordings in dir.
type fakeRecorder struct {
	dir      string
	startErr error
	stopErr  error

	// detectorRuns, when set, is sampled at each start.
	detectorRuns func() int

	mu        sync.Mutex
	recs      []*fakeRecording
	runsAtRec []int
}

func (r *fakeRecorder) Start(context.Context) (app.Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return nil, r.startErr
	}
	path := filepath.Join(r.dir, "clip-"+strconv.Itoa(len(r.recs))+".wav")
	if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
		return nil, err
	}
	rec := &fakeRecording{path: path, stopErr: r.stopErr, stopped: make(chan struct{})}
	r.recs = append(r.recs, rec)
	if r.detectorRuns != nil {
		r.runsAtRec = append(r.runsAtRec, r.detectorRuns())
	}
	return rec, nil
}

// Record follows the command recorder: capture for d, remove the clip when
// ctx ends or the stop fails.
func (r *fakeRecorder) Record(ctx context.Context, d time.Duration) (app.Recording, error) {
	rec, err := r.Start(ctx)
	if err != nil {
		return nil, err
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
	serr := rec.Stop()
	if err := ctx.Err(); err != nil {
		rec.Remove()
		return nil, err
	}
	if serr != nil {
		rec.Remove()
		return nil, serr
	}
	return rec, nil
}

func (r *fakeRecorder) Recordings() []*fakeRecording {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*fakeRecording(nil), r.recs...)
}

var errEngine = errors.New("engine exploded")
