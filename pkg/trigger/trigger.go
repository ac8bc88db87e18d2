// Package trigger defines the contract shared by every "start talking"
// detector.
//
// A detector turns a noisy sensor stream (camera frames, raw keystrokes) into
// a clean sequence of [Event] values. Within one invocation a [KindStarted]
// event always precedes its matching [KindEnded] event, and the two bound a
// single user-intended recording window. Callers depend only on this package,
// so the gesture and key-hold detectors are interchangeable.
package trigger

import (
	"context"
	"errors"
	"time"
)

// ErrCanceled is returned by single-shot detectors whose run was stopped
// before the trigger fired. It represents "no result", not a failure.
var ErrCanceled = errors.New("trigger: canceled before firing")

// ErrDeviceUnavailable wraps failures to acquire the sensing device (camera
// cannot open, terminal mode cannot be set). It is fatal for the detector.
var ErrDeviceUnavailable = errors.New("trigger: device unavailable")

// Kind tags an [Event].
type Kind int

const (
	// KindStarted opens a recording window.
	KindStarted Kind = iota + 1

	// KindEnded closes the recording window opened by the preceding
	// KindStarted.
	KindEnded
)

// String returns STARTED or ENDED.
func (k Kind) String() string {
	switch k {
	case KindStarted:
		return "STARTED"
	case KindEnded:
		return "ENDED"
	default:
		return "UNKNOWN"
	}
}

// Event is one edge of the binary "recording active" signal.
type Event struct {
	Kind Kind

	// At is taken from the detector's [Clock]. With the system clock it
	// carries Go's monotonic reading, so At.Sub is safe across wall-clock
	// jumps.
	At time.Time

	// Frame is the camera frame sequence index that produced the event.
	// Zero for detectors that are not frame based.
	Frame int64
}

// Sink receives events as they are produced. Implementations must not block
// for long; detectors call Sink from their polling loop.
type Sink func(Event)

// Detector is implemented by every trigger source.
//
// Run blocks until the detector finishes, ctx is cancelled, or a fatal error
// occurs. Events are delivered to emit in order.
type Detector interface {
	Run(ctx context.Context, emit Sink) error
}

// Clock abstracts time so detectors can be driven by scripted tests.
type Clock interface {
	Now() time.Time

	// Sleep pauses for d or until ctx is done, returning ctx.Err() in the
	// latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the [Clock] backed by package time.
var SystemClock Clock = systemClock{}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
