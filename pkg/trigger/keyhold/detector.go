// Package keyhold implements the keyboard trigger: hold a key to talk.
//
// A terminal in raw mode only delivers keystrokes, never key-up events. A
// held key shows up as a burst of auto-repeat bytes, so release is inferred
// when no repeat arrives within the timeout:
//
//	WAITING --trigger key--> HOLDING (emit STARTED)
//	HOLDING --trigger key--> HOLDING (deadline = now + timeout)
//	HOLDING --deadline passed--> WAITING (emit ENDED)
//
// Other keys are ignored in both states. The cancel key ends the run.
package keyhold

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/voxtrigger/pkg/trigger"
)

// Compile-time assertion that Detector satisfies trigger.Detector.
var _ trigger.Detector = (*Detector)(nil)

const (
	// DefaultKey is the space bar.
	DefaultKey byte = ' '

	// DefaultCancelKey is Ctrl-C, which arrives as a plain byte in raw mode.
	DefaultCancelKey byte = 0x03

	defaultTimeout = 100 * time.Millisecond
)

// Terminal is the raw keystroke source.
type Terminal interface {
	// MakeRaw switches the terminal to unbuffered, no-echo input and returns
	// a function restoring the previous mode.
	MakeRaw() (restore func() error, err error)

	// PollByte waits at most timeout for one input byte. ok is false when the
	// timeout elapsed without input.
	PollByte(timeout time.Duration) (b byte, ok bool, err error)
}

// Option is a functional option for configuring a [Detector].
type Option func(*Detector)

// WithKey sets the trigger key. Defaults to space.
func WithKey(b byte) Option {
	return func(d *Detector) { d.key = b }
}

// WithCancelKey sets the key that ends the run. Defaults to Ctrl-C.
func WithCancelKey(b byte) Option {
	return func(d *Detector) { d.cancelKey = b }
}

// WithTimeout sets both the input poll timeout and the silence after the
// last repeat that counts as a release. Defaults to 100 ms.
func WithTimeout(t time.Duration) Option {
	return func(d *Detector) { d.timeout = t }
}

// WithClock replaces the system clock.
func WithClock(c trigger.Clock) Option {
	return func(d *Detector) { d.clock = c }
}

// Detector is the key-hold trigger. Unlike the gesture detector it is
// repeatable: one Run yields a STARTED/ENDED pair per hold until cancelled.
// Use [trigger.Window] to take a single pair.
type Detector struct {
	term      Terminal
	key       byte
	cancelKey byte
	timeout   time.Duration
	clock     trigger.Clock
}

// New creates a Detector reading from term.
func New(term Terminal, opts ...Option) (*Detector, error) {
	if term == nil {
		return nil, errors.New("keyhold: terminal is required")
	}
	d := &Detector{
		term:      term,
		key:       DefaultKey,
		cancelKey: DefaultCancelKey,
		timeout:   defaultTimeout,
		clock:     trigger.SystemClock,
	}
	for _, o := range opts {
		o(d)
	}
	if d.timeout <= 0 {
		return nil, errors.New("keyhold: timeout must be positive")
	}
	if d.key == d.cancelKey {
		return nil, errors.New("keyhold: trigger and cancel key must differ")
	}
	return d, nil
}

// Run puts the terminal in raw mode and emits events until the cancel key is
// read or ctx is done, both of which return nil. A hold in progress when the
// run ends is closed with ENDED first. The terminal mode is restored on every
// exit path. Failing to enter raw mode returns an error wrapping
// [trigger.ErrDeviceUnavailable].
func (d *Detector) Run(ctx context.Context, emit trigger.Sink) (err error) {
	restore, err := d.term.MakeRaw()
	if err != nil {
		return fmt.Errorf("keyhold: enter raw mode: %w: %w", trigger.ErrDeviceUnavailable, err)
	}
	defer func() {
		if rerr := restore(); rerr != nil {
			slog.Warn("keyhold: failed to restore terminal mode", "err", rerr)
			if err == nil {
				err = fmt.Errorf("keyhold: restore terminal: %w", rerr)
			}
		}
	}()

	var (
		holding    bool
		lastRepeat time.Time
	)
	release := func() {
		holding = false
		emit(trigger.Event{Kind: trigger.KindEnded, At: d.clock.Now()})
	}

	for {
		if ctx.Err() != nil {
			if holding {
				release()
			}
			return nil
		}

		// While holding, wait no longer than the release deadline so a
		// stray key cannot push the release out by another full timeout.
		wait := d.timeout
		if holding {
			wait = lastRepeat.Add(d.timeout).Sub(d.clock.Now())
			if wait <= 0 {
				release()
				continue
			}
		}

		b, ok, rerr := d.term.PollByte(wait)
		if rerr != nil {
			if holding {
				release()
			}
			return fmt.Errorf("keyhold: read input: %w", rerr)
		}
		now := d.clock.Now()

		if ok {
			switch b {
			case d.cancelKey:
				if holding {
					release()
				}
				return nil
			case d.key:
				lastRepeat = now
				if !holding {
					holding = true
					emit(trigger.Event{Kind: trigger.KindStarted, At: now})
				}
				continue
			}
		}

		if holding && now.Sub(lastRepeat) >= d.timeout {
			release()
		}
	}
}
