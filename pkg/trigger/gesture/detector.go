// Package gesture implements the camera-based trigger: it counts extended
// fingers on every frame and fires once a target count is seen.
//
// The detector is a small state machine:
//
//	IDLE  --count==target-->  ARMED  --confirm frames reached-->  FIRED
//	  ^                         |
//	  +------count!=target------+
//
// With the default confirmation window of one frame, IDLE moves straight to
// FIRED on the first matching frame. On FIRED it emits STARTED, waits the
// settle delay, emits ENDED and returns: one run yields exactly one window.
package gesture

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrWong99/voxtrigger/pkg/trigger"
	"github.com/MrWong99/voxtrigger/pkg/vision"
)

// Compile-time assertion that Detector satisfies trigger.Detector.
var _ trigger.Detector = (*Detector)(nil)

const (
	defaultTarget        = 2
	defaultConfirmFrames = 1
	defaultFrameInterval = 50 * time.Millisecond
	defaultSettleDelay   = 500 * time.Millisecond
	defaultReadBackoff   = 500 * time.Millisecond
	defaultLogEvery      = 30
)

type state int

const (
	stateIdle state = iota
	stateArmed
	stateFired
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateArmed:
		return "armed"
	case stateFired:
		return "fired"
	default:
		return "unknown"
	}
}

// Option is a functional option for configuring a [Detector].
type Option func(*Detector)

// WithTargetFingers sets the finger count that fires the trigger. Defaults
// to 2.
func WithTargetFingers(n int) Option {
	return func(d *Detector) { d.target = n }
}

// WithConfirmFrames sets how many consecutive matching frames are required
// before firing. Defaults to 1, which fires on the first matching frame.
func WithConfirmFrames(n int) Option {
	return func(d *Detector) { d.confirm = n }
}

// WithFrameInterval sets the pause between processed frames. Defaults to
// 50 ms (about 20 frames per second).
func WithFrameInterval(iv time.Duration) Option {
	return func(d *Detector) { d.interval = iv }
}

// WithSettleDelay sets the pause between STARTED and ENDED. Defaults to
// 500 ms.
func WithSettleDelay(delay time.Duration) Option {
	return func(d *Detector) { d.settle = delay }
}

// WithReadBackoff sets the wait after a failed frame read. Defaults to
// 500 ms.
func WithReadBackoff(b time.Duration) Option {
	return func(d *Detector) { d.readBackoff = b }
}

// WithLogEvery logs the observed finger count every n processed frames.
// Zero disables the diagnostic. Defaults to 30.
func WithLogEvery(n int) Option {
	return func(d *Detector) { d.logEvery = n }
}

// WithClock replaces the system clock.
func WithClock(c trigger.Clock) Option {
	return func(d *Detector) { d.clock = c }
}

// Detector is the gesture trigger. It is single-shot: create one per
// recording window.
type Detector struct {
	source vision.FrameSource
	hands  vision.HandDetector

	target      int
	confirm     int
	interval    time.Duration
	settle      time.Duration
	readBackoff time.Duration
	logEvery    int
	clock       trigger.Clock
}

// New creates a Detector reading frames from source and landmarks from
// hands. Neither is closed by the detector.
func New(source vision.FrameSource, hands vision.HandDetector, opts ...Option) (*Detector, error) {
	if source == nil || hands == nil {
		return nil, errors.New("gesture: frame source and hand detector are required")
	}
	d := &Detector{
		source:      source,
		hands:       hands,
		target:      defaultTarget,
		confirm:     defaultConfirmFrames,
		interval:    defaultFrameInterval,
		settle:      defaultSettleDelay,
		readBackoff: defaultReadBackoff,
		logEvery:    defaultLogEvery,
		clock:       trigger.SystemClock,
	}
	for _, o := range opts {
		o(d)
	}
	if d.confirm < 1 {
		d.confirm = 1
	}
	if d.target < 0 || d.target > 5 {
		return nil, errors.New("gesture: target finger count must be within [0, 5]")
	}
	return d, nil
}

// Run processes frames until the gesture fires or ctx is cancelled. It
// returns nil after emitting the STARTED/ENDED pair and
// [trigger.ErrCanceled] when cancelled first. Frame read failures are logged
// and retried after the read backoff.
func (d *Detector) Run(ctx context.Context, emit trigger.Sink) error {
	var (
		st        = stateIdle
		streak    int
		processed int64
	)
	for {
		if ctx.Err() != nil {
			return trigger.ErrCanceled
		}

		frame, err := d.source.Read()
		if err != nil {
			slog.Warn("gesture: frame read failed, retrying", "err", err, "backoff", d.readBackoff)
			if d.clock.Sleep(ctx, d.readBackoff) != nil {
				return trigger.ErrCanceled
			}
			continue
		}

		processed++
		count, found := d.countFingers(frame)
		_ = frame.Release()

		if found && d.logEvery > 0 && processed%int64(d.logEvery) == 0 {
			slog.Info("gesture: fingers detected", "count", count, "frame", frame.Seq)
		}

		next := stateIdle
		if found && count == d.target {
			streak++
			next = stateArmed
			if streak >= d.confirm {
				next = stateFired
			}
		} else {
			streak = 0
		}
		if next != st {
			slog.Debug("gesture: state change", "from", st, "to", next, "frame", frame.Seq)
			st = next
		}

		if st == stateFired {
			d.fire(ctx, emit, frame.Seq)
			return nil
		}

		if d.clock.Sleep(ctx, d.interval) != nil {
			return trigger.ErrCanceled
		}
	}
}

// fire emits the STARTED/ENDED pair for frame seq. ENDED is emitted even if
// ctx is cancelled during the settle delay so that windows stay paired.
func (d *Detector) fire(ctx context.Context, emit trigger.Sink, seq int64) {
	emit(trigger.Event{Kind: trigger.KindStarted, At: d.clock.Now(), Frame: seq})
	_ = d.clock.Sleep(ctx, d.settle)
	emit(trigger.Event{Kind: trigger.KindEnded, At: d.clock.Now(), Frame: seq})
}

// countFingers classifies the first detected hand. found is false when no
// hand was detected or the detector failed on this frame.
func (d *Detector) countFingers(frame vision.Frame) (count int, found bool) {
	hands, err := d.hands.Detect(frame)
	if err != nil {
		slog.Debug("gesture: hand detection failed", "err", err, "frame", frame.Seq)
		return 0, false
	}
	if len(hands) == 0 {
		return 0, false
	}
	return Classify(hands[0]), true
}
