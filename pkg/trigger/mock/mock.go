// Package mock provides test doubles for the trigger package.
//
// Clock is a manual clock: Sleep advances virtual time instantly and records
// the requested duration. Recorder is a thread-safe [trigger.Sink] that keeps
// every event it receives.
//
// Example:
//
//	clk := mock.NewClock(time.Unix(0, 0))
//	var rec mock.Recorder
//	err := detector.Run(ctx, rec.Sink)
//	events := rec.Events()
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/voxtrigger/pkg/trigger"
)

// Clock implements trigger.Clock with virtual time.
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration

	// OnSleep, if set, is called after virtual time advanced. Tests use it to
	// cancel contexts at a precise point.
	OnSleep func(d time.Duration)
}

// NewClock returns a Clock starting at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current virtual time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves virtual time forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Sleep advances virtual time by d and returns ctx.Err().
func (c *Clock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	hook := c.OnSleep
	c.mu.Unlock()
	if hook != nil {
		hook(d)
	}
	return ctx.Err()
}

// Sleeps returns a copy of every duration passed to Sleep.
func (c *Clock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}

// Ensure Clock implements trigger.Clock at compile time.
var _ trigger.Clock = (*Clock)(nil)

// Recorder collects events. The zero value is ready to use.
type Recorder struct {
	mu     sync.Mutex
	events []trigger.Event
}

// Sink records ev. Pass rec.Sink where a trigger.Sink is expected.
func (r *Recorder) Sink(ev trigger.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events in arrival order.
func (r *Recorder) Events() []trigger.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]trigger.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns only the kinds of the recorded events.
func (r *Recorder) Kinds() []trigger.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]trigger.Kind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

// Detector is a scripted trigger.Detector that emits Events in order and
// then returns Err. When Block is true it waits for ctx cancellation after
// emitting and returns nil.
type Detector struct {
	Events []trigger.Event
	Err    error
	Block  bool

	mu    sync.Mutex
	calls int
}

// Run emits the scripted events.
func (d *Detector) Run(ctx context.Context, emit trigger.Sink) error {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	for _, ev := range d.Events {
		if ctx.Err() != nil {
			return nil
		}
		emit(ev)
	}
	if d.Block {
		<-ctx.Done()
		return nil
	}
	return d.Err
}

// Calls returns how many times Run was invoked.
func (d *Detector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// Ensure Detector implements trigger.Detector at compile time.
var _ trigger.Detector = (*Detector)(nil)
