package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every member of a [FallbackGroup] failed or
// was skipped by its breaker.
var ErrAllFailed = errors.New("resilience: all backends failed")

// FallbackConfig is the template for the breaker created per member. Name is
// overwritten with the member name.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// Permanent marks err as a property of the request rather than of the member
// that returned it. [ExecuteWithResult] stops at such an error without trying
// later members, and the member's breaker does not count it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func isPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

type member[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds a primary and ordered fallbacks of the same type.
//
// Members must be added before the group is used concurrently.
type FallbackGroup[T any] struct {
	members []member[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a group with primary as the first member.
func NewFallbackGroup[T any](primary T, name string, cfg FallbackConfig) *FallbackGroup[T] {
	g := &FallbackGroup[T]{cfg: cfg}
	g.Add(name, primary)
	return g
}

// Add appends a member tried after all earlier ones.
func (g *FallbackGroup[T]) Add(name string, value T) {
	cbCfg := g.cfg.CircuitBreaker
	cbCfg.Name = name
	g.members = append(g.members, member[T]{name: name, value: value, breaker: NewCircuitBreaker(cbCfg)})
}

// Len returns the number of members.
func (g *FallbackGroup[T]) Len() int { return len(g.members) }

// Each calls fn for every member in order.
func (g *FallbackGroup[T]) Each(fn func(name string, value T, state State)) {
	for _, m := range g.members {
		fn(m.name, m.value, m.breaker.State())
	}
}

// Execute tries fn on each member until one succeeds.
func (g *FallbackGroup[T]) Execute(fn func(name string, value T) error) error {
	_, err := ExecuteWithResult(g, func(name string, value T) (struct{}, error) {
		return struct{}{}, fn(name, value)
	})
	return err
}

// ExecuteWithResult tries fn on each member until one succeeds and returns
// its value. Members with an open breaker are skipped. The returned error
// wraps [ErrAllFailed] and every member error, unless a member returned a
// [Permanent] error, which is returned as is.
func ExecuteWithResult[T, R any](g *FallbackGroup[T], fn func(name string, value T) (R, error)) (R, error) {
	var (
		zero R
		errs []error
	)
	for i := range g.members {
		m := &g.members[i]
		var out R
		err := m.breaker.Execute(func() error {
			var ferr error
			out, ferr = fn(m.name, m.value)
			return ferr
		})
		if err == nil {
			return out, nil
		}
		if isPermanent(err) {
			return zero, fmt.Errorf("%s: %w", m.name, err)
		}
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("resilience: skipping backend, circuit open", "backend", m.name)
		} else {
			slog.Warn("resilience: backend failed, trying next", "backend", m.name, "err", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", m.name, err))
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
