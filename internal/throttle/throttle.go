// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package throttle rate-limits calls into an expensive resolver. At most one dispatch happens per
// interval, and samples that arrive while cooling down are coalesced so that only the newest one
// is dispatched when the interval has passed.
package throttle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wneessen/waybar-location/internal/logger"
)

// DefaultInterval is the minimum spacing between two dispatches if nothing else is configured.
const DefaultInterval = time.Minute

// ErrInvalidInterval is returned by New for an interval of zero or below.
var ErrInvalidInterval = errors.New("throttle interval must be greater than zero")

// State describes whether a Throttler currently holds a deferred sample.
type State int

const (
	// StateIdle means no sample is pending and no timer is armed.
	StateIdle State = iota
	// StateCoolingDown means a sample is pending and a timer will dispatch it.
	StateCoolingDown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCoolingDown:
		return "cooling down"
	default:
		return "unknown"
	}
}

// DispatchFunc receives a sample once the Throttler decided to let it through. It is called in its
// own goroutine with the lifetime context of the Throttler, which is cancelled on Stop.
type DispatchFunc[T any] func(ctx context.Context, sample T)

// Option configures a Throttler.
type Option func(*options)

type options struct {
	clock  clockwork.Clock
	logger *logger.Logger
}

// WithClock replaces the clock used for elapsed time calculation and deferred dispatches.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the logger used for debug output of throttling decisions.
func WithLogger(log *logger.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.logger = log
		}
	}
}

// Throttler forwards samples to a DispatchFunc no more than once per interval. All state
// transitions happen under a single mutex; the dispatch itself never runs under that lock.
type Throttler[T any] struct {
	interval time.Duration
	clock    clockwork.Clock
	dispatch DispatchFunc[T]
	logger   *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	dispatched   bool
	lastDispatch time.Time
	pending      T
	hasPending   bool
	timer        clockwork.Timer
	generation   uint64
	stopped      bool
}

// New returns a Throttler that dispatches to fn at most once per interval.
func New[T any](interval time.Duration, fn DispatchFunc[T], opts ...Option) (*Throttler[T], error) {
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}
	if fn == nil {
		return nil, errors.New("dispatch function is required")
	}

	o := &options{
		clock:  clockwork.NewRealClock(),
		logger: logger.Discard(),
	}
	for _, opt := range opts {
		opt(o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Throttler[T]{
		interval: interval,
		clock:    o.clock,
		dispatch: fn,
		logger:   o.logger,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Submit hands a new sample to the Throttler. If the interval since the last dispatch has passed,
// the sample is dispatched right away. Otherwise it replaces any pending sample and, if no timer
// is armed yet, a single timer is armed for the remainder of the interval.
func (t *Throttler[T]) Submit(sample T) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}

	now := t.clock.Now()
	elapsed := t.interval
	if t.dispatched {
		elapsed = now.Sub(t.lastDispatch)
	}

	if elapsed >= t.interval {
		t.disarm()
		t.logger.Debug("dispatching sample immediately", slog.Duration("elapsed", elapsed))
		t.dispatchLocked(sample, now)
		return
	}

	t.pending = sample
	t.hasPending = true
	if t.timer != nil {
		t.logger.Debug("replaced pending sample")
		return
	}

	wait := t.interval - elapsed
	gen := t.generation
	t.timer = t.clock.AfterFunc(wait, func() { t.fire(gen) })
	t.logger.Debug("deferring sample", slog.Duration("wait", wait))
}

// Stop cancels the armed timer, drops the pending sample and cancels the context handed to
// running dispatches. It waits for those dispatches to return. Submit is a no-op afterwards.
func (t *Throttler[T]) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	t.disarm()
	t.mu.Unlock()

	t.cancel()
	t.wg.Wait()
}

// State reports whether a sample is waiting for a deferred dispatch.
func (t *Throttler[T]) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.hasPending {
		return StateCoolingDown
	}
	return StateIdle
}

// LastDispatch returns the time of the last dispatch, or the zero time if nothing was
// dispatched yet.
func (t *Throttler[T]) LastDispatch() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastDispatch
}

// Interval returns the configured minimum spacing between dispatches.
func (t *Throttler[T]) Interval() time.Duration {
	return t.interval
}

// fire is the timer callback. The sample is read at fire time, so the newest pending sample wins.
// A callback from a timer that was stopped or superseded carries an old generation and is ignored.
func (t *Throttler[T]) fire(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped || gen != t.generation || !t.hasPending {
		return
	}
	sample := t.pending
	t.timer = nil
	t.clearPending()
	t.generation++

	t.logger.Debug("dispatching deferred sample")
	t.dispatchLocked(sample, t.clock.Now())
}

// disarm stops the armed timer and drops the pending sample. Must be called with mu held.
func (t *Throttler[T]) disarm() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.generation++
	t.clearPending()
}

func (t *Throttler[T]) clearPending() {
	var zero T
	t.pending = zero
	t.hasPending = false
}

// dispatchLocked commits the dispatch time and runs the dispatch in its own goroutine. The
// dispatch time is committed before the resolver runs, so a failing resolver does not shorten
// the cooldown. Must be called with mu held.
func (t *Throttler[T]) dispatchLocked(sample T, now time.Time) {
	t.dispatched = true
	t.lastDispatch = now
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.dispatch(t.ctx, sample)
	}()
}
