// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package throttle

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wneessen/waybar-location/internal/logger"
)

const testInterval = time.Minute

type dispatchRecord struct {
	sample int
	at     time.Time
}

type recorder struct {
	mu      sync.Mutex
	records []dispatchRecord
	now     func() time.Time
}

func newRecorder() *recorder {
	return &recorder{now: time.Now}
}

func (r *recorder) dispatch(_ context.Context, sample int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, dispatchRecord{sample: sample, at: r.now()})
}

func (r *recorder) get() []dispatchRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]dispatchRecord, len(r.records))
	copy(out, r.records)
	return out
}

// countingClock counts the timers armed through AfterFunc.
type countingClock struct {
	clockwork.Clock
	mu    sync.Mutex
	armed int
}

func (c *countingClock) AfterFunc(d time.Duration, f func()) clockwork.Timer {
	c.mu.Lock()
	c.armed++
	c.mu.Unlock()
	return c.Clock.AfterFunc(d, f)
}

// manualClock hands out timers that never fire on their own.
type manualClock struct {
	clockwork.Clock
	fn    func()
	timer *manualTimer
}

type manualTimer struct {
	stopped bool
}

func (c *manualClock) AfterFunc(_ time.Duration, f func()) clockwork.Timer {
	c.fn = f
	c.timer = &manualTimer{}
	return c.timer
}

func (m *manualTimer) Chan() <-chan time.Time { return nil }

func (m *manualTimer) Reset(time.Duration) bool { return false }

func (m *manualTimer) Stop() bool {
	m.stopped = true
	return true
}

func (c *countingClock) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed
}

func TestNew(t *testing.T) {
	t.Run("new throttler succeeds", func(t *testing.T) {
		thr, err := New(testInterval, newRecorder().dispatch)
		if err != nil {
			t.Fatalf("failed to create throttler: %s", err)
		}
		defer thr.Stop()
		if thr.Interval() != testInterval {
			t.Errorf("expected interval to be %s, got %s", testInterval, thr.Interval())
		}
		if thr.State() != StateIdle {
			t.Errorf("expected new throttler to be idle, got %s", thr.State())
		}
		if !thr.LastDispatch().IsZero() {
			t.Errorf("expected last dispatch to be unset, got %s", thr.LastDispatch())
		}
	})
	t.Run("invalid intervals fail", func(t *testing.T) {
		for _, interval := range []time.Duration{0, -time.Second} {
			_, err := New(interval, newRecorder().dispatch)
			if !errors.Is(err, ErrInvalidInterval) {
				t.Errorf("expected error to be %s, got %v", ErrInvalidInterval, err)
			}
		}
	})
	t.Run("nil dispatch function fails", func(t *testing.T) {
		_, err := New[int](testInterval, nil)
		if err == nil {
			t.Fatal("expected throttler creation to fail")
		}
	})
}

func TestThrottler_Submit(t *testing.T) {
	t.Run("first submit dispatches immediately", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			rec := newRecorder()
			thr, err := New(testInterval, rec.dispatch)
			if err != nil {
				t.Fatalf("failed to create throttler: %s", err)
			}
			defer thr.Stop()

			start := time.Now()
			thr.Submit(1)
			synctest.Wait()

			records := rec.get()
			if len(records) != 1 {
				t.Fatalf("expected 1 dispatch, got %d", len(records))
			}
			if records[0].sample != 1 {
				t.Errorf("expected sample 1 to be dispatched, got %d", records[0].sample)
			}
			if !records[0].at.Equal(start) {
				t.Errorf("expected dispatch at %s, got %s", start, records[0].at)
			}
			if !thr.LastDispatch().Equal(start) {
				t.Errorf("expected last dispatch to be %s, got %s", start, thr.LastDispatch())
			}
			if thr.State() != StateIdle {
				t.Errorf("expected throttler to be idle, got %s", thr.State())
			}
		})
	})
	t.Run("freshest sample wins within a window", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			rec := newRecorder()
			thr, err := New(testInterval, rec.dispatch)
			if err != nil {
				t.Fatalf("failed to create throttler: %s", err)
			}
			defer thr.Stop()

			start := time.Now()
			thr.Submit(0)
			thr.Submit(1)
			time.Sleep(time.Second * 5)
			thr.Submit(2)
			time.Sleep(time.Second * 5)
			thr.Submit(3)
			if thr.State() != StateCoolingDown {
				t.Errorf("expected throttler to be cooling down, got %s", thr.State())
			}

			time.Sleep(testInterval)
			synctest.Wait()

			records := rec.get()
			if len(records) != 2 {
				t.Fatalf("expected 2 dispatches, got %d", len(records))
			}
			if records[1].sample != 3 {
				t.Errorf("expected deferred dispatch to carry sample 3, got %d", records[1].sample)
			}
			want := start.Add(testInterval)
			if !records[1].at.Equal(want) {
				t.Errorf("expected deferred dispatch at %s, got %s", want, records[1].at)
			}
			if thr.State() != StateIdle {
				t.Errorf("expected throttler to be idle after the deferred dispatch, got %s", thr.State())
			}
		})
	})
	t.Run("submit after cooldown dispatches immediately", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			rec := newRecorder()
			thr, err := New(testInterval, rec.dispatch)
			if err != nil {
				t.Fatalf("failed to create throttler: %s", err)
			}
			defer thr.Stop()

			start := time.Now()
			thr.Submit(1)
			time.Sleep(time.Second * 61)
			thr.Submit(2)
			synctest.Wait()

			records := rec.get()
			if len(records) != 2 {
				t.Fatalf("expected 2 dispatches, got %d", len(records))
			}
			want := start.Add(time.Second * 61)
			if records[1].sample != 2 || !records[1].at.Equal(want) {
				t.Errorf("expected sample 2 at %s, got sample %d at %s", want, records[1].sample,
					records[1].at)
			}
			if thr.State() != StateIdle {
				t.Errorf("expected throttler to be idle, got %s", thr.State())
			}
		})
	})
	t.Run("immediate dispatch supersedes an armed timer", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			fake := clockwork.NewFakeClock()
			clock := &manualClock{Clock: fake}
			rec := newRecorder()
			rec.now = fake.Now
			thr, err := New(testInterval, rec.dispatch, WithClock(clock))
			if err != nil {
				t.Fatalf("failed to create throttler: %s", err)
			}
			defer thr.Stop()

			thr.Submit(1)
			fake.Advance(time.Second * 30)
			thr.Submit(2)
			if clock.fn == nil {
				t.Fatal("expected a timer to be armed")
			}

			// The timer is due, but the next submit gets the lock first.
			fake.Advance(time.Second * 30)
			thr.Submit(3)
			if !clock.timer.stopped {
				t.Error("expected the armed timer to be stopped")
			}
			if thr.State() != StateIdle {
				t.Errorf("expected throttler to be idle, got %s", thr.State())
			}
			clock.fn()
			synctest.Wait()

			records := rec.get()
			if len(records) != 2 {
				t.Fatalf("expected 2 dispatches, got %d", len(records))
			}
			dispatched := make(map[int]bool)
			for _, record := range records {
				dispatched[record.sample] = true
			}
			if !dispatched[1] || !dispatched[3] || dispatched[2] {
				t.Errorf("expected samples 1 and 3 to be dispatched, got %v", records)
			}
			if last := thr.LastDispatch(); !last.Equal(fake.Now()) {
				t.Errorf("expected last dispatch at %s, got %s", fake.Now(), last)
			}
		})
	})
	t.Run("only one timer is armed per window", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			clock := &countingClock{Clock: clockwork.NewRealClock()}
			rec := newRecorder()
			thr, err := New(testInterval, rec.dispatch, WithClock(clock))
			if err != nil {
				t.Fatalf("failed to create throttler: %s", err)
			}
			defer thr.Stop()

			thr.Submit(0)
			for i := 1; i <= 100; i++ {
				thr.Submit(i)
				time.Sleep(time.Millisecond * 100)
			}
			if clock.count() != 1 {
				t.Errorf("expected exactly 1 armed timer, got %d", clock.count())
			}

			time.Sleep(testInterval)
			synctest.Wait()
			records := rec.get()
			if len(records) != 2 {
				t.Fatalf("expected 2 dispatches, got %d", len(records))
			}
			if records[1].sample != 100 {
				t.Errorf("expected deferred dispatch to carry sample 100, got %d", records[1].sample)
			}
		})
	})
	t.Run("a failing dispatch does not reset the cooldown", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			var mu sync.Mutex
			var calls []time.Time
			fn := func(ctx context.Context, _ int) {
				mu.Lock()
				calls = append(calls, time.Now())
				mu.Unlock()
				// simulate a slow lookup that fails after 5 seconds
				select {
				case <-ctx.Done():
				case <-time.After(time.Second * 5):
				}
			}
			thr, err := New(testInterval, fn)
			if err != nil {
				t.Fatalf("failed to create throttler: %s", err)
			}
			defer thr.Stop()

			start := time.Now()
			thr.Submit(1)
			time.Sleep(time.Second * 30)
			thr.Submit(2)
			time.Sleep(testInterval * 2)
			synctest.Wait()

			mu.Lock()
			defer mu.Unlock()
			if len(calls) != 2 {
				t.Fatalf("expected 2 dispatches, got %d", len(calls))
			}
			want := start.Add(testInterval)
			if !calls[1].Equal(want) {
				t.Errorf("expected second dispatch at %s, got %s", want, calls[1])
			}
		})
	})
	t.Run("dispatches never come closer than the interval", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			rec := newRecorder()
			thr, err := New(testInterval, rec.dispatch)
			if err != nil {
				t.Fatalf("failed to create throttler: %s", err)
			}
			defer thr.Stop()

			rnd := rand.New(rand.NewPCG(1, 2))
			for i := 0; i < 500; i++ {
				thr.Submit(i)
				time.Sleep(time.Duration(rnd.IntN(90_000)) * time.Millisecond)
			}
			time.Sleep(testInterval)
			synctest.Wait()

			records := rec.get()
			if len(records) < 2 {
				t.Fatalf("expected multiple dispatches, got %d", len(records))
			}
			for i := 1; i < len(records); i++ {
				if gap := records[i].at.Sub(records[i-1].at); gap < testInterval {
					t.Errorf("dispatch %d came %s after the previous one", i, gap)
				}
			}
			if records[len(records)-1].sample != 499 {
				t.Errorf("expected the last sample to be dispatched eventually, got %d",
					records[len(records)-1].sample)
			}
		})
	})
	t.Run("debug logging reports deferred samples", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			buf := bytes.NewBuffer(nil)
			thr, err := New(testInterval, newRecorder().dispatch,
				WithLogger(logger.NewLogger(slog.LevelDebug, buf)))
			if err != nil {
				t.Fatalf("failed to create throttler: %s", err)
			}
			thr.Submit(1)
			thr.Submit(2)
			thr.Submit(3)
			thr.Stop()

			for _, want := range []string{"dispatching sample immediately", "deferring sample",
				"replaced pending sample"} {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("expected log to contain %q, got %q", want, buf.String())
				}
			}
		})
	})
}

func TestThrottler_FakeClock(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		rec := newRecorder()
		rec.now = clock.Now
		thr, err := New(testInterval, rec.dispatch, WithClock(clock))
		if err != nil {
			t.Fatalf("failed to create throttler: %s", err)
		}
		defer thr.Stop()

		start := clock.Now()
		thr.Submit(1)
		thr.Submit(2)
		clock.Advance(testInterval - time.Second)
		synctest.Wait()
		if got := len(rec.get()); got != 1 {
			t.Fatalf("expected 1 dispatch before the window ended, got %d", got)
		}

		clock.Advance(time.Second)
		synctest.Wait()
		records := rec.get()
		if len(records) != 2 {
			t.Fatalf("expected 2 dispatches, got %d", len(records))
		}
		if !records[1].at.Equal(start.Add(testInterval)) {
			t.Errorf("expected deferred dispatch at %s, got %s", start.Add(testInterval), records[1].at)
		}
	})
}

func TestThrottler_Stop(t *testing.T) {
	t.Run("stop cancels the pending dispatch", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			rec := newRecorder()
			thr, err := New(testInterval, rec.dispatch)
			if err != nil {
				t.Fatalf("failed to create throttler: %s", err)
			}

			thr.Submit(1)
			thr.Submit(2)
			thr.Stop()
			if thr.State() != StateIdle {
				t.Errorf("expected stopped throttler to be idle, got %s", thr.State())
			}

			time.Sleep(testInterval * 2)
			synctest.Wait()
			if got := len(rec.get()); got != 1 {
				t.Errorf("expected 1 dispatch, got %d", got)
			}
		})
	})
	t.Run("stop cancels the context of running dispatches", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			cancelled := false
			fn := func(ctx context.Context, _ int) {
				<-ctx.Done()
				cancelled = true
			}
			thr, err := New(testInterval, fn)
			if err != nil {
				t.Fatalf("failed to create throttler: %s", err)
			}
			thr.Submit(1)
			synctest.Wait()
			thr.Stop()
			if !cancelled {
				t.Error("expected dispatch context to be cancelled")
			}
		})
	})
	t.Run("submit after stop is ignored", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			rec := newRecorder()
			thr, err := New(testInterval, rec.dispatch)
			if err != nil {
				t.Fatalf("failed to create throttler: %s", err)
			}
			thr.Stop()
			thr.Stop()
			thr.Submit(1)
			synctest.Wait()
			if got := len(rec.get()); got != 0 {
				t.Errorf("expected no dispatch, got %d", got)
			}
		})
	})
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateCoolingDown, "cooling down"},
		{State(99), "unknown"},
	}
	for _, tc := range tests {
		t.Run(tc.want, func(t *testing.T) {
			if got := tc.state.String(); got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
