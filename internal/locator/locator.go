// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package locator connects the location stream to the reverse geocoder. Samples are throttled
// so the geocoder is asked at most once per interval, and the resolved places are handed to a
// Sink.
package locator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wneessen/waybar-location/internal/elevation"
	"github.com/wneessen/waybar-location/internal/geobus"
	"github.com/wneessen/waybar-location/internal/geocode"
	"github.com/wneessen/waybar-location/internal/logger"
	"github.com/wneessen/waybar-location/internal/presenter"
	"github.com/wneessen/waybar-location/internal/throttle"
	"github.com/wneessen/waybar-location/internal/vartype"
)

// ResolveTimeout bounds a single reverse geocoding lookup including the elevation lookup.
const ResolveTimeout = 10 * time.Second

// Sink receives the results of the locator.
type Sink interface {
	// UpdateLocation is called for every valid sample, regardless of throttling.
	UpdateLocation(coords geobus.Coordinate)
	// UpdatePlace is called with every successful resolution.
	UpdatePlace(place presenter.Place)
}

// Option configures a Locator.
type Option func(*Locator)

// WithElevation enriches resolved places with the elevation from the given provider.
func WithElevation(provider elevation.Provider) Option {
	return func(l *Locator) {
		l.elevation = provider
	}
}

// WithLogger sets the logger of the Locator and its throttler.
func WithLogger(log *logger.Logger) Option {
	return func(l *Locator) {
		if log != nil {
			l.logger = log
		}
	}
}

// WithClock sets the clock of the Locator and its throttler.
func WithClock(clock clockwork.Clock) Option {
	return func(l *Locator) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// Locator turns throttled coordinates into a Place by asking the geocoder for an address.
type Locator struct {
	geocoder  geocode.Geocoder
	elevation elevation.Provider
	throttler *throttle.Throttler[geobus.Coordinate]
	logger    *logger.Logger
	clock     clockwork.Clock

	mu   sync.RWMutex
	sink Sink
}

// New returns a Locator that resolves samples through coder at most once per interval and
// delivers the results to sink.
func New(coder geocode.Geocoder, sink Sink, interval time.Duration, opts ...Option) (*Locator, error) {
	if coder == nil {
		return nil, errors.New("geocoder is required")
	}
	loc := &Locator{
		geocoder: coder,
		sink:     sink,
		logger:   logger.Discard(),
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(loc)
	}

	throttler, err := throttle.New(interval, loc.resolve, throttle.WithClock(loc.clock),
		throttle.WithLogger(loc.logger))
	if err != nil {
		return nil, err
	}
	loc.throttler = throttler

	return loc, nil
}

// Run consumes the subscription until ctx is done or the channel is closed. On return the
// throttler is stopped and the sink is detached.
func (l *Locator) Run(ctx context.Context, sub <-chan geobus.Result) {
	defer l.Detach()
	defer l.throttler.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case result, ok := <-sub:
			if !ok {
				l.logger.Debug("location subscription closed")
				return
			}
			l.Submit(result.Coordinate())
		}
	}
}

// Submit forwards a single sample. Invalid coordinates are dropped.
func (l *Locator) Submit(coords geobus.Coordinate) {
	if !coords.Valid() {
		l.logger.Debug("dropping invalid coordinate", slog.Any("coordinate", coords))
		return
	}
	if sink := l.currentSink(); sink != nil {
		sink.UpdateLocation(coords)
	}
	l.throttler.Submit(coords)
}

// Detach removes the sink. Results that arrive afterwards are dropped.
func (l *Locator) Detach() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sink = nil
}

// Throttler returns the throttler used by the Locator.
func (l *Locator) Throttler() *throttle.Throttler[geobus.Coordinate] {
	return l.throttler
}

func (l *Locator) currentSink() Sink {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sink
}

// resolve is the dispatch function of the throttler.
func (l *Locator) resolve(ctx context.Context, coords geobus.Coordinate) {
	resolveCtx, cancel := context.WithTimeout(ctx, ResolveTimeout)
	defer cancel()

	addr, err := l.geocoder.Reverse(resolveCtx, coords)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		l.logger.Error("failed to resolve location", logger.Err(err), slog.String("geocoder",
			l.geocoder.Name()), slog.Any("coordinate", coords))
		return
	}
	l.logger.Debug("location resolved", slog.Any("address", addr))

	place := presenter.Place{
		Address:    addr,
		Coordinate: coords,
		ResolvedAt: l.clock.Now(),
	}
	if l.elevation != nil {
		elev, err := l.elevation.Elevation(resolveCtx, coords)
		switch {
		case err != nil && ctx.Err() == nil:
			l.logger.Warn("failed to look up elevation", logger.Err(err), slog.String("provider",
				l.elevation.Name()))
		case err == nil:
			place.Elevation = vartype.NewElevation(elev)
		}
	}

	if ctx.Err() != nil {
		return
	}
	if sink := l.currentSink(); sink != nil {
		sink.UpdatePlace(place)
	}
}
