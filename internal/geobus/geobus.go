// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/wneessen/waybar-location/internal/logger"
)

const accuracyEpsilon = 1e-6

const (
	AccuracyCountry = 300000
	AccuracyRegion  = 100000
	AccuracyCity    = 15000
	AccuracyZip     = 3000
	AccuracyUnknown = 1000000
	TruncPrecision  = 4
)

// Provider defines an interface for geolocation service providers.
// It supports retrieving streamed results for a given key.
type Provider interface {
	Name() string
	LookupStream(ctx context.Context, key string) <-chan Result
}

// AllKeys subscribes to the results of every key.
const AllKeys = ""

// GeoBus keeps the best result per key and fans it out to the subscribers. Subscribers only
// ever care about the newest position, so a slow subscriber loses its oldest buffered results
// instead of blocking the bus.
type GeoBus struct {
	mu     sync.RWMutex
	logger *logger.Logger
	best   map[string]Result
	subs   map[*subscription]struct{}
}

type subscription struct {
	key string
	ch  chan Result
}

func (s *subscription) wants(key string) bool {
	return s.key == AllKeys || s.key == key
}

// offer hands r to the subscriber. A full buffer drops its oldest entry first.
func (s *subscription) offer(r Result) bool {
	for range 2 {
		select {
		case s.ch <- r:
			return true
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
	return false
}

// Result represents a geolocation result with associated metadata.
type Result struct {
	Key            string
	Lat, Lon       float64
	Alt            float64
	AccuracyMeters float64
	Source         string
	At             time.Time
	TTL            time.Duration
}

// BetterThan reports whether r should replace prev. An older result never wins, otherwise the
// more accurate one does.
func (r Result) BetterThan(prev Result) bool {
	if prev.Key == "" {
		return true
	}
	if r.At.Before(prev.At) {
		return false
	}
	return r.AccuracyMeters < prev.AccuracyMeters-accuracyEpsilon
}

// IsExpired checks if the Result has exceeded its time-to-live (TTL) based on the current time and the timestamp.
func (r Result) IsExpired() bool {
	return r.TTL > 0 && time.Since(r.At) > r.TTL
}

// Coordinate returns the location sample carried by the result.
func (r Result) Coordinate() Coordinate {
	return Coordinate{Lat: r.Lat, Lon: r.Lon, Acc: r.AccuracyMeters, At: r.At}
}

// New returns an empty GeoBus.
func New(logger *logger.Logger) *GeoBus {
	return &GeoBus{
		logger: logger,
		best:   make(map[string]Result),
		subs:   make(map[*subscription]struct{}),
	}
}

// NewOrchestrator returns an Orchestrator that publishes the results of the given providers
// to the bus.
func (b *GeoBus) NewOrchestrator(providers []Provider) *Orchestrator {
	return &Orchestrator{
		Bus:       b,
		Providers: providers,
		logger:    b.logger,
	}
}

// Subscribe returns a channel with the results for key and a function to unsubscribe. The
// channel buffers up to size results, at least one. Subscribing to AllKeys receives every key.
// Still valid best results are replayed right away.
func (b *GeoBus) Subscribe(key string, size int) (<-chan Result, func()) {
	sub := &subscription{key: key, ch: make(chan Result, max(size, 1))}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	for k, best := range b.best {
		if sub.wants(k) && !best.IsExpired() {
			sub.offer(best)
		}
	}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, sub)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, unsub
}

// Subscribers returns the number of active subscriptions.
func (b *GeoBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish stores r as the best result for its key and broadcasts it, if there was no result
// yet, the previous one expired, or r moved significantly and is either better or comes from
// the source of the stored result.
func (b *GeoBus) Publish(r Result) {
	if r.AccuracyMeters == 0 {
		return
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	prev, have := b.best[r.Key]
	if !have || prev.IsExpired() {
		b.best[r.Key] = r
		b.broadcastResult(r)
		return
	}

	moved := r.Coordinate().PosHasSignificantChange(prev.Coordinate())
	sameSource := prev.Source == r.Source && !r.At.Before(prev.At)
	switch {
	case moved && (sameSource || r.BetterThan(prev)):
		// A source that moved replaces its own fix even at the same accuracy
		b.best[r.Key] = r
		b.broadcastResult(r)
	case sameSource:
		// Same source confirms its position, so the stored result stays fresh
		prev.At = r.At
		b.best[r.Key] = prev
	}
}

func (b *GeoBus) broadcastResult(r Result) {
	if b.logger != nil {
		b.logger.Debug("broadcasting geolocation result", slog.String("source", r.Source),
			slog.Any("coordinate", r.Coordinate()))
	}
	for sub := range b.subs {
		if sub.wants(r.Key) && !sub.offer(r) && b.logger != nil {
			b.logger.Debug("subscriber did not accept result", slog.String("key", sub.key))
		}
	}
}

// Best returns the current best result for key, unless it expired.
func (b *GeoBus) Best(key string) (Result, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.best[key]
	return r, ok && !r.IsExpired()
}

func Truncate(x float64, precision int) float64 {
	p := math.Pow(10, float64(precision))
	return math.Trunc(x*p) / p
}
