// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geocode

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wneessen/waybar-location/internal/geobus"
)

const (
	// cellSize is the edge length of a cache cell in degrees (0.0001 degrees ≈ 11 m)
	cellSize = 1e-4

	// DefaultMaxEntries bounds the cache when no other limit is configured.
	DefaultMaxEntries = 512
)

// cell identifies the grid square a coordinate falls into for a given provider.
type cell struct {
	provider string
	lat, lon int32
}

type cached struct {
	addr    Address
	expires time.Time
}

// CacheStats are the counters of a CachedGeocoder.
type CacheStats struct {
	Hits    uint64
	Misses  uint64
	Entries int
}

// CacheOption configures a CachedGeocoder.
type CacheOption func(*CachedGeocoder)

// WithCacheClock sets the clock used to expire entries.
func WithCacheClock(clock clockwork.Clock) CacheOption {
	return func(c *CachedGeocoder) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithMaxEntries bounds the number of cached addresses. When the cache is full, the entry
// closest to its expiry is evicted. A limit of zero or below keeps the default.
func WithMaxEntries(limit int) CacheOption {
	return func(c *CachedGeocoder) {
		if limit > 0 {
			c.maxEntries = limit
		}
	}
}

// CachedGeocoder wraps a Geocoder with a TTL cache on a grid of about eleven meters. Addresses
// that were found are kept for ttlHit, empty results for ttlMiss. Failed lookups are not cached.
type CachedGeocoder struct {
	coder      Geocoder
	ttlHit     time.Duration
	ttlMiss    time.Duration
	maxEntries int
	clock      clockwork.Clock

	mu      sync.Mutex
	entries map[cell]cached
	hits    uint64
	misses  uint64
}

func NewCachedGeocoder(coder Geocoder, ttlHit, ttlMiss time.Duration, opts ...CacheOption) *CachedGeocoder {
	c := &CachedGeocoder{
		coder:      coder,
		ttlHit:     ttlHit,
		ttlMiss:    ttlMiss,
		maxEntries: DefaultMaxEntries,
		clock:      clockwork.NewRealClock(),
		entries:    make(map[cell]cached),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CachedGeocoder) Name() string {
	return "geocoder cache using " + c.coder.Name()
}

// Reverse returns the cached address for the cell of coords or asks the wrapped geocoder.
func (c *CachedGeocoder) Reverse(ctx context.Context, coords geobus.Coordinate) (Address, error) {
	key := cellOf(c.coder.Name(), coords)
	if addr, ok := c.lookup(key); ok {
		return addr, nil
	}

	addr, err := c.coder.Reverse(ctx, coords)
	if err != nil {
		return addr, err
	}
	c.store(key, addr)
	return addr, nil
}

// Purge removes all expired entries and returns how many were removed.
func (c *CachedGeocoder) Purge() int {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if !now.Before(entry.expires) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of cached entries, expired ones included.
func (c *CachedGeocoder) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *CachedGeocoder) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Hits: c.hits, Misses: c.misses, Entries: len(c.entries)}
}

func (c *CachedGeocoder) lookup(key cell) (Address, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || !c.clock.Now().Before(entry.expires) {
		c.misses++
		return Address{}, false
	}
	c.hits++
	addr := entry.addr
	addr.CacheHit = true
	return addr, true
}

func (c *CachedGeocoder) store(key cell, addr Address) {
	ttl := c.ttlHit
	if !addr.AddressFound {
		ttl = c.ttlMiss
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}
	c.entries[key] = cached{addr: addr, expires: c.clock.Now().Add(ttl)}
}

// evictLocked drops the entry that expires first. c.mu must be held.
func (c *CachedGeocoder) evictLocked() {
	var (
		victim cell
		oldest time.Time
		found  bool
	)
	for key, entry := range c.entries {
		if !found || entry.expires.Before(oldest) {
			victim, oldest, found = key, entry.expires, true
		}
	}
	if found {
		delete(c.entries, victim)
	}
}

func cellOf(provider string, coords geobus.Coordinate) cell {
	return cell{
		provider: provider,
		lat:      int32(math.Round(coords.Lat / cellSize)),
		lon:      int32(math.Round(coords.Lon / cellSize)),
	}
}
