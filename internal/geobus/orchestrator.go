// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/wneessen/waybar-location/internal/logger"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// Orchestrator coordinates the tracking and publication of geolocation results from multiple
// providers through a GeoBus.
type Orchestrator struct {
	Bus       *GeoBus
	Providers []Provider

	logger     *logger.Logger
	newBackOff func() backoff.BackOff
}

// Track runs every provider in its own goroutine and blocks until ctx is done and all providers
// returned.
func (o *Orchestrator) Track(ctx context.Context, key string) {
	var wg sync.WaitGroup
	for _, p := range o.Providers {
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()
			o.trackProvider(ctx, p, key)
		}(p)
	}
	<-ctx.Done()
	wg.Wait()
}

// trackProvider publishes the results of a provider stream. When the stream ends or the lookup
// fails, the lookup is restarted after an exponential backoff, which is reset once the provider
// delivered a result.
func (o *Orchestrator) trackProvider(ctx context.Context, p Provider, key string) {
	bo := backoff.WithContext(o.backOff(), ctx)
	for {
		if ctx.Err() != nil {
			return
		}

		if lookupChan := o.safeLookup(ctx, p, key); lookupChan != nil {
			if o.drain(ctx, lookupChan) {
				bo.Reset()
			}
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			return
		}
		o.debug("restarting geolocation provider", slog.String("provider", p.Name()),
			slog.Duration("backoff", wait))
		if !sleepOrDone(ctx, wait) {
			return
		}
	}
}

// drain publishes every result of ch until it is closed or ctx is done. It reports whether at
// least one result was received.
func (o *Orchestrator) drain(ctx context.Context, ch <-chan Result) bool {
	received := false
	for {
		select {
		case <-ctx.Done():
			return received
		case r, ok := <-ch:
			if !ok {
				return received
			}
			received = true
			o.Bus.Publish(r)
		}
	}
}

// safeLookup safely invokes the LookupStream method on a Provider and recovers from potential panics.
// Returns a read-only channel of Result or nil if the operation fails.
func (o *Orchestrator) safeLookup(ctx context.Context, provider Provider, key string) (ch <-chan Result) {
	defer func() {
		if r := recover(); r != nil {
			o.debug("geolocation provider panicked", slog.String("provider", provider.Name()),
				slog.Any("panic", r))
			ch = nil
		}
	}()
	return provider.LookupStream(ctx, key)
}

func (o *Orchestrator) backOff() backoff.BackOff {
	if o.newBackOff != nil {
		return o.newBackOff()
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = initialBackoff
	eb.MaxInterval = maxBackoff
	eb.MaxElapsedTime = 0
	return eb
}

func (o *Orchestrator) debug(msg string, attrs ...any) {
	if o.logger != nil {
		o.logger.Debug(msg, attrs...)
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
