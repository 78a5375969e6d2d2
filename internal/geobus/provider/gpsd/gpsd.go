// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package gpsd

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net"
	"time"

	"github.com/stratoberry/go-gpsd"

	"github.com/wneessen/waybar-location/internal/geobus"
	"github.com/wneessen/waybar-location/internal/logger"
)

const (
	name = "gpsd"
	host = "localhost"
	port = "2947"

	fallbackAccuracy3DFix = 10  // ~10 m typical consumer GPS in open sky
	fallbackAccuracy2DFix = 25  // worse than 3D, but still accurate enough
	fallbackAccuracyNoFix = 1e6 // effectively unusable
)

var closedFixes = func() <-chan fix {
	ch := make(chan fix)
	close(ch)
	return ch
}()

// fix is a single TPV report reduced to what we need.
type fix struct {
	Lat  float64
	Lon  float64
	Acc  float64
	Mode gpsd.Mode
}

type GeolocationGPSDProvider struct {
	name    string
	addr    string
	period  time.Duration
	ttl     time.Duration
	logger  *logger.Logger
	watchFn func(ctx context.Context) (<-chan fix, error)
}

func NewGeolocationGPSDProvider(log *logger.Logger) *GeolocationGPSDProvider {
	provider := &GeolocationGPSDProvider{
		name:   name,
		addr:   net.JoinHostPort(host, port),
		period: time.Second * 30,
		ttl:    time.Minute * 2,
		logger: log,
	}
	provider.watchFn = provider.watch
	return provider
}

func (p *GeolocationGPSDProvider) Name() string {
	return p.name
}

// LookupStream watches gpsd and streams every fix with at least a 2D lock that moved
// significantly. A lost connection is re-established after the provider period.
func (p *GeolocationGPSDProvider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	out := make(chan geobus.Result)
	go func() {
		defer close(out)
		state := geobus.GeolocationState{}

		for {
			fixes, err := p.watchFn(ctx)
			if err != nil {
				p.logger.Debug("gpsd unavailable", slog.String("addr", p.addr), logger.Err(err))
				fixes = closedFixes
			}
			for f := range fixes {
				if f.Mode < gpsd.Mode2D {
					continue
				}
				coord := geobus.Coordinate{
					Lat: geobus.Truncate(f.Lat, geobus.TruncPrecision),
					Lon: geobus.Truncate(f.Lon, geobus.TruncPrecision),
					Acc: geobus.Truncate(f.Acc, geobus.TruncPrecision),
				}
				if !state.HasChanged(coord) {
					continue
				}
				state.Update(coord)

				select {
				case <-ctx.Done():
					return
				case out <- p.createResult(key, coord):
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(p.period):
			}
		}
	}()
	return out
}

func (p *GeolocationGPSDProvider) createResult(key string, coord geobus.Coordinate) geobus.Result {
	return geobus.Result{
		Key:            key,
		Lat:            coord.Lat,
		Lon:            coord.Lon,
		AccuracyMeters: coord.Acc,
		Source:         p.name,
		At:             time.Now(),
		TTL:            p.ttl,
	}
}

// watch connects to gpsd and forwards TPV reports until the watch ends or ctx is done. Reports
// that arrive while the consumer is busy are dropped, only the newest position matters.
func (p *GeolocationGPSDProvider) watch(ctx context.Context) (<-chan fix, error) {
	session, err := gpsd.Dial(p.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to gpsd at %q: %w", p.addr, err)
	}

	reports := make(chan fix, 1)
	session.AddFilter("TPV", func(r interface{}) {
		tpv, ok := r.(*gpsd.TPVReport)
		if !ok {
			return
		}
		f := fix{
			Lat:  tpv.Lat,
			Lon:  tpv.Lon,
			Acc:  horizontalAccuracy(tpv.Epx, tpv.Epy, tpv.Mode),
			Mode: tpv.Mode,
		}
		select {
		case reports <- f:
		default:
		}
	})
	done := session.Watch()

	out := make(chan fix)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case f := <-reports:
				select {
				case <-ctx.Done():
					return
				case out <- f:
				}
			}
		}
	}()
	return out, nil
}

// horizontalAccuracy estimates the horizontal error in meters from the longitude and latitude
// errors of a report. Without error estimates the fix mode decides.
func horizontalAccuracy(epx, epy float64, mode gpsd.Mode) float64 {
	if epx > 0 && epy > 0 {
		return math.Hypot(epx, epy)
	}
	switch {
	case mode >= gpsd.Mode3D:
		return fallbackAccuracy3DFix
	case mode == gpsd.Mode2D:
		return fallbackAccuracy2DFix
	default:
		return fallbackAccuracyNoFix
	}
}
