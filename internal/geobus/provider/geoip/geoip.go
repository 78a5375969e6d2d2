// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoip

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/waybar-location/internal/geobus"
	"github.com/wneessen/waybar-location/internal/http"
)

const (
	name          = "geoip"
	apiEndpoint   = "https://reallyfreegeoip.org/json/"
	lookupTimeout = time.Second * 5
)

// GeolocationGeoIPProvider locates the public IP address of the host. It is the least accurate
// provider and mostly serves as a fallback.
type GeolocationGeoIPProvider struct {
	name     string
	http     *http.Client
	period   time.Duration
	ttl      time.Duration
	locateFn geobus.LocateFunc
}

type APIResult struct {
	IP          string  `json:"ip"`
	CountryCode string  `json:"country_code"`
	Country     string  `json:"country_name"`
	RegionCode  string  `json:"region_code,omitempty"`
	Region      string  `json:"region_name,omitempty"`
	City        string  `json:"city,omitempty"`
	ZipCode     string  `json:"zip_code,omitempty"`
	TimeZone    string  `json:"time_zone"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

func NewGeolocationGeoIPProvider(client *http.Client) *GeolocationGeoIPProvider {
	provider := &GeolocationGeoIPProvider{
		name:   name,
		http:   client,
		period: 30 * time.Minute,
		ttl:    60 * time.Minute,
	}
	provider.locateFn = provider.locate
	return provider
}

func (p *GeolocationGeoIPProvider) Name() string {
	return p.name
}

func (p *GeolocationGeoIPProvider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	return geobus.Poll(ctx, p.period, p.locateFn, func(coord geobus.Coordinate) geobus.Result {
		return p.createResult(key, coord)
	})
}

func (p *GeolocationGeoIPProvider) createResult(key string, coord geobus.Coordinate) geobus.Result {
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

func (p *GeolocationGeoIPProvider) locate(ctx context.Context) (geobus.Coordinate, error) {
	result := new(APIResult)
	if _, err := p.http.GetWithTimeout(ctx, apiEndpoint, result, nil, nil, lookupTimeout); err != nil {
		return geobus.Coordinate{}, fmt.Errorf("failed to get geolocation data from API: %w", err)
	}

	return geobus.Coordinate{
		Lat: geobus.Truncate(result.Latitude, geobus.TruncPrecision),
		Lon: geobus.Truncate(result.Longitude, geobus.TruncPrecision),
		Acc: result.accuracy(),
		At:  time.Now(),
	}, nil
}

// accuracy derives the accuracy from the most detailed field the API filled in.
func (r *APIResult) accuracy() float64 {
	switch {
	case r.ZipCode != "":
		return geobus.AccuracyZip
	case r.City != "":
		return geobus.AccuracyCity
	case r.RegionCode != "":
		return geobus.AccuracyRegion
	case r.CountryCode != "":
		return geobus.AccuracyCountry
	default:
		return geobus.AccuracyUnknown
	}
}
