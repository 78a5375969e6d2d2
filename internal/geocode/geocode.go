// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geocode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/wneessen/waybar-location/internal/geobus"
	httpclient "github.com/wneessen/waybar-location/internal/http"
)

var (
	// ErrMissingAPIKey is returned by providers that cannot work without an API key.
	ErrMissingAPIKey = errors.New("geocoding provider requires an API key")
	// ErrInvalidAPIKey is returned when the provider rejected the configured API key.
	ErrInvalidAPIKey = errors.New("geocoding provider rejected the API key")
	// ErrQuotaExceeded is returned when the request quota of the API key is used up.
	ErrQuotaExceeded = errors.New("geocoding provider quota exceeded")
)

// Address is the place a coordinate resolved to. AddressFound is false when the provider
// answered but knew no address for the coordinate.
type Address struct {
	AddressFound bool
	Latitude     float64
	Longitude    float64
	DisplayName  string
	Country      string
	// CountryCode is the upper-case ISO 3166-1 alpha-2 code
	CountryCode  string
	State        string
	Municipality string
	CityDistrict string
	Postcode     string
	City         string
	Suburb       string
	Street       string
	HouseNumber  string

	CacheHit bool
}

// LogValue implements slog.LogValuer.
func (a Address) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("found", a.AddressFound),
		slog.String("city", a.City),
		slog.String("country_code", a.CountryCode),
		slog.String("street", a.Street),
		slog.Bool("cache_hit", a.CacheHit),
	)
}

// Geocoder resolves coordinates into addresses.
type Geocoder interface {
	Name() string
	Reverse(ctx context.Context, coords geobus.Coordinate) (Address, error)
}

// FirstNonEmpty returns the first of vals that is not empty. Providers use it to fall back from
// city to town to village.
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// NormalizeCountryCode upper-cases a country code and drops anything that is not a two letter code.
func NormalizeCountryCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 2 {
		return ""
	}
	return code
}

// ClassifyError maps HTTP status errors of keyed APIs to ErrInvalidAPIKey and ErrQuotaExceeded.
// Other errors are returned unchanged.
func ClassifyError(err error) error {
	var statusErr *httpclient.StatusError
	if !errors.As(err, &statusErr) {
		return err
	}
	switch statusErr.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %w", ErrInvalidAPIKey, err)
	case http.StatusPaymentRequired:
		return fmt.Errorf("%w: %w", ErrQuotaExceeded, err)
	default:
		return err
	}
}
