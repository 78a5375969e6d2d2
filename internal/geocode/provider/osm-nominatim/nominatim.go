// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package nominatim resolves coordinates with the reverse endpoint of an OpenStreetMap
// Nominatim instance.
package nominatim

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/text/language"

	"github.com/wneessen/waybar-location/internal/geobus"
	"github.com/wneessen/waybar-location/internal/geocode"
	"github.com/wneessen/waybar-location/internal/http"
)

const (
	APIReverseEndpoint = "https://nominatim.openstreetmap.org/reverse"
	APITimeout         = time.Second * 10
	// RequestsPerSecond is the maximum request rate allowed by the Nominatim usage policy
	RequestsPerSecond = 1
	// DefaultZoom asks for addresses down to the building
	DefaultZoom = 18
	name        = "osm-nominatim"
)

type Nominatim struct {
	http     *http.Client
	lang     language.Tag
	endpoint string
	zoom     int
}

// Option configures a Nominatim geocoder.
type Option func(*Nominatim)

// WithEndpoint points the geocoder to a self-hosted instance. Empty values are ignored.
func WithEndpoint(endpoint string) Option {
	return func(n *Nominatim) {
		if endpoint != "" {
			n.endpoint = endpoint
		}
	}
}

// WithZoom sets the level of detail of the result, from 3 (country) to 18 (building).
func WithZoom(zoom int) Option {
	return func(n *Nominatim) {
		if zoom >= 3 && zoom <= 18 {
			n.zoom = zoom
		}
	}
}

type reverseResult struct {
	APILat      string        `json:"lat"`
	APILon      string        `json:"lon"`
	Name        string        `json:"name"`
	DisplayName string        `json:"display_name"`
	Address     resultAddress `json:"address"`
	// Error is set when Nominatim knows no address for the coordinates
	Error string `json:"error"`
}

type resultAddress struct {
	HouseNumber  string `json:"house_number"`
	Road         string `json:"road"`
	Pedestrian   string `json:"pedestrian"`
	Suburb       string `json:"suburb"`
	Municipality string `json:"municipality"`
	CityDistrict string `json:"city_district"`
	City         string `json:"city"`
	Town         string `json:"town"`
	Village      string `json:"village"`
	Hamlet       string `json:"hamlet"`
	State        string `json:"state"`
	Postcode     string `json:"postcode"`
	Country      string `json:"country"`
	CountryCode  string `json:"country_code"`
}

func New(client *http.Client, lang language.Tag, opts ...Option) *Nominatim {
	n := &Nominatim{
		http:     client,
		lang:     lang,
		endpoint: APIReverseEndpoint,
		zoom:     DefaultZoom,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Nominatim) Name() string {
	return name
}

func (n *Nominatim) Reverse(ctx context.Context, coords geobus.Coordinate) (geocode.Address, error) {
	query := url.Values{}
	query.Set("format", "jsonv2")
	query.Set("lat", strconv.FormatFloat(coords.Lat, 'f', 6, 64))
	query.Set("lon", strconv.FormatFloat(coords.Lon, 'f', 6, 64))
	query.Set("zoom", strconv.Itoa(n.zoom))
	query.Set("addressdetails", "1")
	query.Set("accept-language", n.lang.String())

	var result reverseResult
	if _, err := n.http.GetWithTimeout(ctx, n.endpoint, &result, query, nil, APITimeout); err != nil {
		return geocode.Address{}, fmt.Errorf("failed to fetch reverse address details from Nominatim API: %w", err)
	}
	if result.Error != "" {
		return geocode.Address{Latitude: coords.Lat, Longitude: coords.Lon}, nil
	}
	return result.toAddress()
}

func (r reverseResult) toAddress() (geocode.Address, error) {
	lat, err := strconv.ParseFloat(r.APILat, 64)
	if err != nil {
		return geocode.Address{}, fmt.Errorf("failed to parse latitude from Nominatim API response: %w", err)
	}
	lon, err := strconv.ParseFloat(r.APILon, 64)
	if err != nil {
		return geocode.Address{}, fmt.Errorf("failed to parse longitude from Nominatim API response: %w", err)
	}

	addr := r.Address
	return geocode.Address{
		AddressFound: true,
		Latitude:     lat,
		Longitude:    lon,
		DisplayName:  r.DisplayName,
		Country:      addr.Country,
		CountryCode:  geocode.NormalizeCountryCode(addr.CountryCode),
		State:        addr.State,
		Municipality: addr.Municipality,
		CityDistrict: addr.CityDistrict,
		Postcode:     addr.Postcode,
		City:         geocode.FirstNonEmpty(addr.City, addr.Town, addr.Village, addr.Hamlet),
		Suburb:       addr.Suburb,
		Street:       geocode.FirstNonEmpty(addr.Road, addr.Pedestrian),
		HouseNumber:  addr.HouseNumber,
	}, nil
}
