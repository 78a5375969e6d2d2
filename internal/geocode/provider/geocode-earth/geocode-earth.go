// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geocodeearth

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
	APIEndpoint = "https://api.geocode.earth/v1/reverse"
	APITimeout  = time.Second * 10
	name        = "geocode-earth"
)

type GeocodeEarth struct {
	apikey string
	http   *http.Client
	lang   language.Tag
}

type Response struct {
	Features []Feature `json:"features"`
	Type     string    `json:"type"`
}

type Feature struct {
	Geometry   Geometry   `json:"geometry"`
	Properties Properties `json:"properties"`
}

// Geometry is a GeoJSON point, the coordinates are ordered longitude first.
type Geometry struct {
	Coordinates []float64 `json:"coordinates"`
}

type Properties struct {
	Label         string `json:"label"`
	Locality      string `json:"locality"`
	LocalAdmin    string `json:"localadmin"`
	County        string `json:"county"`
	Borough       string `json:"borough"`
	Neighbourhood string `json:"neighbourhood"`
	Country       string `json:"country"`
	CountryCode   string `json:"country_code"`
	HouseNumber   string `json:"housenumber"`
	Postcode      string `json:"postalcode"`
	Street        string `json:"street"`
	Region        string `json:"region"`
}

// New returns a geocode.earth geocoder. geocode.earth requires an API key.
func New(client *http.Client, lang language.Tag, apikey string) (*GeocodeEarth, error) {
	if apikey == "" {
		return nil, geocode.ErrMissingAPIKey
	}
	return &GeocodeEarth{
		apikey: apikey,
		lang:   lang,
		http:   client,
	}, nil
}

func (g *GeocodeEarth) Name() string {
	return name
}

func (g *GeocodeEarth) Reverse(ctx context.Context, coords geobus.Coordinate) (geocode.Address, error) {
	var response Response

	query := url.Values{}
	query.Set("api_key", g.apikey)
	query.Set("point.lat", strconv.FormatFloat(coords.Lat, 'f', 6, 64))
	query.Set("point.lon", strconv.FormatFloat(coords.Lon, 'f', 6, 64))
	query.Set("size", "1")
	query.Set("lang", g.lang.String())

	if _, err := g.http.GetWithTimeout(ctx, APIEndpoint, &response, query, nil, APITimeout); err != nil {
		return geocode.Address{}, fmt.Errorf("failed to retrieve address details from geocode.earth API: %w", geocode.ClassifyError(err))
	}
	if len(response.Features) < 1 {
		return geocode.Address{Latitude: coords.Lat, Longitude: coords.Lon}, nil
	}

	feature := response.Features[0]
	props := feature.Properties
	address := geocode.Address{
		AddressFound: true,
		Latitude:     coords.Lat,
		Longitude:    coords.Lon,
		DisplayName:  props.Label,
		Country:      props.Country,
		CountryCode:  geocode.NormalizeCountryCode(props.CountryCode),
		State:        props.Region,
		Municipality: props.LocalAdmin,
		CityDistrict: geocode.FirstNonEmpty(props.Borough, props.County),
		Postcode:     props.Postcode,
		City:         geocode.FirstNonEmpty(props.Locality, props.LocalAdmin),
		Suburb:       props.Neighbourhood,
		Street:       props.Street,
		HouseNumber:  props.HouseNumber,
	}
	if len(feature.Geometry.Coordinates) == 2 {
		address.Longitude = feature.Geometry.Coordinates[0]
		address.Latitude = feature.Geometry.Coordinates[1]
	}

	return address, nil
}
