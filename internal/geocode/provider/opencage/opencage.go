// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package opencage

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
	APIEndpoint = "https://api.opencagedata.com/geocode/v1/json"
	APITimeout  = time.Second * 10
	name        = "opencage"
)

type OpenCage struct {
	apikey string
	http   *http.Client
	lang   language.Tag
}

type Response struct {
	Results      []Result `json:"results"`
	TotalResults int      `json:"total_results"`
}

type Result struct {
	Components  Components `json:"components"`
	DisplayName string     `json:"formatted"`
	Geometry    Geometry   `json:"geometry"`
}

type Components struct {
	NormalizedCity string `json:"_normalized_city"`
	City           string `json:"city"`
	CityDistrict   string `json:"city_district"`
	Country        string `json:"country"`
	CountryCode    string `json:"country_code"`
	HouseNumber    string `json:"house_number"`
	Municipality   string `json:"municipality"`
	Postcode       string `json:"postcode"`
	Road           string `json:"road"`
	State          string `json:"state"`
	Suburb         string `json:"suburb"`
	Town           string `json:"town"`
	Village        string `json:"village"`
}

type Geometry struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lng"`
}

// New returns an OpenCage geocoder. OpenCage requires an API key.
func New(client *http.Client, lang language.Tag, apikey string) (*OpenCage, error) {
	if apikey == "" {
		return nil, geocode.ErrMissingAPIKey
	}
	return &OpenCage{
		apikey: apikey,
		lang:   lang,
		http:   client,
	}, nil
}

func (o *OpenCage) Name() string {
	return name
}

func (o *OpenCage) Reverse(ctx context.Context, coords geobus.Coordinate) (geocode.Address, error) {
	var response Response

	query := url.Values{}
	query.Set("key", o.apikey)
	query.Set("q", strconv.FormatFloat(coords.Lat, 'f', 6, 64)+","+strconv.FormatFloat(coords.Lon, 'f', 6, 64))
	query.Set("no_annotations", "1")
	query.Set("no_record", "1")
	query.Set("limit", "1")
	query.Set("language", o.lang.String())

	if _, err := o.http.GetWithTimeout(ctx, APIEndpoint, &response, query, nil, APITimeout); err != nil {
		return geocode.Address{}, fmt.Errorf("failed to retrieve address details from OpenCage API: %w", geocode.ClassifyError(err))
	}
	if response.TotalResults < 1 || len(response.Results) < 1 {
		return geocode.Address{Latitude: coords.Lat, Longitude: coords.Lon}, nil
	}

	result := response.Results[0]
	comp := result.Components
	return geocode.Address{
		AddressFound: true,
		Latitude:     result.Geometry.Lat,
		Longitude:    result.Geometry.Lon,
		DisplayName:  result.DisplayName,
		Country:      comp.Country,
		CountryCode:  geocode.NormalizeCountryCode(comp.CountryCode),
		State:        comp.State,
		Municipality: comp.Municipality,
		CityDistrict: comp.CityDistrict,
		Postcode:     comp.Postcode,
		City:         geocode.FirstNonEmpty(comp.NormalizedCity, comp.City, comp.Town, comp.Village),
		Suburb:       comp.Suburb,
		Street:       comp.Road,
		HouseNumber:  comp.HouseNumber,
	}, nil
}
