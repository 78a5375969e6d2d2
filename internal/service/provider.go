// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wneessen/waybar-location/internal/elevation"
	openmeteo "github.com/wneessen/waybar-location/internal/elevation/provider/open-meteo"
	"github.com/wneessen/waybar-location/internal/geobus"
	"github.com/wneessen/waybar-location/internal/geobus/provider/geoip"
	"github.com/wneessen/waybar-location/internal/geobus/provider/geolocation_file"
	"github.com/wneessen/waybar-location/internal/geobus/provider/gpsd"
	"github.com/wneessen/waybar-location/internal/geobus/provider/ichnaea"
	"github.com/wneessen/waybar-location/internal/geocode"
	geocodeearth "github.com/wneessen/waybar-location/internal/geocode/provider/geocode-earth"
	"github.com/wneessen/waybar-location/internal/geocode/provider/opencage"
	nominatim "github.com/wneessen/waybar-location/internal/geocode/provider/osm-nominatim"
	"github.com/wneessen/waybar-location/internal/http"
	"github.com/wneessen/waybar-location/internal/logger"
)

// ErrNoProviders is returned when every geolocation provider is disabled.
var ErrNoProviders = errors.New("no geolocation providers enabled")

func (s *Service) selectGeobusProviders() ([]geobus.Provider, error) {
	httpClient := http.New(s.logger)
	var provider []geobus.Provider

	if !s.config.GeoLocation.DisableGeolocationFile {
		provider = append(provider, geolocation_file.NewGeolocationFileProvider(s.config.GeoLocation.GeoLocationFile))
	}

	if !s.config.GeoLocation.DisableGPSD {
		provider = append(provider, gpsd.NewGeolocationGPSDProvider(s.logger.Component("gpsd")))
	}

	if !s.config.GeoLocation.DisableGeoIP {
		provider = append(provider, geoip.NewGeolocationGeoIPProvider(httpClient))
	}

	if !s.config.GeoLocation.DisableICHNAEA {
		mls, err := ichnaea.NewGeolocationICHNAEAProvider(http.New(s.logger),
			ichnaea.WithEndpoint(s.config.GeoLocation.ICHNAEAEndpoint))
		if err != nil {
			s.logger.Error("failed to create ICHNAEA provider", logger.Err(err))
		} else {
			provider = append(provider, mls)
		}
	}
	if len(provider) == 0 {
		return nil, ErrNoProviders
	}

	return provider, nil
}

// selectGeocodeProvider returns the configured geocoder wrapped in a cache. The cache is kept on
// the service so the purge job can reach it.
func (s *Service) selectGeocodeProvider() (geocode.Geocoder, error) {
	var coder geocode.Geocoder
	var err error

	lang := s.t.Language()
	switch strings.ToLower(s.config.GeoCoder.Provider) {
	case "nominatim":
		client := http.New(s.logger, http.WithRateLimit(s.config.GeoCoder.RequestsPerSecond, 1))
		coder = nominatim.New(client, lang, nominatim.WithEndpoint(s.config.GeoCoder.Endpoint),
			nominatim.WithZoom(s.config.GeoCoder.Zoom))
	case "opencage":
		coder, err = opencage.New(http.New(s.logger), lang, s.config.GeoCoder.APIKey)
	case "geocode-earth":
		coder, err = geocodeearth.New(http.New(s.logger), lang, s.config.GeoCoder.APIKey)
	default:
		return nil, fmt.Errorf("unsupported geocoder type: %s", s.config.GeoCoder.Provider)
	}
	if err != nil {
		return nil, err
	}

	s.cache = geocode.NewCachedGeocoder(coder, cacheHitTTL, cacheMissTTL)
	return s.cache, nil
}

func (s *Service) selectElevationProvider() (elevation.Provider, error) {
	provider, err := openmeteo.New()
	if err != nil {
		return nil, err
	}
	return provider, nil
}
