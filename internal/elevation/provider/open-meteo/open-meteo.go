// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package open_meteo

import (
	"context"
	"fmt"
	"time"

	"github.com/hectormalot/omgo"

	"github.com/wneessen/waybar-location/internal/geobus"
)

const (
	name       = "open-meteo"
	apiTimeout = time.Second * 10
)

type forecastFunc func(ctx context.Context, loc omgo.Location, opts *omgo.Options) (*omgo.Forecast, error)

// OpenMeteo reads the elevation from the Open-Meteo forecast API. The forecast response
// carries the elevation of the grid cell the coordinate falls into.
type OpenMeteo struct {
	forecastFn forecastFunc
}

func New() (*OpenMeteo, error) {
	client, err := omgo.NewClient()
	if err != nil {
		return nil, fmt.Errorf("failed to create Open-Meteo client: %w", err)
	}
	return &OpenMeteo{forecastFn: client.Forecast}, nil
}

func (o *OpenMeteo) Name() string {
	return name
}

func (o *OpenMeteo) Elevation(ctx context.Context, coords geobus.Coordinate) (float64, error) {
	if !coords.Valid() {
		return 0, fmt.Errorf("invalid coordinates %f/%f", coords.Lat, coords.Lon)
	}
	location, err := omgo.NewLocation(coords.Lat, coords.Lon)
	if err != nil {
		return 0, fmt.Errorf("failed to create Open-Meteo location from coordinates: %w", err)
	}

	ctxFetch, cancelFetch := context.WithTimeout(ctx, apiTimeout)
	defer cancelFetch()
	forecast, err := o.forecastFn(ctxFetch, location, &omgo.Options{Timezone: "auto"})
	if err != nil {
		return 0, fmt.Errorf("failed to get forecast data: %w", err)
	}
	if forecast == nil {
		return 0, fmt.Errorf("empty forecast response")
	}
	return forecast.Elevation, nil
}
