// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package elevation looks up the terrain elevation of a coordinate.
package elevation

import (
	"context"

	"github.com/wneessen/waybar-location/internal/geobus"
)

// Provider returns the elevation in meters above sea level for a coordinate.
type Provider interface {
	Name() string
	Elevation(ctx context.Context, coords geobus.Coordinate) (float64, error)
}
