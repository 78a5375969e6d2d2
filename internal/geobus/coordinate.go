// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"log/slog"
	"math"
	"time"
)

const (
	EarthRadius       = 6371000.0 // meters
	DistanceThreshold = 2500.0    // 2.5km
	AccuracyThreshold = 50.0
)

// Coordinate is a single location sample. Only the newest sample is of interest to consumers.
type Coordinate struct {
	Lat float64
	Lon float64
	Acc float64
	// At is the time the sample was observed by its provider
	At time.Time
}

// PosHasSignificantChange checks if the geographic position differs significantly from
// another based on the distance threshold. We are using the Haversine formula to calculate
// great-circle distance between two points on a sphere (in our case: Earth).
func (c Coordinate) PosHasSignificantChange(other Coordinate) bool {
	// Higher accuracy always trumps the distance threshold.
	if c.Acc < other.Acc && math.Abs(c.Acc-other.Acc) > AccuracyThreshold {
		return true
	}
	return c.DistanceTo(other) > DistanceThreshold
}

// DistanceTo returns the great-circle distance to other in meters.
func (c Coordinate) DistanceTo(other Coordinate) float64 {
	dLat := (c.Lat - other.Lat) * math.Pi / 180
	dLon := (c.Lon - other.Lon) * math.Pi / 180
	lat1 := c.Lat * math.Pi / 180
	lat2 := other.Lat * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadius * math.Asin(math.Sqrt(h))
}

// Valid checks if the coordinate is valid according to the EPSG logic
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// LogValue implements slog.LogValuer.
func (c Coordinate) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Float64("lat", c.Lat),
		slog.Float64("lon", c.Lon),
		slog.Float64("accuracy", c.Acc),
	)
}
