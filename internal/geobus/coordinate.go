// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"math"

	"github.com/golang/geo/s2"
)

const (
	EarthRadius       = 6371000.0 // meters
	DistanceThreshold = 25.0      // meters
)

// Coordinate represents a geographic coordinate.
type Coordinate struct {
	Lat float64
	Lon float64
}

// LatLng returns the coordinate as s2.LatLng.
func (c Coordinate) LatLng() s2.LatLng {
	return s2.LatLngFromDegrees(c.Lat, c.Lon)
}

// DistanceTo returns the great-circle distance to other in meters.
func (c Coordinate) DistanceTo(other Coordinate) float64 {
	return c.LatLng().Distance(other.LatLng()).Radians() * EarthRadius
}

// PosHasSignificantChange reports whether other is farther away than DistanceThreshold.
func (c Coordinate) PosHasSignificantChange(other Coordinate) bool {
	return c.DistanceTo(other) > DistanceThreshold
}

// Valid checks if the coordinate is valid according to the EPSG logic
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}
