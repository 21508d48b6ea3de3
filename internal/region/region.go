// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package region describes the visible map viewport and how it is shared as URL.
package region

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/golang/geo/s2"

	"github.com/wneessen/waybar-locshare/internal/geobus"
)

const (
	// MapsBaseURL is the prefix of every share URL.
	MapsBaseURL = "https://www.google.com/maps/@"
	// MapsURLSuffix holds the fixed zoom level and entry parameter of every share URL.
	MapsURLSuffix = ",15z?entry=ttu"

	DefaultLatitude       = -23.563987
	DefaultLongitude      = -46.653254
	DefaultLatitudeDelta  = 0.0922
	DefaultLongitudeDelta = 0.0421
)

var ErrInvalidRegion = errors.New("invalid region")

// Region is the map viewport: its center coordinate and the span it covers in degrees.
type Region struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	LatitudeDelta  float64 `json:"latitudeDelta"`
	LongitudeDelta float64 `json:"longitudeDelta"`
}

// Default returns the viewport the screen mounts with.
func Default() Region {
	return Region{
		Latitude:       DefaultLatitude,
		Longitude:      DefaultLongitude,
		LatitudeDelta:  DefaultLatitudeDelta,
		LongitudeDelta: DefaultLongitudeDelta,
	}
}

// FromResult converts a geobus result into a Region. Results without a span inherit the
// deltas of current.
func FromResult(r geobus.Result, current Region) Region {
	reg := Region{
		Latitude:       r.Lat,
		Longitude:      r.Lon,
		LatitudeDelta:  current.LatitudeDelta,
		LongitudeDelta: current.LongitudeDelta,
	}
	if r.HasSpan() {
		reg.LatitudeDelta = r.LatDelta
		reg.LongitudeDelta = r.LonDelta
	}
	return reg
}

// Validate checks that the center is a valid coordinate and the deltas are finite and
// not negative.
func (r Region) Validate() error {
	if !r.Coordinate().Valid() {
		return fmt.Errorf("%w: center %f,%f out of range", ErrInvalidRegion, r.Latitude, r.Longitude)
	}
	for _, delta := range []float64{r.LatitudeDelta, r.LongitudeDelta} {
		if math.IsNaN(delta) || math.IsInf(delta, 0) || delta < 0 {
			return fmt.Errorf("%w: delta %f must be a finite, non-negative number", ErrInvalidRegion, delta)
		}
	}
	return nil
}

// Coordinate returns the center of the region.
func (r Region) Coordinate() geobus.Coordinate {
	return geobus.Coordinate{Lat: r.Latitude, Lon: r.Longitude}
}

// Center returns the center of the region as s2.LatLng.
func (r Region) Center() s2.LatLng {
	return r.Coordinate().LatLng()
}

// Bounds returns the rectangle spanned by the region's deltas around its center.
func (r Region) Bounds() s2.Rect {
	return s2.RectFromCenterSize(r.Center(), s2.LatLngFromDegrees(r.LatitudeDelta, r.LongitudeDelta))
}

// ShareURL returns the map URL for the region's center. Coordinates are written with the
// shortest decimal representation that parses back to the exact same value.
func (r Region) ShareURL() string {
	return MapsBaseURL + formatCoord(r.Latitude) + "," + formatCoord(r.Longitude) + MapsURLSuffix
}

func formatCoord(val float64) string {
	return strconv.FormatFloat(val, 'f', -1, 64)
}
