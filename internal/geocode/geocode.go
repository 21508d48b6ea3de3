// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geocode

import (
	"context"
	"errors"

	"github.com/wneessen/waybar-locshare/internal/geobus"
)

var ErrNoCandidates = errors.New("no address candidates found for coordinates")

// Address is a single reverse geocoding candidate.
type Address struct {
	FormattedAddress string
	Latitude         float64
	Longitude        float64
	Country          string
	State            string
	Municipality     string
	CityDistrict     string
	Postcode         string
	City             string
	Suburb           string
	Street           string
	HouseNumber      string
}

// Geocoder resolves coordinates into address candidates, ordered by the provider's ranking.
// An empty list without error means the provider knows no address for the coordinates.
type Geocoder interface {
	Name() string
	Reverse(ctx context.Context, coords geobus.Coordinate) ([]Address, error)
}

// First returns the top ranked candidate with a formatted address.
func First(candidates []Address) (Address, error) {
	for _, candidate := range candidates {
		if candidate.FormattedAddress != "" {
			return candidate, nil
		}
	}
	return Address{}, ErrNoCandidates
}
