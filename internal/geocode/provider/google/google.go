// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package google

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/text/language"
	"googlemaps.github.io/maps"

	"github.com/wneessen/waybar-locshare/internal/geobus"
	"github.com/wneessen/waybar-locshare/internal/geocode"
	"github.com/wneessen/waybar-locshare/internal/http"
)

const (
	APITimeout = time.Second * 10
	name       = "google"
)

var ErrMissingAPIKey = errors.New("google geocoder requires an API key")

// Google reverse geocodes through the Google Maps Geocoding API.
type Google struct {
	client *maps.Client
	lang   language.Tag
}

// New returns a Google geocoder. The HTTP client's transport is reused, so proxies and test
// round trippers apply to the Maps API calls as well.
func New(httpClient *http.Client, lang language.Tag, apikey string, opts ...maps.ClientOption) (*Google, error) {
	if apikey == "" {
		return nil, ErrMissingAPIKey
	}
	options := []maps.ClientOption{maps.WithAPIKey(apikey)}
	if httpClient != nil {
		options = append(options, maps.WithHTTPClient(httpClient.Client))
	}
	options = append(options, opts...)

	client, err := maps.NewClient(options...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Google Maps API client: %w", err)
	}
	return &Google{client: client, lang: lang}, nil
}

func (g *Google) Name() string {
	return name
}

func (g *Google) Reverse(ctx context.Context, coords geobus.Coordinate) ([]geocode.Address, error) {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	req := &maps.GeocodingRequest{
		LatLng:   &maps.LatLng{Lat: coords.Lat, Lng: coords.Lon},
		Language: g.lang.String(),
	}
	results, err := g.client.ReverseGeocode(ctx, req)
	// the client reports ZERO_RESULTS as an empty, successful response
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve address details from Google Maps API: %w", err)
	}

	candidates := make([]geocode.Address, 0, len(results))
	for _, result := range results {
		candidates = append(candidates, toAddress(result))
	}
	return candidates, nil
}

func toAddress(result maps.GeocodingResult) geocode.Address {
	address := geocode.Address{
		FormattedAddress: result.FormattedAddress,
		Latitude:         result.Geometry.Location.Lat,
		Longitude:        result.Geometry.Location.Lng,
	}
	for _, comp := range result.AddressComponents {
		for _, t := range comp.Types {
			switch t {
			case "street_number":
				address.HouseNumber = comp.LongName
			case "route":
				address.Street = comp.LongName
			case "postal_code":
				address.Postcode = comp.LongName
			case "locality", "postal_town":
				if address.City == "" {
					address.City = comp.LongName
				}
			case "sublocality", "sublocality_level_1":
				if address.Suburb == "" {
					address.Suburb = comp.LongName
				}
			case "administrative_area_level_3":
				address.Municipality = comp.LongName
			case "administrative_area_level_2":
				address.CityDistrict = comp.LongName
			case "administrative_area_level_1":
				address.State = comp.LongName
			case "country":
				address.Country = comp.LongName
			}
		}
	}
	return address
}
