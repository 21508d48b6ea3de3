// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoip

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wneessen/waybar-locshare/internal/geobus"
	"github.com/wneessen/waybar-locshare/internal/http"
)

const (
	name = "geoip"

	APIEndpoint   = "https://reallyfreegeoip.org/json/"
	LookupTimeout = time.Second * 5
)

var ErrNoPosition = errors.New("geoip lookup returned no usable position")

// GeolocationGeoIPProvider places the map on the approximate position of the public IP address.
// It carries no viewport span, so the current region's deltas are kept.
type GeolocationGeoIPProvider struct {
	name   string
	http   *http.Client
	period time.Duration
	ttl    time.Duration
}

type APIResult struct {
	IP          string  `json:"ip"`
	CountryCode string  `json:"country_code"`
	Country     string  `json:"country_name"`
	City        string  `json:"city,omitempty"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

func NewGeolocationGeoIPProvider(http *http.Client) *GeolocationGeoIPProvider {
	return &GeolocationGeoIPProvider{
		name:   name,
		http:   http,
		period: 30 * time.Minute,
		ttl:    60 * time.Minute,
	}
}

func (p *GeolocationGeoIPProvider) Name() string {
	return p.name
}

// LookupStream emits the IP position on start and whenever it moved between two lookups.
func (p *GeolocationGeoIPProvider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	out := make(chan geobus.Result)
	go func() {
		defer close(out)
		state := geobus.GeolocationState{}

		for {
			coord, err := p.locate(ctx)
			if err == nil && state.HasChanged(coord) {
				state.Update(coord)
				select {
				case <-ctx.Done():
					return
				case out <- p.createResult(key, coord):
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(p.period):
			}
		}
	}()
	return out
}

func (p *GeolocationGeoIPProvider) createResult(key string, coord geobus.Coordinate) geobus.Result {
	return geobus.Result{
		Key:    key,
		Lat:    coord.Lat,
		Lon:    coord.Lon,
		Source: p.name,
		At:     time.Now(),
		TTL:    p.ttl,
	}
}

func (p *GeolocationGeoIPProvider) locate(ctx context.Context) (geobus.Coordinate, error) {
	result := new(APIResult)
	if _, err := p.http.GetWithTimeout(ctx, APIEndpoint, result, nil, nil, LookupTimeout); err != nil {
		return geobus.Coordinate{}, fmt.Errorf("failed to get geolocation data from API: %w", err)
	}

	// the API answers unknown addresses with a zero position
	coord := geobus.Coordinate{
		Lat: geobus.Truncate(result.Latitude, geobus.TruncPrecision),
		Lon: geobus.Truncate(result.Longitude, geobus.TruncPrecision),
	}
	if result.CountryCode == "" || !coord.Valid() {
		return geobus.Coordinate{}, ErrNoPosition
	}
	return coord, nil
}
