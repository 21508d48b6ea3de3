// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geocodeearth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/text/language"

	"github.com/wneessen/waybar-locshare/internal/geobus"
	"github.com/wneessen/waybar-locshare/internal/geocode"
	client "github.com/wneessen/waybar-locshare/internal/http"
)

const (
	APIEndpoint = "https://api.geocode.earth/v1/reverse"
	APITimeout  = time.Second * 10
	name        = "geocode-earth"
)

type GeocodeEarth struct {
	apikey string
	http   *client.Client
	lang   language.Tag
}

type Response struct {
	Features []Feature `json:"features"`
	Type     string    `json:"type"`
}

type Feature struct {
	Geometry   Geometry   `json:"geometry"`
	Properties Properties `json:"properties"`
	Type       string     `json:"type"`
}

// Geometry is a GeoJSON point; coordinates are ordered lon, lat.
type Geometry struct {
	Coordinates []float64 `json:"coordinates"`
	Type        string    `json:"type"`
}

type Properties struct {
	DisplayName  string  `json:"label"`
	City         string  `json:"locality"`
	CityDistrict string  `json:"county"`
	Country      string  `json:"country"`
	CountryCode  string  `json:"country_code"`
	HouseNumber  string  `json:"housenumber"`
	Municipality string  `json:"neighbourhood"`
	Borough      string  `json:"borough"`
	Postcode     string  `json:"postalcode"`
	Road         string  `json:"street"`
	State        string  `json:"region"`
	StateCode    string  `json:"region_a"`
	Distance     float64 `json:"distance"`
}

func New(httpClient *client.Client, lang language.Tag, apikey string) *GeocodeEarth {
	return &GeocodeEarth{
		apikey: apikey,
		lang:   lang,
		http:   httpClient,
	}
}

func (g *GeocodeEarth) Name() string {
	return name
}

func (g *GeocodeEarth) Reverse(ctx context.Context, coords geobus.Coordinate) ([]geocode.Address, error) {
	var response Response

	query := url.Values{}
	query.Set("api_key", g.apikey)
	query.Set("point.lat", strconv.FormatFloat(coords.Lat, 'f', -1, 64))
	query.Set("point.lon", strconv.FormatFloat(coords.Lon, 'f', -1, 64))
	query.Set("lang", g.lang.String())

	code, err := g.http.GetWithTimeout(ctx, APIEndpoint, &response, query, nil, APITimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve address details from geocode.earth API: %w", err)
	}
	if code != http.StatusOK {
		return nil, fmt.Errorf("received non-positive response code from geocode.earth API: %d", code)
	}

	candidates := make([]geocode.Address, 0, len(response.Features))
	for _, feature := range response.Features {
		props := feature.Properties
		address := geocode.Address{
			FormattedAddress: props.DisplayName,
			Latitude:         coords.Lat,
			Longitude:        coords.Lon,
			Country:          props.Country,
			State:            props.State,
			Municipality:     props.Municipality,
			CityDistrict:     props.CityDistrict,
			Postcode:         props.Postcode,
			City:             props.City,
			Suburb:           props.Borough,
			Street:           props.Road,
			HouseNumber:      props.HouseNumber,
		}
		if len(feature.Geometry.Coordinates) == 2 {
			address.Longitude = feature.Geometry.Coordinates[0]
			address.Latitude = feature.Geometry.Coordinates[1]
		}
		candidates = append(candidates, address)
	}

	return candidates, nil
}
