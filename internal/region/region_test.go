// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package region

import (
	"errors"
	"math"
	"math/rand/v2"
	"regexp"
	"strconv"
	"testing"

	"github.com/wneessen/waybar-locshare/internal/geobus"
)

var shareURLPattern = regexp.MustCompile(`^https://www\.google\.com/maps/@(-?\d+(?:\.\d+)?),(-?\d+(?:\.\d+)?),15z\?entry=ttu$`)

func TestDefault(t *testing.T) {
	reg := Default()
	if reg.Latitude != -23.563987 || reg.Longitude != -46.653254 {
		t.Errorf("unexpected default center: %f,%f", reg.Latitude, reg.Longitude)
	}
	if reg.LatitudeDelta != 0.0922 || reg.LongitudeDelta != 0.0421 {
		t.Errorf("unexpected default deltas: %f,%f", reg.LatitudeDelta, reg.LongitudeDelta)
	}
	if err := reg.Validate(); err != nil {
		t.Errorf("expected default region to be valid: %s", err)
	}
}

func TestRegion_ShareURL(t *testing.T) {
	t.Run("known coordinates are formatted exactly", func(t *testing.T) {
		tests := []struct {
			name string
			reg  Region
			want string
		}{
			{"simple", Region{Latitude: -23.5, Longitude: -46.6}, "https://www.google.com/maps/@-23.5,-46.6,15z?entry=ttu"},
			{"default", Default(), "https://www.google.com/maps/@-23.563987,-46.653254,15z?entry=ttu"},
			{"integers", Region{Latitude: 10, Longitude: -20}, "https://www.google.com/maps/@10,-20,15z?entry=ttu"},
			{"origin", Region{}, "https://www.google.com/maps/@0,0,15z?entry=ttu"},
			{"full precision", Region{Latitude: 52.51290123456, Longitude: 13.391}, "https://www.google.com/maps/@52.51290123456,13.391,15z?entry=ttu"},
			{"tiny values", Region{Latitude: 0.0000001, Longitude: -0.0000001}, "https://www.google.com/maps/@0.0000001,-0.0000001,15z?entry=ttu"},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				if got := tc.reg.ShareURL(); got != tc.want {
					t.Errorf("expected share URL to be %q, got %q", tc.want, got)
				}
			})
		}
	})
	t.Run("random coordinates round-trip without rounding", func(t *testing.T) {
		rnd := rand.New(rand.NewPCG(1, 2))
		for i := 0; i < 1000; i++ {
			reg := Region{Latitude: rnd.Float64()*180 - 90, Longitude: rnd.Float64()*360 - 180}
			got := reg.ShareURL()
			match := shareURLPattern.FindStringSubmatch(got)
			if match == nil {
				t.Fatalf("share URL %q does not match the template", got)
			}
			lat, err := strconv.ParseFloat(match[1], 64)
			if err != nil {
				t.Fatalf("failed to parse latitude: %s", err)
			}
			lon, err := strconv.ParseFloat(match[2], 64)
			if err != nil {
				t.Fatalf("failed to parse longitude: %s", err)
			}
			if lat != reg.Latitude || lon != reg.Longitude {
				t.Fatalf("expected %v,%v to round-trip, got %v,%v", reg.Latitude, reg.Longitude, lat, lon)
			}
		}
	})
}

func TestRegion_Validate(t *testing.T) {
	tests := []struct {
		name    string
		reg     Region
		wantErr bool
	}{
		{"default", Default(), false},
		{"zero span", Region{Latitude: 1, Longitude: 1}, false},
		{"extreme corner", Region{Latitude: -90, Longitude: 180}, false},
		{"latitude too big", Region{Latitude: 90.1}, true},
		{"longitude too small", Region{Longitude: -180.1}, true},
		{"NaN latitude", Region{Latitude: math.NaN()}, true},
		{"negative delta", Region{LatitudeDelta: -0.1}, true},
		{"infinite delta", Region{LongitudeDelta: math.Inf(1)}, true},
		{"NaN delta", Region{LongitudeDelta: math.NaN()}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.reg.Validate()
			if tc.wantErr && !errors.Is(err, ErrInvalidRegion) {
				t.Errorf("expected error to be %s, got %v", ErrInvalidRegion, err)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %s", err)
			}
		})
	}
}

func TestRegion_Bounds(t *testing.T) {
	reg := Region{Latitude: 10, Longitude: 20, LatitudeDelta: 2, LongitudeDelta: 4}
	bounds := reg.Bounds()
	if math.Abs(bounds.Lo().Lat.Degrees()-9) > 1e-9 || math.Abs(bounds.Hi().Lat.Degrees()-11) > 1e-9 {
		t.Errorf("unexpected latitude bounds: %s", bounds)
	}
	if math.Abs(bounds.Lo().Lng.Degrees()-18) > 1e-9 || math.Abs(bounds.Hi().Lng.Degrees()-22) > 1e-9 {
		t.Errorf("unexpected longitude bounds: %s", bounds)
	}
}

func TestFromResult(t *testing.T) {
	current := Default()
	t.Run("results with span replace the deltas", func(t *testing.T) {
		reg := FromResult(geobus.Result{Lat: 1, Lon: 2, LatDelta: 0.5, LonDelta: 0.25}, current)
		want := Region{Latitude: 1, Longitude: 2, LatitudeDelta: 0.5, LongitudeDelta: 0.25}
		if reg != want {
			t.Errorf("expected %+v, got %+v", want, reg)
		}
	})
	t.Run("results without span keep the current deltas", func(t *testing.T) {
		reg := FromResult(geobus.Result{Lat: 1, Lon: 2}, current)
		if reg.LatitudeDelta != current.LatitudeDelta || reg.LongitudeDelta != current.LongitudeDelta {
			t.Errorf("expected deltas to be kept, got %+v", reg)
		}
	})
}
