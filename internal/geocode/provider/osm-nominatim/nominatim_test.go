// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package nominatim

import (
	"errors"
	"log/slog"
	stdhttp "net/http"
	"os"
	"strings"
	"testing"

	"golang.org/x/text/language"

	"github.com/wneessen/waybar-locshare/internal/geobus"
	"github.com/wneessen/waybar-locshare/internal/geocode"
	"github.com/wneessen/waybar-locshare/internal/http"
	"github.com/wneessen/waybar-locshare/internal/logger"
	"github.com/wneessen/waybar-locshare/internal/testhelper"
)

const (
	cityExpected      = "Quartier 205, 67, Friedrichstraße, Friedrichstadt, Mitte, Berlin, 10117, Deutschland"
	cityFile          = "../../../../testdata/nominatim_berlin.json"
	cityFileBrokenLat = "../../../../testdata/nominatim_berlin_brokenlat.json"
	cityFileBrokenLon = "../../../../testdata/nominatim_berlin_brokenlon.json"
	seaFile           = "../../../../testdata/nominatim_sea.json"

	villageExpected = "Marshfield"
	villageFile     = "../../../../testdata/nominatim_marshfield.json"

	townExpected = "Otley"
	townFile     = "../../../../testdata/nominatim_otley.json"
)

var (
	cityCoords    = geobus.Coordinate{Lat: 52.5129, Lon: 13.3910}
	villageCoords = geobus.Coordinate{Lat: 51.46292, Lon: -2.31850}
	townCoords    = geobus.Coordinate{Lat: 53.90712, Lon: -1.69404}
	seaCoords     = geobus.Coordinate{Lat: 0, Lon: -30}
)

func TestNew(t *testing.T) {
	t.Run("creating a new provider succeeds", func(t *testing.T) {
		coder := testCoder(t)
		if coder == nil {
			t.Fatal("expected a non-nil geocoder")
		}
	})
	t.Run("provider name is correct", func(t *testing.T) {
		coder := testCoder(t)
		if coder.Name() != name {
			t.Errorf("expected provider name to be %q, got %q", name, coder.Name())
		}
	})
}

func TestNominatim_Reverse(t *testing.T) {
	t.Run("reverse geocoding succeeds", func(t *testing.T) {
		var query string
		rtFn := func(req *stdhttp.Request) (*stdhttp.Response, error) {
			query = req.URL.RawQuery
			return fileResponse(t, cityFile), nil
		}

		coder := testCoderWithRoundtripFunc(t, rtFn)
		candidates, err := coder.Reverse(t.Context(), cityCoords)
		if err != nil {
			t.Fatal(err)
		}
		addr, err := geocode.First(candidates)
		if err != nil {
			t.Fatalf("expected a candidate, got: %s", err)
		}
		if addr.FormattedAddress != cityExpected {
			t.Errorf("expected address to be %q, got %q", cityExpected, addr.FormattedAddress)
		}
		if addr.Latitude != 52.5128866 || addr.Longitude != 13.3903506 {
			t.Errorf("unexpected candidate position: %f,%f", addr.Latitude, addr.Longitude)
		}
		if addr.Street != "Friedrichstraße" || addr.HouseNumber != "67" {
			t.Errorf("unexpected street: %q %q", addr.Street, addr.HouseNumber)
		}
		for _, want := range []string{"format=jsonv2", "lat=52.5129", "lon=13.391", "accept-language=en"} {
			if !strings.Contains(query, want) {
				t.Errorf("expected query %q to contain %q", query, want)
			}
		}
	})
	t.Run("reverse geocoding with town set should return the correct city", func(t *testing.T) {
		rtFn := func(req *stdhttp.Request) (*stdhttp.Response, error) {
			return fileResponse(t, townFile), nil
		}

		coder := testCoderWithRoundtripFunc(t, rtFn)
		candidates, err := coder.Reverse(t.Context(), townCoords)
		if err != nil {
			t.Fatal(err)
		}
		if len(candidates) != 1 {
			t.Fatalf("expected 1 candidate, got %d", len(candidates))
		}
		if !strings.EqualFold(candidates[0].City, townExpected) {
			t.Errorf("expected city to be %q, got %q", townExpected, candidates[0].City)
		}
	})
	t.Run("reverse geocoding with village set should return the correct city", func(t *testing.T) {
		rtFn := func(req *stdhttp.Request) (*stdhttp.Response, error) {
			return fileResponse(t, villageFile), nil
		}

		coder := testCoderWithRoundtripFunc(t, rtFn)
		candidates, err := coder.Reverse(t.Context(), villageCoords)
		if err != nil {
			t.Fatal(err)
		}
		if len(candidates) != 1 {
			t.Fatalf("expected 1 candidate, got %d", len(candidates))
		}
		if !strings.EqualFold(candidates[0].City, villageExpected) {
			t.Errorf("expected city to be %q, got %q", villageExpected, candidates[0].City)
		}
	})
	t.Run("unresolvable coordinates return no candidates", func(t *testing.T) {
		rtFn := func(req *stdhttp.Request) (*stdhttp.Response, error) {
			return fileResponse(t, seaFile), nil
		}

		coder := testCoderWithRoundtripFunc(t, rtFn)
		candidates, err := coder.Reverse(t.Context(), seaCoords)
		if err != nil {
			t.Fatal(err)
		}
		if len(candidates) != 0 {
			t.Errorf("expected no candidates, got %d", len(candidates))
		}
	})
	t.Run("reverse geocoding fails", func(t *testing.T) {
		rtFn := func(req *stdhttp.Request) (*stdhttp.Response, error) {
			return nil, errors.New("intentionally failing")
		}

		coder := testCoderWithRoundtripFunc(t, rtFn)
		_, err := coder.Reverse(t.Context(), cityCoords)
		if err == nil {
			t.Fatal("expected API request to fail")
		}
	})
	t.Run("reverse geocoding fails on NaN latitude response", func(t *testing.T) {
		rtFn := func(req *stdhttp.Request) (*stdhttp.Response, error) {
			return fileResponse(t, cityFileBrokenLat), nil
		}

		coder := testCoderWithRoundtripFunc(t, rtFn)
		_, err := coder.Reverse(t.Context(), cityCoords)
		if err == nil {
			t.Fatal("expected API request to fail")
		}
		if !strings.Contains(err.Error(), "failed to parse latitude") {
			t.Errorf("expected error to contain 'failed to parse latitude', got %s", err)
		}
	})
	t.Run("reverse geocoding fails on NaN longitude response", func(t *testing.T) {
		rtFn := func(req *stdhttp.Request) (*stdhttp.Response, error) {
			return fileResponse(t, cityFileBrokenLon), nil
		}

		coder := testCoderWithRoundtripFunc(t, rtFn)
		_, err := coder.Reverse(t.Context(), cityCoords)
		if err == nil {
			t.Fatal("expected API request to fail")
		}
		if !strings.Contains(err.Error(), "failed to parse longitude") {
			t.Errorf("expected error to contain 'failed to parse longitude', got %s", err)
		}
	})
}

func TestNominatim_Reverse_integration(t *testing.T) {
	testhelper.PerformIntegrationTests(t)
	t.Run("reverse geocoding succeeds", func(t *testing.T) {
		coder := testCoder(t)
		candidates, err := coder.Reverse(t.Context(), cityCoords)
		if err != nil {
			t.Fatal(err)
		}
		addr, err := geocode.First(candidates)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(addr.FormattedAddress, "Berlin") {
			t.Errorf("expected address to be in Berlin, got %q", addr.FormattedAddress)
		}
	})
}

func fileResponse(t *testing.T, file string) *stdhttp.Response {
	t.Helper()
	data, err := os.Open(file)
	if err != nil {
		t.Fatalf("failed to open JSON response file: %s", err)
	}
	return &stdhttp.Response{
		StatusCode: 200,
		Body:       data,
		Header:     make(stdhttp.Header),
	}
}

func testCoder(_ *testing.T) geocode.Geocoder {
	testHttpClient := http.New(logger.New(slog.LevelDebug))
	return New(testHttpClient, language.English)
}

func testCoderWithRoundtripFunc(_ *testing.T, fn func(req *stdhttp.Request) (*stdhttp.Response, error)) geocode.Geocoder {
	testHttpClient := http.New(logger.New(slog.LevelDebug))
	testHttpClient.Transport = testhelper.MockRoundTripper{Fn: fn}
	return New(testHttpClient, language.English)
}
