// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geolocation_file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wneessen/waybar-locshare/internal/geobus"
)

const (
	name = "geolocation_file"
)

var ErrNoCoordinates = errors.New("no valid coordinates found in geolocation file")

// position is a parsed geolocation file entry. The deltas are optional.
type position struct {
	coord              geobus.Coordinate
	latDelta, lonDelta float64
}

// GeolocationFileProvider polls a file holding a "lat,lon" or "lat,lon,latDelta,lonDelta" line
// and emits a region whenever the position in the file moved.
type GeolocationFileProvider struct {
	name     string
	path     string
	period   time.Duration
	ttl      time.Duration
	locateFn func() (position, error)
}

// NewGeolocationFileProvider initializes a GeolocationFileProvider with a file path and default update
// interval and TTL settings.
func NewGeolocationFileProvider(path string) *GeolocationFileProvider {
	provider := &GeolocationFileProvider{
		name:   name,
		path:   path,
		period: time.Minute * 2,
		ttl:    time.Hour * 1,
	}
	provider.locateFn = provider.readFile
	return provider
}

// Name returns the name of the GeolocationFileProvider instance.
func (p *GeolocationFileProvider) Name() string {
	return p.name
}

// LookupStream re-reads the file every period and emits a result on the first read and whenever
// the position changed significantly.
func (p *GeolocationFileProvider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	out := make(chan geobus.Result)
	go func() {
		defer close(out)
		state := geobus.GeolocationState{}
		firstRun := true

		for {
			if !firstRun {
				select {
				case <-ctx.Done():
					return
				case <-time.After(p.period):
				}
			}
			firstRun = false

			pos, err := p.locateFn()
			if err != nil {
				continue
			}

			if state.HasChanged(pos.coord) {
				state.Update(pos.coord)
				select {
				case <-ctx.Done():
					return
				case out <- p.createResult(key, pos):
				}
			}
		}
	}()
	return out
}

func (p *GeolocationFileProvider) createResult(key string, pos position) geobus.Result {
	return geobus.Result{
		Key:      key,
		Lat:      pos.coord.Lat,
		Lon:      pos.coord.Lon,
		LatDelta: pos.latDelta,
		LonDelta: pos.lonDelta,
		Source:   p.name,
		At:       time.Now(),
		TTL:      p.ttl,
	}
}

// readFile returns the first parseable line of the geolocation file. Lines starting with
// "#" are comments.
func (p *GeolocationFileProvider) readFile() (position, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return position{}, fmt.Errorf("failed to read geolocation file %q: %w", p.path, err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		pos, ok := parseLine(line)
		if !ok {
			continue
		}
		return pos, nil
	}
	return position{}, ErrNoCoordinates
}

func parseLine(line string) (position, bool) {
	fields := strings.Split(line, ",")
	if len(fields) != 2 && len(fields) != 4 {
		return position{}, false
	}
	values := make([]float64, len(fields))
	for i, field := range fields {
		val, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return position{}, false
		}
		values[i] = val
	}

	pos := position{coord: geobus.Coordinate{Lat: values[0], Lon: values[1]}}
	if !pos.coord.Valid() {
		return position{}, false
	}
	if len(values) == 4 {
		if values[2] < 0 || values[3] < 0 {
			return position{}, false
		}
		pos.latDelta, pos.lonDelta = values[2], values[3]
	}
	return pos, true
}
