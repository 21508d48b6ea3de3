// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package gpsd

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/stratoberry/go-gpsd"

	"github.com/wneessen/waybar-locshare/internal/geobus"
	"github.com/wneessen/waybar-locshare/internal/logger"
)

const (
	name        = "gpsd"
	DefaultHost = "localhost"
	DefaultPort = "2947"
)

// GeolocationGPSDProvider follows the TPV reports of a gpsd daemon and emits the device
// position as region center.
type GeolocationGPSDProvider struct {
	name   string
	addr   string
	logger *logger.Logger
	period time.Duration
	ttl    time.Duration
}

// NewGeolocationGPSDProvider returns a provider for the gpsd daemon at host:port.
func NewGeolocationGPSDProvider(host, port string, log *logger.Logger) *GeolocationGPSDProvider {
	if host == "" {
		host = DefaultHost
	}
	if port == "" {
		port = DefaultPort
	}
	return &GeolocationGPSDProvider{
		name:   name,
		addr:   net.JoinHostPort(host, port),
		logger: log,
		period: time.Second * 30,
		ttl:    time.Minute * 2,
	}
}

func (p *GeolocationGPSDProvider) Name() string {
	return p.name
}

func (p *GeolocationGPSDProvider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	out := make(chan geobus.Result)

	go func() {
		// The TPV filter runs on the gpsd session goroutine, which we can't stop. The
		// closed flag keeps it from sending on the closed channel.
		var mu sync.Mutex
		closed := false
		defer func() {
			mu.Lock()
			closed = true
			close(out)
			mu.Unlock()
		}()
		state := geobus.GeolocationState{}

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			session, err := gpsd.Dial(p.addr)
			if err != nil {
				p.logger.Debug("failed to connect to gpsd", slog.String("addr", p.addr), logger.Err(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(p.period):
					continue
				}
			}

			session.AddFilter("TPV", func(r interface{}) {
				tpv, ok := r.(*gpsd.TPVReport)
				if !ok {
					return
				}
				coord, ok := coordinateFromTPV(tpv)
				if !ok {
					return
				}

				mu.Lock()
				defer mu.Unlock()
				if closed || !state.HasChanged(coord) {
					return
				}
				state.Update(coord)

				select {
				case <-ctx.Done():
				case out <- p.createResult(key, coord):
				}
			})

			// Watch returns a channel that is closed when the gpsd connection ends
			done := session.Watch()
			select {
			case <-ctx.Done():
				return
			case <-done:
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

// coordinateFromTPV converts a TPV report with at least a 2D fix into a coordinate.
func coordinateFromTPV(tpv *gpsd.TPVReport) (geobus.Coordinate, bool) {
	if tpv == nil || tpv.Mode < gpsd.Mode2D {
		return geobus.Coordinate{}, false
	}
	coord := geobus.Coordinate{
		Lat: geobus.Truncate(tpv.Lat, geobus.TruncPrecision),
		Lon: geobus.Truncate(tpv.Lon, geobus.TruncPrecision),
	}
	return coord, coord.Valid()
}

func (p *GeolocationGPSDProvider) createResult(key string, coord geobus.Coordinate) geobus.Result {
	return geobus.Result{
		Key:    key,
		Lat:    coord.Lat,
		Lon:    coord.Lon,
		Source: p.name,
		At:     time.Now(),
		TTL:    p.ttl,
	}
}
