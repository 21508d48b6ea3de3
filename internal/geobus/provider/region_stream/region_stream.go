// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package region_stream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/wneessen/waybar-locshare/internal/geobus"
	"github.com/wneessen/waybar-locshare/internal/logger"
)

const (
	name = "region_stream"

	// maxLineSize caps a single region event line.
	maxLineSize = 64 * 1024
)

var ErrInvalidEvent = errors.New("invalid region event")

// Event is a single region-settle event as emitted by a map surface, one JSON object per line.
type Event struct {
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	LatitudeDelta  float64  `json:"latitudeDelta"`
	LongitudeDelta float64  `json:"longitudeDelta"`
}

// RegionStreamProvider reads region-settle events from a reader, typically stdin. The reader
// is consumed by a single goroutine shared by all LookupStream calls, so a restarted stream
// continues where the previous one stopped. After EOF the provider idles until the context is
// done.
//
// A blocking Read can't be interrupted portably, so the reader goroutine lives until the
// reader returns, which for stdin is when waybar closes the pipe on exit.
type RegionStreamProvider struct {
	name   string
	logger *logger.Logger

	scanner *bufio.Scanner
	start   sync.Once
	lines   chan string
}

// NewRegionStreamProvider returns a provider that reads events from r.
func NewRegionStreamProvider(r io.Reader, log *logger.Logger) *RegionStreamProvider {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	return &RegionStreamProvider{
		name:    name,
		logger:  log,
		scanner: scanner,
		lines:   make(chan string),
	}
}

func (p *RegionStreamProvider) Name() string {
	return p.name
}

// LookupStream emits one result per valid event line. Malformed lines are logged and skipped.
func (p *RegionStreamProvider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	out := make(chan geobus.Result)
	p.start.Do(func() { go p.readLines() })

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case line, ok := <-p.lines:
				if !ok {
					<-ctx.Done()
					return
				}
				event, err := ParseEvent(line)
				if err != nil {
					p.logger.Warn("skipping malformed region event", logger.Err(err),
						slog.String("line", line))
					continue
				}
				select {
				case <-ctx.Done():
					return
				case out <- p.createResult(key, event):
				}
			}
		}
	}()
	return out
}

// readLines feeds non-empty lines into the provider until the reader is exhausted. A line read
// while no stream is running waits for the next one.
func (p *RegionStreamProvider) readLines() {
	defer close(p.lines)
	for p.scanner.Scan() {
		line := strings.TrimSpace(p.scanner.Text())
		if line == "" {
			continue
		}
		p.lines <- line
	}
	if err := p.scanner.Err(); err != nil {
		p.logger.Error("failed to read region events", logger.Err(err))
	}
}

// ParseEvent parses and validates a single JSON region event.
func ParseEvent(line string) (Event, error) {
	var event Event
	if err := json.Unmarshal([]byte(line), &event); err != nil {
		return event, errors.Join(ErrInvalidEvent, err)
	}
	if event.Latitude == nil || event.Longitude == nil {
		return event, errors.Join(ErrInvalidEvent, errors.New("latitude and longitude are required"))
	}
	coord := geobus.Coordinate{Lat: *event.Latitude, Lon: *event.Longitude}
	if !coord.Valid() {
		return event, errors.Join(ErrInvalidEvent, errors.New("coordinates out of range"))
	}
	if event.LatitudeDelta < 0 || event.LongitudeDelta < 0 {
		return event, errors.Join(ErrInvalidEvent, errors.New("deltas must not be negative"))
	}
	return event, nil
}

func (p *RegionStreamProvider) createResult(key string, event Event) geobus.Result {
	return geobus.Result{
		Key:      key,
		Lat:      *event.Latitude,
		Lon:      *event.Longitude,
		LatDelta: event.LatitudeDelta,
		LonDelta: event.LongitudeDelta,
		Source:   p.name,
		At:       time.Now(),
	}
}
