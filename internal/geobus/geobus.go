// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/wneessen/waybar-locshare/internal/logger"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
	TruncPrecision = 6
)

var ErrNilLogger = errors.New("logger is required")

// Provider defines an interface for region event sources. A provider streams the regions
// it observes for the given key until the context is cancelled or the source is exhausted.
type Provider interface {
	Name() string
	LookupStream(ctx context.Context, key string) <-chan Result
}

// GeoBus fans out settled regions published by providers to all subscribers.
type GeoBus struct {
	mu          sync.RWMutex
	logger      *logger.Logger
	last        map[string]Result
	subscribers map[string]map[chan Result]struct{}
}

// Result represents a settled region as reported by a provider. LatDelta and LonDelta are
// zero for providers that only know a position, not a viewport span.
type Result struct {
	Key      string
	Lat, Lon float64
	LatDelta float64
	LonDelta float64
	Source   string
	At       time.Time
	TTL      time.Duration
}

// Coordinate returns the center of the result.
func (r Result) Coordinate() Coordinate {
	return Coordinate{Lat: r.Lat, Lon: r.Lon}
}

// HasSpan reports whether the result carries a viewport span.
func (r Result) HasSpan() bool {
	return r.LatDelta > 0 && r.LonDelta > 0
}

// IsExpired checks if the Result has exceeded its time-to-live (TTL) based on the current time and the timestamp.
func (r Result) IsExpired() bool {
	return r.TTL > 0 && time.Since(r.At) > r.TTL
}

// New initializes and returns a new GeoBus.
func New(log *logger.Logger) (*GeoBus, error) {
	if log == nil {
		return nil, ErrNilLogger
	}
	return &GeoBus{
		logger:      log,
		last:        make(map[string]Result),
		subscribers: make(map[string]map[chan Result]struct{}),
	}, nil
}

func (b *GeoBus) NewOrchestrator(provider []Provider) *Orchestrator {
	return &Orchestrator{
		Bus:       b,
		Providers: provider,
	}
}

// Subscribe adds a subscriber for results associated with the given key and buffer size, returning a
// result channel and an unsubscribe function. A fresh last result is replayed to the new subscriber.
func (b *GeoBus) Subscribe(key string, size int) (<-chan Result, func()) {
	resultChan := make(chan Result, size)
	b.mu.Lock()
	if _, ok := b.subscribers[key]; !ok {
		b.subscribers[key] = make(map[chan Result]struct{})
	}

	b.subscribers[key][resultChan] = struct{}{}
	if last, ok := b.last[key]; ok && !last.IsExpired() && size > 0 {
		resultChan <- last
	}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			if subs, ok := b.subscribers[key]; ok {
				delete(subs, resultChan)
				if len(subs) == 0 {
					delete(b.subscribers, key)
				}
			}
			b.mu.Unlock()
			close(resultChan)
		})
	}

	return resultChan, unsub
}

// Publish broadcasts r to all subscribers of its key. Every settle is an event of its own, so
// unlike a position tracker the bus does not suppress repeated or nearby results. Results with
// invalid coordinates are dropped. A subscriber that falls behind loses its oldest queued
// result, never the newest one, so the last settled region always arrives.
func (b *GeoBus) Publish(r Result) {
	if !r.Coordinate().Valid() || math.IsNaN(r.LatDelta) || math.IsNaN(r.LonDelta) {
		b.logger.Debug("dropping invalid region result", "source", r.Source)
		return
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.last[r.Key] = r
	for ch := range b.subscribers[r.Key] {
		select {
		case ch <- r:
			continue
		default:
		}

		select {
		case dropped := <-ch:
			b.logger.Warn("subscriber buffer full, dropping oldest region result",
				"source", dropped.Source)
		default:
		}
		select {
		case ch <- r:
		default:
			// unbuffered subscriber without a waiting reader
			b.logger.Warn("subscriber buffer full, dropping region result", "source", r.Source)
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d *= 2; d > maxBackoff {
		return maxBackoff
	}
	return d
}

// Truncate cuts x down to the given number of decimal places.
func Truncate(x float64, precision int) float64 {
	p := math.Pow(10, float64(precision))
	return math.Trunc(x*p) / p
}
