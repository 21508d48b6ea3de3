// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wneessen/waybar-locshare/internal/logger"
)

// Orchestrator runs a set of providers and publishes their results through a GeoBus.
type Orchestrator struct {
	Bus       *GeoBus
	Providers []Provider
}

// Track runs all providers for the given key concurrently and returns once the context is
// cancelled and all providers have stopped.
func (o *Orchestrator) Track(ctx context.Context, key string) {
	var wg sync.WaitGroup
	for _, p := range o.Providers {
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()
			o.trackProvider(ctx, p, key)
		}(p)
	}
	<-ctx.Done()
	wg.Wait()
}

// trackProvider keeps a provider's stream alive, re-opening it with exponential backoff
// whenever the provider closes it.
func (o *Orchestrator) trackProvider(ctx context.Context, p Provider, key string) {
	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		lookupChan, err := o.safeLookup(ctx, p, key)
		if err != nil {
			o.Bus.logger.Error("region provider failed", logger.Err(err), slog.String("provider", p.Name()))
		}
		if lookupChan != nil {
			if o.consume(ctx, lookupChan) {
				backoff = initialBackoff
			}
		}
		if !sleepOrDone(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

// consume publishes everything from ch until it is closed or the context is done. It reports
// whether at least one result was received.
func (o *Orchestrator) consume(ctx context.Context, ch <-chan Result) bool {
	received := false
	for {
		select {
		case <-ctx.Done():
			return received
		case r, ok := <-ch:
			if !ok {
				return received
			}
			o.Bus.Publish(r)
			received = true
		}
	}
}

// safeLookup invokes LookupStream on a Provider and recovers from potential panics.
func (o *Orchestrator) safeLookup(ctx context.Context, provider Provider, key string) (ch <-chan Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			ch, err = nil, fmt.Errorf("provider panicked: %v", r)
		}
	}()
	return provider.LookupStream(ctx, key), nil
}
