// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package metrics exposes Prometheus counters for the location pipeline. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "waybar_locshare"

	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultEmpty   = "empty"

	shutdownTimeout = 5 * time.Second
)

type Metrics struct {
	registry *prometheus.Registry

	regionsSettled  *prometheus.CounterVec
	regionsRejected prometheus.Counter
	geocodeRequests *prometheus.CounterVec
	geocodeDuration *prometheus.HistogramVec
	staleDiscarded  prometheus.Counter
	shares          *prometheus.CounterVec
	clipboardCopies *prometheus.CounterVec
	addressResolved prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		regionsSettled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "regions_settled_total",
			Help:      "Total map region settle events accepted by the pipeline",
		}, []string{"source"}),
		regionsRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "regions_rejected_total",
			Help:      "Total region settle events rejected as invalid",
		}),
		geocodeRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "geocode",
			Name:      "requests_total",
			Help:      "Total reverse geocoding requests by provider and result",
		}, []string{"provider", "result"}),
		geocodeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "geocode",
			Name:      "request_duration_seconds",
			Help:      "Reverse geocoding latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"provider"}),
		staleDiscarded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "geocode",
			Name:      "stale_responses_total",
			Help:      "Total geocoding responses discarded because a newer request was issued",
		}),
		shares: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "share",
			Name:      "requests_total",
			Help:      "Total share requests by result",
		}, []string{"result"}),
		clipboardCopies: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "clipboard",
			Name:      "copies_total",
			Help:      "Total clipboard copy requests by result",
		}, []string{"result"}),
		addressResolved: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "address_resolved",
			Help:      "Whether a resolved address is currently known (0 or 1)",
		}),
	}
}

func (m *Metrics) RegionSettled(source string) {
	if m == nil {
		return
	}
	m.regionsSettled.WithLabelValues(source).Inc()
}

func (m *Metrics) RegionRejected() {
	if m == nil {
		return
	}
	m.regionsRejected.Inc()
}

// GeocodeRequest records a finished reverse geocoding request.
func (m *Metrics) GeocodeRequest(provider, result string, took time.Duration) {
	if m == nil {
		return
	}
	m.geocodeRequests.WithLabelValues(provider, result).Inc()
	m.geocodeDuration.WithLabelValues(provider).Observe(took.Seconds())
}

func (m *Metrics) StaleDiscarded() {
	if m == nil {
		return
	}
	m.staleDiscarded.Inc()
}

func (m *Metrics) Share(result string) {
	if m == nil {
		return
	}
	m.shares.WithLabelValues(result).Inc()
}

func (m *Metrics) ClipboardCopy(result string) {
	if m == nil {
		return
	}
	m.clipboardCopies.WithLabelValues(result).Inc()
}

func (m *Metrics) AddressResolved(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.addressResolved.Set(1)
		return
	}
	m.addressResolved.Set(0)
}

// Handler returns the HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes the metrics on addr under /metrics until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		errs <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
