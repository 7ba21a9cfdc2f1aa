// Botboard - Telegram Bot Analytics Dashboard API
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/botboard/botboard

// Package metrics exposes Prometheus instrumentation for the API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors the server updates. Construct with New,
// which registers everything on its own registry so tests can create
// instances freely.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RateLimitRejects prometheus.Counter
	CacheHits        prometheus.Gauge
	CacheMisses      prometheus.Gauge
	CacheSize        prometheus.Gauge
	PoolClients      prometheus.Gauge
}

// New creates and registers the collector set.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "botboard",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status.",
		}, []string{"method", "route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "botboard",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		RateLimitRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "botboard",
			Name:      "ratelimit_rejections_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
		CacheHits: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "botboard",
			Name:      "cache_hits",
			Help:      "Cumulative response cache hits.",
		}),
		CacheMisses: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "botboard",
			Name:      "cache_misses",
			Help:      "Cumulative response cache misses.",
		}),
		CacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "botboard",
			Name:      "cache_entries",
			Help:      "Live response cache entries.",
		}),
		PoolClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "botboard",
			Name:      "store_pool_clients",
			Help:      "Datastore clients currently pooled.",
		}),
	}

	m.registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RateLimitRejects,
		m.CacheHits,
		m.CacheMisses,
		m.CacheSize,
		m.PoolClients,
	)
	return m
}

// Handler serves the scrape endpoint for this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one completed request.
func (m *Metrics) ObserveRequest(method, route string, status int, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
