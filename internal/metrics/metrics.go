// Gatehouse - HTTP Request Authorization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatehouse

// Package metrics exposes Prometheus instrumentation for the HTTP surface.
// Decision-engine metrics live with the engine; this package covers the
// transport: request counts, latency, and in-flight load.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatehouse_http_requests_total",
			Help: "HTTP requests by method and status code.",
		},
		[]string{"method", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gatehouse_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method"},
	)

	requestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gatehouse_http_requests_in_flight",
			Help: "HTTP requests currently being served.",
		},
	)

	authFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatehouse_auth_failures_total",
			Help: "Authentication failures by mechanism.",
		},
		[]string{"mechanism"},
	)
)

// RecordAuthFailure counts a failed authentication attempt.
func RecordAuthFailure(mechanism string) {
	authFailuresTotal.WithLabelValues(mechanism).Inc()
}

// Instrument wraps a handler with request count, latency, and in-flight
// instrumentation. Paths are deliberately not a label: the guarded
// catch-all makes path cardinality unbounded.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestsInFlight.Inc()
		defer requestsInFlight.Dec()

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		requestsTotal.WithLabelValues(r.Method, strconv.Itoa(sw.status)).Inc()
		requestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
