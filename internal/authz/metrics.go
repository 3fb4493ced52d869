// Gatehouse - HTTP Request Authorization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatehouse

// Prometheus metrics for the authorization engine: decision outcomes and
// latency, decision cache behavior, and snapshot reloads. Exposed at
// /metrics via promhttp.
package authz

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// decisionsTotal counts authorization decisions by outcome and the check
	// that produced them ("rules", "requirement", "default").
	decisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatehouse_authz_decisions_total",
			Help: "Total number of authorization decisions",
		},
		[]string{"decision", "source"},
	)

	// deniedTotal tracks denials by reason, for alerting.
	deniedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatehouse_authz_denied_total",
			Help: "Total number of authorization denials",
		},
		[]string{"reason"},
	)

	// decisionDuration tracks decision latency.
	decisionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "gatehouse_authz_decision_duration_seconds",
			Help: "Duration of authorization decisions in seconds",
			// Buckets sized for in-memory checks (microseconds to milliseconds).
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		},
		[]string{"cache_hit"},
	)

	// cacheHits counts decision cache hits.
	cacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gatehouse_authz_cache_hits_total",
			Help: "Total number of decision cache hits",
		},
	)

	// cacheMisses counts decision cache misses.
	cacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gatehouse_authz_cache_misses_total",
			Help: "Total number of decision cache misses",
		},
	)

	// cacheEvictions counts TTL evictions from the decision cache.
	cacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gatehouse_authz_cache_evictions_total",
			Help: "Total number of decision cache evictions (TTL expiry)",
		},
	)

	// cacheSize tracks the current decision cache entry count.
	cacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gatehouse_authz_cache_entries",
			Help: "Current number of entries in the decision cache",
		},
	)

	// snapshotReloads counts snapshot installs by outcome.
	snapshotReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatehouse_authz_snapshot_reloads_total",
			Help: "Total number of rule snapshot reload attempts",
		},
		[]string{"outcome"},
	)

	// snapshotRules tracks the rule count of the active snapshot.
	snapshotRules = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gatehouse_authz_snapshot_rules",
			Help: "Number of permission rules in the active snapshot",
		},
	)
)

// recordDecision updates the decision counters and latency histogram.
func recordDecision(d Decision, source string, duration time.Duration, cacheHit bool) {
	outcome := "deny"
	if d.Allowed {
		outcome = "allow"
	}
	decisionsTotal.WithLabelValues(outcome, source).Inc()
	if !d.Allowed {
		deniedTotal.WithLabelValues(string(d.Reason)).Inc()
	}

	hit := "false"
	if cacheHit {
		hit = "true"
	}
	decisionDuration.WithLabelValues(hit).Observe(duration.Seconds())
}
