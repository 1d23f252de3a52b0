// Package observability exposes Prometheus metrics for the tracker service.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	transitionsAppliedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sitetrack",
		Subsystem: "lifecycle",
		Name:      "transitions_applied_total",
		Help:      "Number of successfully applied status transitions by action.",
	}, []string{"action"})

	transitionsRejectedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sitetrack",
		Subsystem: "lifecycle",
		Name:      "transitions_rejected_total",
		Help:      "Number of rejected transitions grouped by rejection reason.",
	}, []string{"reason"})

	lastTransitionGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sitetrack",
		Subsystem: "lifecycle",
		Name:      "last_transition_timestamp_seconds",
		Help:      "Unix timestamp of the most recent applied transition.",
	})

	storeConflictCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sitetrack",
		Subsystem: "store",
		Name:      "write_conflicts_total",
		Help:      "Number of writes rejected by the remote store for a stale version token.",
	})

	cacheLookupCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sitetrack",
		Subsystem: "store",
		Name:      "cache_lookups_total",
		Help:      "Read-cache lookups grouped by outcome.",
	}, []string{"outcome"})

	locationChecksCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sitetrack",
		Subsystem: "tracker",
		Name:      "location_checks_total",
		Help:      "Number of periodic location checks written to the store.",
	})
)

func init() {
	prometheus.MustRegister(
		transitionsAppliedCounter,
		transitionsRejectedCounter,
		lastTransitionGauge,
		storeConflictCounter,
		cacheLookupCounter,
		locationChecksCounter,
	)
}

// RecordTransitionApplied counts an applied transition and moves the
// last-transition watermark.
func RecordTransitionApplied(action string, ts time.Time) {
	transitionsAppliedCounter.WithLabelValues(action).Inc()
	if !ts.IsZero() {
		lastTransitionGauge.Set(float64(ts.Unix()))
	}
}

// RecordTransitionRejected counts a rejected transition by reason.
func RecordTransitionRejected(reason string) {
	transitionsRejectedCounter.WithLabelValues(reason).Inc()
}

// RecordStoreConflict counts an optimistic-concurrency collision.
func RecordStoreConflict() {
	storeConflictCounter.Inc()
}

// RecordCacheLookup counts a read-cache hit or miss.
func RecordCacheLookup(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	cacheLookupCounter.WithLabelValues(outcome).Inc()
}

// RecordLocationCheck counts a periodic location check write.
func RecordLocationCheck() {
	locationChecksCounter.Inc()
}
