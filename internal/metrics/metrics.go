// Package metrics exposes Prometheus collectors for the execution core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrdersPlaced counts placement attempts by outcome
	// (submitted, rejected, failed, risk_blocked, invalid, no_venue).
	OrdersPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "execution_core",
		Name:      "orders_placed_total",
		Help:      "Order placement attempts by outcome.",
	}, []string{"outcome"})

	OrdersCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "execution_core",
		Name:      "orders_cancelled_total",
		Help:      "Orders cancelled on client request.",
	})

	RiskViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "execution_core",
		Name:      "risk_violations_total",
		Help:      "Risk limit violations by kind and severity.",
	}, []string{"kind", "severity"})

	SubmissionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "execution_core",
		Name:      "venue_submission_duration_seconds",
		Help:      "Wall time of venue order submission including retries.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	VenueLatency = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "execution_core",
		Name:      "venue_observed_latency_ms",
		Help:      "Smoothed round-trip latency per venue.",
	}, []string{"venue_id"})

	VenueUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "execution_core",
		Name:      "venue_up",
		Help:      "1 when the venue is connected, 0 otherwise.",
	}, []string{"venue_id"})

	ActiveOrders = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "execution_core",
		Name:      "active_orders",
		Help:      "Orders currently working at a venue.",
	})
)
