// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the delegation core.
type Metrics struct {
	// RPC metrics
	RPCCallLatency *prometheus.HistogramVec
	RPCCallErrors  *prometheus.CounterVec

	// Routing metrics
	TransactionsSent    *prometheus.CounterVec
	RoutedToRollup      prometheus.Counter
	ConfirmationLatency prometheus.Histogram
	ValidatorLatency    *prometheus.GaugeVec

	// Delegation lifecycle metrics
	DelegationOps    *prometheus.CounterVec
	DelegationErrors *prometheus.CounterVec
	TrackedAccounts  prometheus.Gauge

	// VRF / attestation metrics
	VrfRequests       prometheus.Counter
	AttestationChecks *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "obscura_core"
	}

	return &Metrics{
		// RPC metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_latency_seconds",
			Help:      "JSON-RPC call round-trip latency",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"endpoint", "method"}),
		RPCCallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_errors_total",
			Help:      "Total number of failed JSON-RPC calls",
		}, []string{"endpoint", "method"}),

		// Routing metrics
		TransactionsSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "routing",
			Name:      "transactions_sent_total",
			Help:      "Total number of transactions submitted by route",
		}, []string{"route"}),
		RoutedToRollup: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "routing",
			Name:      "routed_to_rollup_total",
			Help:      "Transactions heuristically classified as rollup-executed",
		}),
		ConfirmationLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "routing",
			Name:      "confirmation_latency_seconds",
			Help:      "Time from submission to confirmed signature",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		ValidatorLatency: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "routing",
			Name:      "validator_latency_ms",
			Help:      "Last measured validator health-check latency",
		}, []string{"validator", "region"}),

		// Delegation lifecycle metrics
		DelegationOps: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delegation",
			Name:      "ops_total",
			Help:      "Total number of delegation lifecycle operations",
		}, []string{"op"}),
		DelegationErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delegation",
			Name:      "errors_total",
			Help:      "Total number of failed delegation lifecycle operations",
		}, []string{"op"}),
		TrackedAccounts: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "delegation",
			Name:      "tracked_accounts",
			Help:      "Number of accounts with a tracked delegation status",
		}),

		// VRF / attestation metrics
		VrfRequests: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vrf",
			Name:      "requests_total",
			Help:      "Total number of randomness requests issued",
		}),
		AttestationChecks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "attestation",
			Name:      "checks_total",
			Help:      "Total number of TEE attestation checks by outcome",
		}, []string{"outcome"}),
	}
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
