// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	// Strategy lifecycle
	StrategiesCreated prometheus.Counter
	DeltaCalculations prometheus.Counter
	ExecutionsTotal   prometheus.Counter

	// Hook metrics
	HookInvocations *prometheus.CounterVec // label: hook (pre_swap | post_swap)

	// Guard metrics
	ExecutionRejections *prometheus.CounterVec // label: reason (lock | cooldown | mev | not_ready)

	// Coprocessor metrics
	CoprocessorOps     *prometheus.CounterVec // label: op
	CoprocessorLatency *prometheus.HistogramVec

	// Feed metrics
	FeedMessages   prometheus.Counter
	FeedReconnects prometheus.Counter
	FeedErrors     prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "confidential_rebalancer"
	}

	return &Metrics{
		StrategiesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "strategies_created_total",
			Help:      "Total number of strategies created",
		}),
		DeltaCalculations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "delta_calculations_total",
			Help:      "Total number of trade-delta calculation passes",
		}),
		ExecutionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "executions_total",
			Help:      "Total number of completed rebalancing executions",
		}),
		HookInvocations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "hook_invocations_total",
			Help:      "Total number of swap pipeline hook invocations",
		}, []string{"hook"}),
		ExecutionRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "execution_rejections_total",
			Help:      "Total number of rejected execution attempts by reason",
		}, []string{"reason"}),
		CoprocessorOps: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coprocessor",
			Name:      "operations_total",
			Help:      "Total number of confidential arithmetic operations",
		}, []string{"op"}),
		CoprocessorLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "coprocessor",
			Name:      "operation_duration_seconds",
			Help:      "Latency of confidential arithmetic operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		FeedMessages: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "messages_total",
			Help:      "Total number of swap notifications received",
		}),
		FeedReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "reconnects_total",
			Help:      "Total number of feed reconnect attempts",
		}),
		FeedErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "errors_total",
			Help:      "Total number of feed processing errors",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
