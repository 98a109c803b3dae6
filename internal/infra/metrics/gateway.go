package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		gatewayRequestsTotal,
		gatewayRequestDuration,
	)
}

var (
	// outcome: ok|rejected|unavailable|timeout
	gatewayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Outbound payment gateway calls by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	gatewayRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Latency of outbound payment gateway calls.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"op"},
	)
)

func ObserveGatewayCall(op, outcome string, elapsed time.Duration) {
	gatewayRequestsTotal.WithLabelValues(norm(op), norm(outcome)).Inc()
	gatewayRequestDuration.WithLabelValues(norm(op)).Observe(elapsed.Seconds())
}
