package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(webhookEventsTotal) }

var webhookEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Inbound gateway webhook deliveries by event type and outcome.",
	},
	[]string{"event", "outcome"}, // outcome: applied|duplicate|unmatched|ignored|failed
)

func IncWebhookEvent(event, outcome string) {
	webhookEventsTotal.WithLabelValues(norm(event), norm(outcome)).Inc()
}
