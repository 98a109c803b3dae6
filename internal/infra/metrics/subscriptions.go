package metrics

import (
	"agroconecta-billing/internal/domain/model"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		subscriptionTransitionsTotal,
		invoicesConfirmedTotal,
		subscriptionsTotal,
	)
}

var (
	subscriptionTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_transitions_total",
			Help: "Subscription status changes by target status.",
		},
		[]string{"to"},
	)

	invoicesConfirmedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoices_confirmed_total",
			Help: "Invoices moved to CONFIRMADO, by source (webhook|admin|sync).",
		},
		[]string{"source"},
	)

	subscriptionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subscriptions_total",
			Help: "Current number of subscriptions by status.",
		},
		[]string{"status"},
	)
)

func IncSubscriptionTransition(to model.SubscriptionStatus) {
	subscriptionTransitionsTotal.WithLabelValues(norm(string(to))).Inc()
}

func IncInvoiceConfirmed(source string) {
	invoicesConfirmedTotal.WithLabelValues(norm(source)).Inc()
}

// SetSubscriptionsTotal publishes every known status, zero when absent from counts.
func SetSubscriptionsTotal(counts map[model.SubscriptionStatus]int) {
	for _, status := range model.AllSubscriptionStatuses {
		subscriptionsTotal.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}
