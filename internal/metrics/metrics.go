package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for order flow, decisions and broadcast delivery.
var (
	OrdersCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Total number of orders created",
		},
	)

	OrderTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Committed order state transitions by target state",
		},
		[]string{"to"},
	)

	DecisionsCommittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "decisions_committed_total",
			Help: "Owner decisions that won the compare-and-transition",
		},
	)

	DecisionsSupersededTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "decisions_superseded_total",
			Help: "Owner decisions rejected because another decision committed first",
		},
	)

	BroadcastSendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_sends_total",
			Help: "Broadcast send outcomes by terminal status",
		},
		[]string{"status"},
	)

	FulfillmentDeliveriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fulfillment_deliveries_total",
			Help: "Artifacts successfully delivered to buyers",
		},
	)

	FulfillmentRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fulfillment_retries_total",
			Help: "Transient fulfillment delivery failures that were retried",
		},
	)

	WebhookDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "webhook_processing_duration_seconds",
			Help:    "Duration of inbound transport webhook processing",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Register registers all metrics with the default registry.
func Register() {
	prometheus.MustRegister(OrdersCreatedTotal)
	prometheus.MustRegister(OrderTransitionsTotal)
	prometheus.MustRegister(DecisionsCommittedTotal)
	prometheus.MustRegister(DecisionsSupersededTotal)
	prometheus.MustRegister(BroadcastSendsTotal)
	prometheus.MustRegister(FulfillmentDeliveriesTotal)
	prometheus.MustRegister(FulfillmentRetriesTotal)
	prometheus.MustRegister(WebhookDuration)
}
