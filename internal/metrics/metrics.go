package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for the order/payment core.
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"handler", "method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler", "method"},
	)

	CheckoutSessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_sessions_total",
			Help: "Checkout session creation attempts by outcome",
		},
		[]string{"outcome"},
	)

	CouponFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coupon_failures_total",
			Help: "Coupon creations that failed and were skipped",
		},
	)

	WebhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Webhook deliveries by event type and outcome",
		},
		[]string{"event_type", "outcome"},
	)

	PaymentsRecordedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payments_recorded_total",
			Help: "Payment ledger rows created",
		},
	)

	ReconciledOrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciled_orders_total",
			Help: "Stuck pending orders fixed by the reconciliation sweep",
		},
		[]string{"resolution"},
	)
)

// Register registers all collectors with the default registry.
func Register() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		CheckoutSessionsTotal,
		CouponFailuresTotal,
		WebhookEventsTotal,
		PaymentsRecordedTotal,
		ReconciledOrdersTotal,
	)
}
