package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursehub_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coursehub_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	LedgerTransactionsOpened = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursehub_ledger_transactions_opened_total",
			Help: "Financial transactions opened, by type and initial status",
		},
		[]string{"type", "status"},
	)

	LedgerGrossCents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursehub_ledger_gross_cents_total",
			Help: "Gross amount of opened transactions in cents",
		},
		[]string{"type"},
	)

	LedgerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursehub_ledger_transitions_total",
			Help: "Ledger status transitions, by target status and outcome (applied or noop)",
		},
		[]string{"to", "outcome"},
	)

	BookingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursehub_bookings_total",
			Help: "Participant bookings by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursehub_webhook_events_total",
			Help: "Payment processor events by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	SubscriptionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursehub_subscription_transitions_total",
			Help: "Subscription lifecycle writes by operation and resulting status",
		},
		[]string{"operation", "status"},
	)

	EntitlementCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursehub_entitlement_cache_lookups_total",
			Help: "Entitlement cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)

	EmailsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursehub_emails_sent_total",
			Help: "Total number of notification emails",
		},
		[]string{"type", "status"},
	)

	EmailQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coursehub_email_queue_length",
			Help: "Current length of email queue",
		},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordTransactionOpened(txType, status string, grossCents int64) {
	LedgerTransactionsOpened.WithLabelValues(txType, status).Inc()
	if grossCents > 0 {
		LedgerGrossCents.WithLabelValues(txType).Add(float64(grossCents))
	}
}

func RecordTransition(to string, applied bool) {
	outcome := "noop"
	if applied {
		outcome = "applied"
	}
	LedgerTransitions.WithLabelValues(to, outcome).Inc()
}

func RecordBooking(channel, outcome string) {
	BookingsTotal.WithLabelValues(channel, outcome).Inc()
}

func RecordWebhookEvent(kind, outcome string) {
	WebhookEventsTotal.WithLabelValues(kind, outcome).Inc()
}

func RecordSubscription(operation, status string) {
	SubscriptionTransitions.WithLabelValues(operation, status).Inc()
}

func RecordEntitlementLookup(result string) {
	EntitlementCacheLookups.WithLabelValues(result).Inc()
}

func RecordEmail(emailType, status string) {
	EmailsSentTotal.WithLabelValues(emailType, status).Inc()
}
