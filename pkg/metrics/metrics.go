package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request latency (seconds)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "freelancehub_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "path", "status"},
	)

	InvoicesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "freelancehub_invoices_created_total",
			Help: "Total number of invoices created",
		},
		[]string{"source"}, // manual, milestone, completion, contract
	)

	RemindersSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "freelancehub_payment_reminders_total",
			Help: "Payment reminders processed by outcome",
		},
		[]string{"type", "status"}, // status: sent, skipped, failed
	)

	EffectsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "freelancehub_effects_total",
			Help: "Post-commit side effects executed",
		},
		[]string{"kind", "status"},
	)

	SweepTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "freelancehub_sweep_transitions_total",
			Help: "Project status transitions applied by the deadline sweep",
		},
		[]string{"transition"}, // invitation_expired, overdue, overdue_cleared
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "freelancehub_job_duration_seconds",
			Help:    "Scheduled job duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"job"},
	)
)

func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func IncInvoiceCreated(source string) {
	InvoicesCreated.WithLabelValues(source).Inc()
}

func IncReminder(reminderType, status string) {
	RemindersSent.WithLabelValues(reminderType, status).Inc()
}

func IncEffect(kind, status string) {
	EffectsExecuted.WithLabelValues(kind, status).Inc()
}

func IncSweepTransition(transition string) {
	SweepTransitions.WithLabelValues(transition).Inc()
}

func ObserveJob(job string, duration time.Duration) {
	JobDuration.WithLabelValues(job).Observe(duration.Seconds())
}
