package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Audit log metrics
	AuditRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "as2hooks_audit_records_total",
			Help: "Total number of audit log append attempts",
		},
		[]string{"status"},
	)

	AuditRotationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "as2hooks_audit_rotations_total",
			Help: "Total number of audit log rotation runs",
		},
		[]string{"status"},
	)

	// Notification metrics
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "as2hooks_notifications_total",
			Help: "Total number of notifications by final outcome",
		},
		[]string{"outcome"},
	)

	NotificationAttemptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "as2hooks_notification_attempts_total",
			Help: "Total number of HTTP delivery attempts",
		},
	)

	NotificationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "as2hooks_notification_duration_seconds",
			Help:    "Duration of single notification HTTP attempts in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	NotificationsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "as2hooks_notifications_in_flight",
			Help: "Number of asynchronous notifications currently running",
		},
	)

	// DLQ metrics
	DLQWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "as2hooks_dlq_writes_total",
			Help: "Total number of failed notifications written to the dead letter queue",
		},
		[]string{"reason"},
	)

	// Host bridge metrics
	BridgeEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "as2hooks_bridge_events_total",
			Help: "Total number of received-message events consumed from the message bus",
		},
		[]string{"status"},
	)
)
