package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	NotificationsSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "checkin_notifications_sent_total",
			Help: "Total number of check-in notification emails sent",
		},
	)

	NotificationsFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "checkin_notifications_failed_total",
			Help: "Total number of failed notification send attempts",
		},
	)

	NotificationsSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "checkin_notifications_skipped_total",
			Help: "Total number of notifications skipped (opt-out or no email)",
		},
	)

	NotificationsClaimedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "checkin_notifications_claimed_total",
			Help: "Total number of check-ins claimed for notification",
		},
	)

	NotificationSendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "checkin_notification_send_duration_seconds",
			Help:    "Duration of one notification send",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Register registers all worker metrics on the default registry.
func Register() {
	prometheus.MustRegister(NotificationsSentTotal)
	prometheus.MustRegister(NotificationsFailedTotal)
	prometheus.MustRegister(NotificationsSkippedTotal)
	prometheus.MustRegister(NotificationsClaimedTotal)
	prometheus.MustRegister(NotificationSendDuration)
}
