package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autoagenda",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	bookings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autoagenda",
			Name:      "bookings_total",
			Help:      "Booking attempts by result (success, occupied, rolled_back, invalid, error).",
		},
		[]string{"result"},
	)

	alerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autoagenda",
			Name:      "alerts_total",
			Help:      "Alert pipeline outcomes by severity.",
		},
		[]string{"severity", "outcome"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autoagenda",
			Name:      "notification_attempts_total",
			Help:      "Notification delivery attempts by outcome (delivered, retry, abandoned).",
		},
		[]string{"outcome"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, bookings, alerts, notifications)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncBooking increments the booking attempt counter.
func IncBooking(result string) {
	bookings.WithLabelValues(result).Inc()
}

// IncAlert increments the alert outcome counter.
func IncAlert(severity, outcome string) {
	alerts.WithLabelValues(severity, outcome).Inc()
}

// IncNotification increments the delivery attempt counter.
func IncNotification(outcome string) {
	notifications.WithLabelValues(outcome).Inc()
}
