package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "shareit"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status code.",
		},
		[]string{"endpoint", "code"},
	)

	bookingsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_created_total",
			Help:      "Accepted reservation requests.",
		},
	)

	bookingRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_rejections_total",
			Help:      "Rejected reservation requests by reason.",
		},
		[]string{"reason"},
	)

	bookingDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_decisions_total",
			Help:      "Owner decisions on bookings.",
		},
		[]string{"decision"},
	)

	reserveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reserve_duration_seconds",
			Help:      "Time spent in the check-then-insert path, lock wait included.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	outboxDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_deliveries_total",
			Help:      "Outbox delivery attempts by result.",
		},
		[]string{"result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			bookingsCreated,
			bookingRejections,
			bookingDecisions,
			reserveDuration,
			outboxDeliveries,
		)
	})
}

// IncHTTP increments the counter for an endpoint label and response code.
func IncHTTP(endpoint string, code int) {
	httpRequests.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
}

func IncBookingCreated() {
	bookingsCreated.Inc()
}

func IncBookingRejected(reason string) {
	bookingRejections.WithLabelValues(reason).Inc()
}

// IncBookingDecision counts approve/reject transitions.
func IncBookingDecision(approved bool) {
	decision := "rejected"
	if approved {
		decision = "approved"
	}
	bookingDecisions.WithLabelValues(decision).Inc()
}

func ObserveReserve(started time.Time) {
	reserveDuration.Observe(time.Since(started).Seconds())
}

// IncOutbox counts outbox attempts: delivered, retry, dead_letter.
func IncOutbox(result string) {
	outboxDeliveries.WithLabelValues(result).Inc()
}
