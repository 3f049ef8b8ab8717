package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	bookingsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "courtbook",
			Name:      "bookings_created_total",
			Help:      "Successfully committed bookings.",
		},
	)

	bookingsCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "courtbook",
			Name:      "bookings_cancelled_total",
			Help:      "Cancelled bookings.",
		},
	)

	bookingConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courtbook",
			Name:      "booking_conflicts_total",
			Help:      "Booking attempts rejected at commit time, by blocking resource kind.",
		},
		[]string{"kind"},
	)

	waitlistJoins = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "courtbook",
			Name:      "waitlist_joins_total",
			Help:      "Waitlist entries created.",
		},
	)

	waitlistPromotions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "courtbook",
			Name:      "waitlist_promotions_total",
			Help:      "Waitlist entries promoted to notified.",
		},
	)

	waitlistExpiries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "courtbook",
			Name:      "waitlist_expiries_total",
			Help:      "Notified waitlist entries expired by the sweeper.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courtbook",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			bookingsCreated,
			bookingsCancelled,
			bookingConflicts,
			waitlistJoins,
			waitlistPromotions,
			waitlistExpiries,
			httpRequests,
		)
	})
}

func IncBookingCreated()          { bookingsCreated.Inc() }
func IncBookingCancelled()        { bookingsCancelled.Inc() }
func IncBookingConflict(k string) { bookingConflicts.WithLabelValues(k).Inc() }
func IncWaitlistJoin()            { waitlistJoins.Inc() }
func IncWaitlistPromotion()       { waitlistPromotions.Inc() }
func IncWaitlistExpiry()          { waitlistExpiries.Inc() }
func IncHTTP(endpoint string)     { httpRequests.WithLabelValues(endpoint).Inc() }
