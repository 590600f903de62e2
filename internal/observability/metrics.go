package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TripsPublished = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "trips_published_total", Help: "Total trips published by drivers"})
	TripTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "carpool", Name: "trip_transitions_total", Help: "Trip status transitions applied"},
		[]string{"target"},
	)

	BookingsCreated      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "bookings_created_total", Help: "Total successful reservations"})
	BookingsCancelled    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "bookings_cancelled_total", Help: "Total cancelled bookings"})
	SeatsReserved        = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "seats_reserved_total", Help: "Total seats reserved across all trips"})
	ReservationConflicts = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "reservation_conflicts_total", Help: "Reservations rejected for lock contention"})

	RequestsPosted  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "ride_requests_posted_total", Help: "Total ride requests posted"})
	RequestsExpired = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "ride_requests_expired_total", Help: "Ride requests expired by the sweep"})

	SettlementsInitialized = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "settlements_initialized_total", Help: "Bookings made settleable by trip completion"})
	SettlementsPaid        = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "settlements_paid_total", Help: "Bookings marked paid"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "carpool", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "carpool",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
