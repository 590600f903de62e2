package models

// Status enumerations are closed sets with explicit transition tables.
// Every transition in the system is validated against these tables so an
// illegal edge is a single well-defined failure, not a scattered string
// comparison.

type TripStatus string

const (
	TripScheduled TripStatus = "scheduled"
	TripOngoing   TripStatus = "ongoing"
	TripCompleted TripStatus = "completed"
	TripCancelled TripStatus = "cancelled"
)

// tripTransitions is the authoritative trip state machine: forward-only
// Scheduled→Ongoing→Completed, with Scheduled→Cancelled as the only exit.
var tripTransitions = map[TripStatus][]TripStatus{
	TripScheduled: {TripOngoing, TripCancelled},
	TripOngoing:   {TripCompleted},
}

func (s TripStatus) CanTransitionTo(next TripStatus) bool {
	for _, t := range tripTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

func (s TripStatus) Valid() bool {
	switch s {
	case TripScheduled, TripOngoing, TripCompleted, TripCancelled:
		return true
	}
	return false
}

type RequestStatus string

const (
	RequestOpen      RequestStatus = "open"
	RequestMatched   RequestStatus = "matched"
	RequestExpired   RequestStatus = "expired"
	RequestCancelled RequestStatus = "cancelled"
)

var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestOpen: {RequestMatched, RequestExpired, RequestCancelled},
}

func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	for _, t := range requestTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)
