package models

import "time"

type Role string

const (
	RolePassenger Role = "passenger"
	RoleDriver    Role = "driver"
)

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`

	// driver-only attributes
	CarModel       string  `json:"car_model,omitempty"`
	PlateNumber    string  `json:"plate_number,omitempty"`
	Rating         float64 `json:"rating,omitempty"`
	CompletedTrips int     `json:"completed_trips,omitempty"`
}

type Trip struct {
	ID           string     `json:"id"`
	DriverID     string     `json:"driver_id"`
	Origin       string     `json:"origin"`
	Destination  string     `json:"destination"`
	Departure    time.Time  `json:"departure"`
	Capacity     int        `json:"capacity"`
	Available    int        `json:"available"`
	PricePerSeat float64    `json:"price_per_seat"`
	Status       TripStatus `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Window is the interval a passenger is willing to depart in.
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type RideRequest struct {
	ID          string        `json:"id"`
	PassengerID string        `json:"passenger_id"`
	Origin      string        `json:"origin"`
	Destination string        `json:"destination"`
	Window      Window        `json:"window"`
	Seats       int           `json:"seats"`
	Note        string        `json:"note,omitempty"`
	Status      RequestStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Booking binds reserved seats on a Trip to a passenger. Seats and Amount are
// fixed at creation; only Payment may change afterwards, and only once the
// owning trip has completed.
type Booking struct {
	ID          string        `json:"id"`
	TripID      string        `json:"trip_id"`
	PassengerID string        `json:"passenger_id"`
	RequestID   string        `json:"request_id,omitempty"`
	Seats       int           `json:"seats"`
	Amount      float64       `json:"amount"`
	Status      BookingStatus `json:"status"`
	Payment     PaymentStatus `json:"payment"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Live reports whether the booking still accounts for seats on its trip.
func (b *Booking) Live() bool { return b.Status == BookingConfirmed }

// TripFilter narrows trip queries. Zero values match everything.
type TripFilter struct {
	Origin      string
	Destination string
	From        time.Time
	To          time.Time
}

func (f TripFilter) Matches(t *Trip) bool {
	if f.Origin != "" && f.Origin != t.Origin {
		return false
	}
	if f.Destination != "" && f.Destination != t.Destination {
		return false
	}
	if !f.From.IsZero() && t.Departure.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && t.Departure.After(f.To) {
		return false
	}
	return true
}

// SettlementSummary aggregates a user's bookings for profile display.
type SettlementSummary struct {
	Paid        float64 `json:"paid_total"`
	Unpaid      float64 `json:"unpaid_total"`
	PaidCount   int     `json:"paid_count"`
	UnpaidCount int     `json:"unpaid_count"`
}
