package models

import "time"

// Event is the envelope published to the domain event stream. The consumer
// process projects trip events into the Redis listing snapshot; other
// consumers may subscribe without touching the engine.
type Event struct {
	Type      EventType `json:"type"`
	TripID    string    `json:"trip_id,omitempty"`
	BookingID string    `json:"booking_id,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Trip      *Trip     `json:"trip,omitempty"`
	At        time.Time `json:"at"`
}

type EventType string

const (
	EventTripPublished    EventType = "trip_published"
	EventTripAdvanced     EventType = "trip_advanced"
	EventBookingCreated   EventType = "booking_created"
	EventBookingCancelled EventType = "booking_cancelled"
	EventBookingPaid      EventType = "booking_paid"
)
