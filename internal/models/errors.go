package models

import "fmt"

// ErrorKind buckets every domain failure into one of the categories the
// HTTP layer knows how to translate into a status code.
type ErrorKind int

const (
	KindValidation ErrorKind = iota
	KindNotFound
	KindStateConflict
	KindConcurrencyConflict
	KindForbidden
)

// DomainError is the typed failure returned by every core operation.
// Errors with the same Code match under errors.Is regardless of detail,
// so callers can compare against the sentinel values below even after
// wrapping with fmt.Errorf("...: %w", err).
type DomainError struct {
	Kind   ErrorKind
	Code   string
	Detail string
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return e.Code + ": " + e.Detail
	}
	return e.Code
}

func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code
}

// WithDetail returns a copy carrying extra context for logging and API
// responses; it still matches the original sentinel under errors.Is.
func (e *DomainError) WithDetail(format string, args ...any) *DomainError {
	return &DomainError{Kind: e.Kind, Code: e.Code, Detail: fmt.Sprintf(format, args...)}
}

var (
	ErrInvalidCapacity  = &DomainError{Kind: KindValidation, Code: "invalid_capacity"}
	ErrInvalidDeparture = &DomainError{Kind: KindValidation, Code: "invalid_departure"}
	ErrInvalidSeatCount = &DomainError{Kind: KindValidation, Code: "invalid_seat_count"}
	ErrInvalidWindow    = &DomainError{Kind: KindValidation, Code: "invalid_window"}

	ErrUserNotFound    = &DomainError{Kind: KindNotFound, Code: "user_not_found"}
	ErrTripNotFound    = &DomainError{Kind: KindNotFound, Code: "trip_not_found"}
	ErrRequestNotFound = &DomainError{Kind: KindNotFound, Code: "request_not_found"}
	ErrBookingNotFound = &DomainError{Kind: KindNotFound, Code: "booking_not_found"}

	ErrIllegalTransition   = &DomainError{Kind: KindStateConflict, Code: "illegal_transition"}
	ErrTripNotBookable     = &DomainError{Kind: KindStateConflict, Code: "trip_not_bookable"}
	ErrInsufficientSeats   = &DomainError{Kind: KindStateConflict, Code: "insufficient_seats"}
	ErrTripAlreadyDeparted = &DomainError{Kind: KindStateConflict, Code: "trip_already_departed"}
	ErrTripNotSettleable   = &DomainError{Kind: KindStateConflict, Code: "trip_not_settleable"}
	ErrAlreadyBooked       = &DomainError{Kind: KindStateConflict, Code: "already_booked"}
	ErrPhoneTaken          = &DomainError{Kind: KindStateConflict, Code: "phone_taken"}

	ErrReservationContended = &DomainError{Kind: KindConcurrencyConflict, Code: "reservation_contended"}

	ErrRoleForbidden      = &DomainError{Kind: KindForbidden, Code: "role_forbidden"}
	ErrNotOwner           = &DomainError{Kind: KindForbidden, Code: "not_owner"}
	ErrInvalidCredentials = &DomainError{Kind: KindForbidden, Code: "invalid_credentials"}
)
