package booking

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/carpool/internal/ledger"
	"github.com/example/carpool/internal/locks"
	"github.com/example/carpool/internal/models"
	"github.com/example/carpool/internal/observability"
	"github.com/example/carpool/internal/storage"
)

// EventPublisher receives domain events for downstream consumers.
type EventPublisher interface {
	Publish(ev models.Event) error
}

// Notifier pushes booking activity to the owning driver's live session.
type Notifier interface {
	Notify(driverID string, ev models.Event) error
}

// TokenStore remembers idempotency tokens so a retried Reserve returns the
// original booking instead of reserving twice.
type TokenStore interface {
	Get(ctx context.Context, token string) (string, bool)
	Set(ctx context.Context, token, bookingID string)
}

// Coordinator fuses seat deduction and booking creation into one atomic step
// per trip. The per-trip lock is the only place two independent passengers
// contend for the same finite resource; everything under the lock must leave
// the trip satisfying capacity-available == sum of live booking seats.
type Coordinator struct {
	Store  storage.Store
	Locks  *locks.Manager
	Tokens TokenStore
	Events EventPublisher
	Notify Notifier
	Logger *slog.Logger

	LockAttempts int
	LockBackoff  time.Duration
}

func New(store storage.Store, lm *locks.Manager, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		Store:        store,
		Locks:        lm,
		Tokens:       NewMemoryTokens(),
		Logger:       logger,
		LockAttempts: 4,
		LockBackoff:  25 * time.Millisecond,
	}
}

// ReserveInput carries one reservation attempt. RequestID is optional: when
// set, the reservation also matches that open ride request, and a driver may
// initiate the call (the "accept request" flow). Token is an optional
// client-supplied idempotency key for safe retries after a contention error.
type ReserveInput struct {
	TripID    string
	Seats     int
	RequestID string
	Token     string
}

func (c *Coordinator) Reserve(ctx context.Context, caller *models.User, in ReserveInput) (*models.Booking, error) {
	if in.Token != "" {
		if id, ok := c.Tokens.Get(ctx, in.Token); ok {
			if b, ok := c.Store.BookingByID(id); ok {
				return b, nil
			}
		}
	}

	if !c.Locks.Acquire(ctx, in.TripID, c.LockAttempts, c.LockBackoff) {
		observability.ReservationConflicts.Inc()
		return nil, models.ErrReservationContended.WithDetail("trip %s busy", in.TripID)
	}
	defer c.Locks.Release(in.TripID)

	t, ok := c.Store.TripByID(in.TripID)
	if !ok {
		return nil, models.ErrTripNotFound.WithDetail("trip %s", in.TripID)
	}
	if t.Status != models.TripScheduled {
		return nil, models.ErrTripNotBookable.WithDetail("trip %s is %s", t.ID, t.Status)
	}

	var req *models.RideRequest
	if in.RequestID != "" {
		r, ok := c.Store.RequestByID(in.RequestID)
		if !ok {
			return nil, models.ErrRequestNotFound.WithDetail("request %s", in.RequestID)
		}
		if !r.Status.CanTransitionTo(models.RequestMatched) {
			return nil, models.ErrIllegalTransition.WithDetail("request %s is %s", r.ID, r.Status)
		}
		req = r
		if in.Seats == 0 {
			in.Seats = r.Seats
		}
	}

	// Drivers only reserve on behalf of an existing request against their
	// own trip; passengers book for themselves.
	passengerID := caller.ID
	switch caller.Role {
	case models.RoleDriver:
		if req == nil {
			return nil, models.ErrRoleForbidden.WithDetail("drivers reserve only by accepting a request")
		}
		if t.DriverID != caller.ID {
			return nil, models.ErrNotOwner.WithDetail("trip %s belongs to another driver", t.ID)
		}
		passengerID = req.PassengerID
	case models.RolePassenger:
		if req != nil && req.PassengerID != caller.ID {
			return nil, models.ErrNotOwner.WithDetail("request %s belongs to another passenger", req.ID)
		}
	default:
		return nil, models.ErrRoleForbidden
	}

	if in.Seats < ledger.MinCapacity || in.Seats > ledger.MaxCapacity {
		return nil, models.ErrInvalidSeatCount.WithDetail("seats %d outside %d-%d", in.Seats, ledger.MinCapacity, ledger.MaxCapacity)
	}
	if in.Seats > t.Available {
		return nil, models.ErrInsufficientSeats.WithDetail("want %d, have %d", in.Seats, t.Available)
	}
	for _, b := range c.Store.BookingsByTrip(t.ID) {
		if b.Live() && b.PassengerID == passengerID {
			return nil, models.ErrAlreadyBooked.WithDetail("passenger %s already holds booking %s", passengerID, b.ID)
		}
	}

	t.Available -= in.Seats
	b := &models.Booking{
		ID:          uuid.NewString(),
		TripID:      t.ID,
		PassengerID: passengerID,
		RequestID:   in.RequestID,
		Seats:       in.Seats,
		Amount:      t.PricePerSeat * float64(in.Seats),
		Status:      models.BookingConfirmed,
		Payment:     models.PaymentUnpaid,
		CreatedAt:   time.Now(),
	}
	if req != nil {
		req.Status = models.RequestMatched
	}
	if err := c.Store.ReserveSeats(t, b, req); err != nil {
		return nil, err
	}

	if in.Token != "" {
		c.Tokens.Set(ctx, in.Token, b.ID)
	}
	observability.BookingsCreated.Inc()
	observability.SeatsReserved.Add(float64(in.Seats))
	c.emit(models.Event{Type: models.EventBookingCreated, TripID: t.ID, BookingID: b.ID, RequestID: in.RequestID, Trip: t, At: time.Now()}, t.DriverID)
	if c.Logger != nil {
		c.Logger.Info("booking created", "booking_id", b.ID, "trip_id", t.ID, "seats", b.Seats, "available", t.Available)
	}
	return b, nil
}

// CancelBooking releases a live booking's seats. Allowed only while the
// owning trip is still Scheduled.
func (c *Coordinator) CancelBooking(ctx context.Context, caller *models.User, bookingID string) error {
	b, ok := c.Store.BookingByID(bookingID)
	if !ok {
		return models.ErrBookingNotFound.WithDetail("booking %s", bookingID)
	}
	if b.PassengerID != caller.ID {
		return models.ErrNotOwner.WithDetail("booking %s belongs to another passenger", bookingID)
	}

	if !c.Locks.Acquire(ctx, b.TripID, c.LockAttempts, c.LockBackoff) {
		observability.ReservationConflicts.Inc()
		return models.ErrReservationContended.WithDetail("trip %s busy", b.TripID)
	}
	defer c.Locks.Release(b.TripID)

	// re-read under the lock
	b, ok = c.Store.BookingByID(bookingID)
	if !ok {
		return models.ErrBookingNotFound.WithDetail("booking %s", bookingID)
	}
	if !b.Live() {
		return models.ErrIllegalTransition.WithDetail("booking %s is %s", b.ID, b.Status)
	}
	t, ok := c.Store.TripByID(b.TripID)
	if !ok {
		return models.ErrTripNotFound.WithDetail("trip %s", b.TripID)
	}
	if t.Status != models.TripScheduled {
		return models.ErrTripAlreadyDeparted.WithDetail("trip %s is %s", t.ID, t.Status)
	}

	t.Available += b.Seats
	b.Status = models.BookingCancelled
	if err := c.Store.ReleaseSeats(t, b); err != nil {
		return err
	}

	observability.BookingsCancelled.Inc()
	c.emit(models.Event{Type: models.EventBookingCancelled, TripID: t.ID, BookingID: b.ID, Trip: t, At: time.Now()}, t.DriverID)
	if c.Logger != nil {
		c.Logger.Info("booking cancelled", "booking_id", b.ID, "trip_id", t.ID, "available", t.Available)
	}
	return nil
}

func (c *Coordinator) emit(ev models.Event, driverID string) {
	if c.Events != nil {
		if err := c.Events.Publish(ev); err != nil && c.Logger != nil {
			c.Logger.Warn("event publish failed", "type", string(ev.Type), "error", err)
		}
	}
	if c.Notify != nil {
		_ = c.Notify.Notify(driverID, ev) // best-effort; driver may be offline
	}
}
