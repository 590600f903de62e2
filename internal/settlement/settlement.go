package settlement

import (
	"iter"
	"log/slog"
	"sort"
	"time"

	"github.com/example/carpool/internal/models"
	"github.com/example/carpool/internal/observability"
	"github.com/example/carpool/internal/storage"
)

// EventPublisher receives domain events for downstream consumers.
type EventPublisher interface {
	Publish(ev models.Event) error
}

// Tracker records payment status per booking. It is decoupled from the trip
// status machine except for the single gating rule: nothing is payable until
// the owning trip has completed. Payment state on a completed trip never
// moves backwards.
type Tracker struct {
	Store  storage.Store
	Events EventPublisher
	Logger *slog.Logger
}

func New(store storage.Store, logger *slog.Logger) *Tracker {
	return &Tracker{Store: store, Logger: logger}
}

// OnTripCompleted is the ledger's completion hook: every live booking on the
// trip becomes settleable.
func (t *Tracker) OnTripCompleted(trip *models.Trip, live []*models.Booking) {
	observability.SettlementsInitialized.Add(float64(len(live)))
	if t.Logger != nil {
		t.Logger.Info("settlement opened", "trip_id", trip.ID, "bookings", len(live))
	}
}

// MarkPaid transitions a booking Unpaid->Paid, exactly once, and only after
// the owning trip has completed.
func (t *Tracker) MarkPaid(caller *models.User, bookingID string) error {
	b, ok := t.Store.BookingByID(bookingID)
	if !ok {
		return models.ErrBookingNotFound.WithDetail("booking %s", bookingID)
	}
	if b.PassengerID != caller.ID {
		return models.ErrNotOwner.WithDetail("booking %s belongs to another passenger", bookingID)
	}
	trip, ok := t.Store.TripByID(b.TripID)
	if !ok {
		return models.ErrTripNotFound.WithDetail("trip %s", b.TripID)
	}
	if trip.Status != models.TripCompleted {
		return models.ErrTripNotSettleable.WithDetail("trip %s is %s", trip.ID, trip.Status)
	}
	if b.Payment == models.PaymentPaid {
		return models.ErrIllegalTransition.WithDetail("booking %s already paid", b.ID)
	}
	b.Payment = models.PaymentPaid
	if err := t.Store.ApplyTripTransition(trip, []*models.Booking{b}, nil); err != nil {
		return err
	}
	observability.SettlementsPaid.Inc()
	if t.Events != nil {
		_ = t.Events.Publish(models.Event{Type: models.EventBookingPaid, TripID: trip.ID, BookingID: b.ID, At: time.Now()})
	}
	return nil
}

// Bookings returns a lazy sequence of the user's live bookings, newest
// first. Each range re-reads the store snapshot.
func (t *Tracker) Bookings(userID string) iter.Seq[*models.Booking] {
	return func(yield func(*models.Booking) bool) {
		out := t.Store.BookingsByPassenger(userID)
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
		for _, b := range out {
			if !b.Live() {
				continue
			}
			if !yield(b) {
				return
			}
		}
	}
}

// Summary aggregates paid and unpaid totals across the user's live bookings
// for profile display.
func (t *Tracker) Summary(userID string) models.SettlementSummary {
	var s models.SettlementSummary
	for b := range t.Bookings(userID) {
		if b.Payment == models.PaymentPaid {
			s.Paid += b.Amount
			s.PaidCount++
		} else {
			s.Unpaid += b.Amount
			s.UnpaidCount++
		}
	}
	return s
}
