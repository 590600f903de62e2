package ledger

import (
	"context"
	"iter"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/example/carpool/internal/locks"
	"github.com/example/carpool/internal/models"
	"github.com/example/carpool/internal/observability"
	"github.com/example/carpool/internal/storage"
)

// EventPublisher receives domain events for downstream consumers. A nil
// publisher is tolerated everywhere; events are best-effort.
type EventPublisher interface {
	Publish(ev models.Event) error
}

// SettlementHook is notified when a trip completes so settlement bookkeeping
// can start for its live bookings.
type SettlementHook interface {
	OnTripCompleted(t *models.Trip, live []*models.Booking)
}

// Ledger owns the set of driver-published trips and their status machine.
// Mutations to a single trip serialize on the shared per-trip lock manager,
// the same one the booking coordinator uses, so a status change can never
// interleave with a seat reservation on the same trip.
type Ledger struct {
	Store      storage.Store
	Locks      *locks.Manager
	Events     EventPublisher
	Settlement SettlementHook
	Logger     *slog.Logger

	LockAttempts int
	LockBackoff  time.Duration
}

func New(store storage.Store, lm *locks.Manager, logger *slog.Logger) *Ledger {
	return &Ledger{
		Store:        store,
		Locks:        lm,
		Logger:       logger,
		LockAttempts: 4,
		LockBackoff:  25 * time.Millisecond,
	}
}

const (
	MinCapacity = 1
	MaxCapacity = 4
)

// Publish creates a Scheduled trip owned by the calling driver.
func (l *Ledger) Publish(driver *models.User, origin, destination string, departure time.Time, capacity int, price float64) (*models.Trip, error) {
	if driver.Role != models.RoleDriver {
		return nil, models.ErrRoleForbidden.WithDetail("only drivers publish trips")
	}
	if capacity < MinCapacity || capacity > MaxCapacity {
		return nil, models.ErrInvalidCapacity.WithDetail("capacity %d outside %d-%d", capacity, MinCapacity, MaxCapacity)
	}
	if !departure.After(time.Now()) {
		return nil, models.ErrInvalidDeparture.WithDetail("departure %s is in the past", departure.Format(time.RFC3339))
	}
	t := &models.Trip{
		ID:           uuid.NewString(),
		DriverID:     driver.ID,
		Origin:       origin,
		Destination:  destination,
		Departure:    departure,
		Capacity:     capacity,
		Available:    capacity,
		PricePerSeat: price,
		Status:       models.TripScheduled,
		CreatedAt:    time.Now(),
	}
	if err := l.Store.CreateTrip(t); err != nil {
		return nil, err
	}
	observability.TripsPublished.Inc()
	l.publish(models.Event{Type: models.EventTripPublished, TripID: t.ID, Trip: t, At: time.Now()})
	return t, nil
}

// Advance moves a trip along its status machine. Advancing to Completed
// starts settlement for every live booking; advancing to Cancelled cascades
// cancellation to all live bookings and returns their ids.
func (l *Ledger) Advance(ctx context.Context, caller *models.User, tripID string, target models.TripStatus) ([]string, error) {
	if !target.Valid() {
		return nil, models.ErrIllegalTransition.WithDetail("unknown status %q", target)
	}
	if !l.Locks.Acquire(ctx, tripID, l.LockAttempts, l.LockBackoff) {
		return nil, models.ErrReservationContended.WithDetail("trip %s busy", tripID)
	}
	defer l.Locks.Release(tripID)

	t, ok := l.Store.TripByID(tripID)
	if !ok {
		return nil, models.ErrTripNotFound.WithDetail("trip %s", tripID)
	}
	if t.DriverID != caller.ID {
		return nil, models.ErrNotOwner.WithDetail("trip %s belongs to another driver", tripID)
	}
	if !t.Status.CanTransitionTo(target) {
		return nil, models.ErrIllegalTransition.WithDetail("%s -> %s", t.Status, target)
	}

	var affected []string
	var changed []*models.Booking
	var driver *models.User

	switch target {
	case models.TripCancelled:
		for _, b := range l.Store.BookingsByTrip(t.ID) {
			if !b.Live() {
				continue
			}
			b.Status = models.BookingCancelled
			changed = append(changed, b)
			affected = append(affected, b.ID)
		}
		// all seat accounting is released with the bookings
		t.Available = t.Capacity
	case models.TripCompleted:
		if drv, ok := l.Store.UserByID(t.DriverID); ok {
			drv.CompletedTrips++
			driver = drv
		}
	}

	t.Status = target
	if err := l.Store.ApplyTripTransition(t, changed, driver); err != nil {
		return nil, err
	}

	observability.TripTransitions.WithLabelValues(string(target)).Inc()
	l.publish(models.Event{Type: models.EventTripAdvanced, TripID: t.ID, Trip: t, At: time.Now()})

	if target == models.TripCompleted && l.Settlement != nil {
		var live []*models.Booking
		for _, b := range l.Store.BookingsByTrip(t.ID) {
			if b.Live() {
				live = append(live, b)
			}
		}
		l.Settlement.OnTripCompleted(t, live)
	}
	if l.Logger != nil {
		l.Logger.Info("trip advanced", "trip_id", t.ID, "status", string(target), "cancelled_bookings", len(affected))
	}
	return affected, nil
}

// Query returns a lazy, restartable sequence of bookable trips matching the
// filter: Scheduled, seats available, ordered by departure then price. Each
// range over the sequence re-reads the store snapshot.
func (l *Ledger) Query(f models.TripFilter) iter.Seq[*models.Trip] {
	return func(yield func(*models.Trip) bool) {
		var out []*models.Trip
		for _, t := range l.Store.Trips() {
			if t.Status != models.TripScheduled || t.Available <= 0 {
				continue
			}
			if !f.Matches(t) {
				continue
			}
			out = append(out, t)
		}
		sort.Slice(out, func(i, j int) bool {
			if !out[i].Departure.Equal(out[j].Departure) {
				return out[i].Departure.Before(out[j].Departure)
			}
			return out[i].PricePerSeat < out[j].PricePerSeat
		})
		for _, t := range out {
			if !yield(t) {
				return
			}
		}
	}
}

// TripsByDriver lists a driver's own trips, newest departure first.
func (l *Ledger) TripsByDriver(driverID string) []*models.Trip {
	out := l.Store.TripsByDriver(driverID)
	sort.Slice(out, func(i, j int) bool { return out[i].Departure.After(out[j].Departure) })
	return out
}

func (l *Ledger) publish(ev models.Event) {
	if l.Events == nil {
		return
	}
	if err := l.Events.Publish(ev); err != nil && l.Logger != nil {
		l.Logger.Warn("event publish failed", "type", string(ev.Type), "error", err)
	}
}
