package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/carpool/internal/locks"
	"github.com/example/carpool/internal/models"
	"github.com/example/carpool/internal/storage"
)

type hookRecorder struct {
	trips    int
	bookings int
}

func (h *hookRecorder) OnTripCompleted(t *models.Trip, live []*models.Booking) {
	h.trips++
	h.bookings += len(live)
}

func newTestLedger() (*Ledger, *storage.MemoryStore, *models.User) {
	store := storage.NewMemoryStore()
	driver := &models.User{ID: "d1", Name: "Li", Role: models.RoleDriver, Rating: 5}
	_ = store.CreateUser(driver)
	return New(store, locks.NewManager(time.Second), nil), store, driver
}

func TestPublishValidation(t *testing.T) {
	l, _, driver := newTestLedger()
	future := time.Now().Add(time.Hour)

	if _, err := l.Publish(driver, "a", "b", future, 0, 10); !errors.Is(err, models.ErrInvalidCapacity) {
		t.Fatalf("capacity 0: got %v", err)
	}
	if _, err := l.Publish(driver, "a", "b", future, 5, 10); !errors.Is(err, models.ErrInvalidCapacity) {
		t.Fatalf("capacity 5: got %v", err)
	}
	if _, err := l.Publish(driver, "a", "b", time.Now().Add(-time.Minute), 2, 10); !errors.Is(err, models.ErrInvalidDeparture) {
		t.Fatalf("past departure: got %v", err)
	}
	passenger := &models.User{ID: "p1", Role: models.RolePassenger}
	if _, err := l.Publish(passenger, "a", "b", future, 2, 10); !errors.Is(err, models.ErrRoleForbidden) {
		t.Fatalf("passenger publish: got %v", err)
	}

	trip, err := l.Publish(driver, "a", "b", future, 3, 25)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if trip.Status != models.TripScheduled || trip.Available != 3 {
		t.Fatalf("unexpected trip %+v", trip)
	}
}

func TestAdvanceTransitions(t *testing.T) {
	l, _, driver := newTestLedger()
	ctx := context.Background()
	trip, _ := l.Publish(driver, "a", "b", time.Now().Add(time.Hour), 2, 10)

	// no skipping straight to completed
	if _, err := l.Advance(ctx, driver, trip.ID, models.TripCompleted); !errors.Is(err, models.ErrIllegalTransition) {
		t.Fatalf("scheduled->completed: got %v", err)
	}
	if _, err := l.Advance(ctx, driver, trip.ID, models.TripOngoing); err != nil {
		t.Fatalf("scheduled->ongoing: %v", err)
	}
	// ongoing cannot be cancelled
	if _, err := l.Advance(ctx, driver, trip.ID, models.TripCancelled); !errors.Is(err, models.ErrIllegalTransition) {
		t.Fatalf("ongoing->cancelled: got %v", err)
	}
	if _, err := l.Advance(ctx, driver, trip.ID, models.TripCompleted); err != nil {
		t.Fatalf("ongoing->completed: %v", err)
	}
	// completed is terminal
	if _, err := l.Advance(ctx, driver, trip.ID, models.TripOngoing); !errors.Is(err, models.ErrIllegalTransition) {
		t.Fatalf("completed->ongoing: got %v", err)
	}
}

func TestAdvanceUnknownTripAndOwner(t *testing.T) {
	l, _, driver := newTestLedger()
	ctx := context.Background()
	if _, err := l.Advance(ctx, driver, "missing", models.TripOngoing); !errors.Is(err, models.ErrTripNotFound) {
		t.Fatalf("missing trip: got %v", err)
	}
	trip, _ := l.Publish(driver, "a", "b", time.Now().Add(time.Hour), 2, 10)
	other := &models.User{ID: "d2", Role: models.RoleDriver}
	if _, err := l.Advance(ctx, other, trip.ID, models.TripOngoing); !errors.Is(err, models.ErrNotOwner) {
		t.Fatalf("foreign driver: got %v", err)
	}
}

func TestCancelCascadesLiveBookings(t *testing.T) {
	l, store, driver := newTestLedger()
	ctx := context.Background()
	trip, _ := l.Publish(driver, "a", "b", time.Now().Add(time.Hour), 3, 10)

	trip.Available = 1
	b1 := &models.Booking{ID: "b1", TripID: trip.ID, PassengerID: "p1", Seats: 2, Status: models.BookingConfirmed, Payment: models.PaymentUnpaid}
	_ = store.ReserveSeats(trip, b1, nil)
	b2 := &models.Booking{ID: "b2", TripID: trip.ID, PassengerID: "p2", Seats: 1, Status: models.BookingCancelled, Payment: models.PaymentUnpaid}
	_ = store.ReserveSeats(trip, b2, nil)

	affected, err := l.Advance(ctx, driver, trip.ID, models.TripCancelled)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if len(affected) != 1 || affected[0] != "b1" {
		t.Fatalf("expected only live booking cascaded, got %v", affected)
	}
	got, _ := store.TripByID(trip.ID)
	if got.Status != models.TripCancelled || got.Available != got.Capacity {
		t.Fatalf("unexpected trip after cancel: %+v", got)
	}
	cb, _ := store.BookingByID("b1")
	if cb.Status != models.BookingCancelled {
		t.Fatalf("booking b1 not cancelled: %+v", cb)
	}
}

func TestCompleteNotifiesSettlementAndDriverCounter(t *testing.T) {
	l, store, driver := newTestLedger()
	hook := &hookRecorder{}
	l.Settlement = hook
	ctx := context.Background()

	trip, _ := l.Publish(driver, "a", "b", time.Now().Add(time.Hour), 2, 10)
	trip.Available = 1
	b := &models.Booking{ID: "b1", TripID: trip.ID, PassengerID: "p1", Seats: 1, Status: models.BookingConfirmed, Payment: models.PaymentUnpaid}
	_ = store.ReserveSeats(trip, b, nil)

	if _, err := l.Advance(ctx, driver, trip.ID, models.TripOngoing); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Advance(ctx, driver, trip.ID, models.TripCompleted); err != nil {
		t.Fatal(err)
	}
	if hook.trips != 1 || hook.bookings != 1 {
		t.Fatalf("settlement hook: trips=%d bookings=%d", hook.trips, hook.bookings)
	}
	d, _ := store.UserByID(driver.ID)
	if d.CompletedTrips != 1 {
		t.Fatalf("driver completed trips = %d", d.CompletedTrips)
	}
}

func TestQueryOrderingAndRestart(t *testing.T) {
	l, _, driver := newTestLedger()
	base := time.Now().Add(time.Hour).Truncate(time.Second)

	late, _ := l.Publish(driver, "a", "b", base.Add(2*time.Hour), 2, 10)
	cheapEarly, _ := l.Publish(driver, "a", "b", base, 2, 15)
	pricedEarly, _ := l.Publish(driver, "a", "b", base, 2, 30)
	other, _ := l.Publish(driver, "x", "y", base, 2, 10)
	_ = other

	seq := l.Query(models.TripFilter{Origin: "a"})

	collect := func() []string {
		var ids []string
		for t := range seq {
			ids = append(ids, t.ID)
		}
		return ids
	}
	want := []string{cheapEarly.ID, pricedEarly.ID, late.ID}
	for pass := 0; pass < 2; pass++ { // restartable
		got := collect()
		if len(got) != len(want) {
			t.Fatalf("pass %d: got %v want %v", pass, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("pass %d: got %v want %v", pass, got, want)
			}
		}
	}
}

func TestQuerySkipsUnbookable(t *testing.T) {
	l, store, driver := newTestLedger()
	ctx := context.Background()
	base := time.Now().Add(time.Hour)

	full, _ := l.Publish(driver, "a", "b", base, 1, 10)
	full.Available = 0
	b := &models.Booking{ID: "b1", TripID: full.ID, PassengerID: "p1", Seats: 1, Status: models.BookingConfirmed}
	_ = store.ReserveSeats(full, b, nil)

	departed, _ := l.Publish(driver, "a", "b", base, 2, 10)
	if _, err := l.Advance(ctx, driver, departed.ID, models.TripOngoing); err != nil {
		t.Fatal(err)
	}

	open, _ := l.Publish(driver, "a", "b", base, 2, 10)

	var ids []string
	for tr := range l.Query(models.TripFilter{}) {
		ids = append(ids, tr.ID)
	}
	if len(ids) != 1 || ids[0] != open.ID {
		t.Fatalf("expected only open trip, got %v", ids)
	}
}
