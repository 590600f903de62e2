package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/carpool/internal/locks"
	"github.com/example/carpool/internal/models"
	"github.com/example/carpool/internal/storage"
)

type fixture struct {
	coord     *Coordinator
	store     *storage.MemoryStore
	driver    *models.User
	passenger *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewMemoryStore()
	driver := &models.User{ID: "d1", Role: models.RoleDriver}
	passenger := &models.User{ID: "p1", Role: models.RolePassenger}
	_ = store.CreateUser(driver)
	_ = store.CreateUser(passenger)
	return &fixture{
		coord:     New(store, locks.NewManager(time.Second), nil),
		store:     store,
		driver:    driver,
		passenger: passenger,
	}
}

func (f *fixture) trip(t *testing.T, capacity int, price float64) *models.Trip {
	t.Helper()
	trip := &models.Trip{
		ID:           "trip-" + time.Now().Format("150405.000000000"),
		DriverID:     f.driver.ID,
		Origin:       "a",
		Destination:  "b",
		Departure:    time.Now().Add(time.Hour),
		Capacity:     capacity,
		Available:    capacity,
		PricePerSeat: price,
		Status:       models.TripScheduled,
		CreatedAt:    time.Now(),
	}
	if err := f.store.CreateTrip(trip); err != nil {
		t.Fatal(err)
	}
	return trip
}

// checkAccounting asserts the seat invariant: capacity - available equals
// the sum of seats over live bookings.
func checkAccounting(t *testing.T, store *storage.MemoryStore, tripID string) {
	t.Helper()
	trip, ok := store.TripByID(tripID)
	if !ok {
		t.Fatalf("trip %s missing", tripID)
	}
	if trip.Available < 0 || trip.Available > trip.Capacity {
		t.Fatalf("available %d outside 0..%d", trip.Available, trip.Capacity)
	}
	live := 0
	for _, b := range store.BookingsByTrip(tripID) {
		if b.Live() {
			live += b.Seats
		}
	}
	if trip.Capacity-trip.Available != live {
		t.Fatalf("accounting broken: capacity=%d available=%d live seats=%d", trip.Capacity, trip.Available, live)
	}
}

func TestReserveContract(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.coord.Reserve(ctx, f.passenger, ReserveInput{TripID: "missing", Seats: 1}); !errors.Is(err, models.ErrTripNotFound) {
		t.Fatalf("missing trip: got %v", err)
	}

	trip := f.trip(t, 3, 25)
	if _, err := f.coord.Reserve(ctx, f.passenger, ReserveInput{TripID: trip.ID, Seats: 4}); !errors.Is(err, models.ErrInsufficientSeats) {
		t.Fatalf("too many seats: got %v", err)
	}
	if _, err := f.coord.Reserve(ctx, f.passenger, ReserveInput{TripID: trip.ID, Seats: 0}); !errors.Is(err, models.ErrInvalidSeatCount) {
		t.Fatalf("zero seats: got %v", err)
	}

	b, err := f.coord.Reserve(ctx, f.passenger, ReserveInput{TripID: trip.ID, Seats: 2})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if b.Payment != models.PaymentUnpaid || b.Seats != 2 || b.Amount != 50 {
		t.Fatalf("unexpected booking %+v", b)
	}
	got, _ := f.store.TripByID(trip.ID)
	if got.Available != 1 {
		t.Fatalf("available = %d, want 1", got.Available)
	}
	checkAccounting(t, f.store, trip.ID)

	// same passenger cannot hold two live bookings on one trip
	if _, err := f.coord.Reserve(ctx, f.passenger, ReserveInput{TripID: trip.ID, Seats: 1}); !errors.Is(err, models.ErrAlreadyBooked) {
		t.Fatalf("duplicate booking: got %v", err)
	}
}

func TestReserveNotBookable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	trip := f.trip(t, 2, 10)
	trip.Status = models.TripOngoing
	_ = f.store.ApplyTripTransition(trip, nil, nil)

	if _, err := f.coord.Reserve(ctx, f.passenger, ReserveInput{TripID: trip.ID, Seats: 1}); !errors.Is(err, models.ErrTripNotBookable) {
		t.Fatalf("ongoing trip: got %v", err)
	}
}

func TestLastSeatRace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	trip := f.trip(t, 1, 10)
	p2 := &models.User{ID: "p2", Role: models.RolePassenger}
	_ = f.store.CreateUser(p2)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, p := range []*models.User{f.passenger, p2} {
		wg.Add(1)
		go func(i int, caller *models.User) {
			defer wg.Done()
			_, errs[i] = f.coord.Reserve(ctx, caller, ReserveInput{TripID: trip.ID, Seats: 1})
		}(i, p)
	}
	wg.Wait()

	var wins, losses int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, models.ErrInsufficientSeats):
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || losses != 1 {
		t.Fatalf("wins=%d losses=%d", wins, losses)
	}
	got, _ := f.store.TripByID(trip.ID)
	if got.Available != 0 {
		t.Fatalf("available = %d, want 0", got.Available)
	}
	checkAccounting(t, f.store, trip.ID)
}

func TestDriverAcceptsRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	trip := f.trip(t, 3, 20)
	req := &models.RideRequest{
		ID: "r1", PassengerID: f.passenger.ID, Origin: "a", Destination: "b",
		Seats: 2, Status: models.RequestOpen, CreatedAt: time.Now(),
	}
	_ = f.store.CreateRequest(req)

	// a driver cannot reserve without a request
	if _, err := f.coord.Reserve(ctx, f.driver, ReserveInput{TripID: trip.ID, Seats: 1}); !errors.Is(err, models.ErrRoleForbidden) {
		t.Fatalf("driver direct reserve: got %v", err)
	}

	b, err := f.coord.Reserve(ctx, f.driver, ReserveInput{TripID: trip.ID, RequestID: req.ID})
	if err != nil {
		t.Fatalf("accept request: %v", err)
	}
	if b.PassengerID != f.passenger.ID || b.Seats != 2 || b.RequestID != req.ID {
		t.Fatalf("unexpected booking %+v", b)
	}
	gotReq, _ := f.store.RequestByID(req.ID)
	if gotReq.Status != models.RequestMatched {
		t.Fatalf("request status %s", gotReq.Status)
	}
	checkAccounting(t, f.store, trip.ID)

	// request is Matched now, a second accept fails
	if _, err := f.coord.Reserve(ctx, f.driver, ReserveInput{TripID: trip.ID, RequestID: req.ID}); !errors.Is(err, models.ErrIllegalTransition) {
		t.Fatalf("re-accept: got %v", err)
	}
}

func TestReserveIdempotencyToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	trip := f.trip(t, 2, 10)

	in := ReserveInput{TripID: trip.ID, Seats: 1, Token: "tok-1"}
	b1, err := f.coord.Reserve(ctx, f.passenger, in)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	b2, err := f.coord.Reserve(ctx, f.passenger, in)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if b1.ID != b2.ID {
		t.Fatalf("retry created a second booking: %s vs %s", b1.ID, b2.ID)
	}
	got, _ := f.store.TripByID(trip.ID)
	if got.Available != 1 {
		t.Fatalf("retry double-booked: available=%d", got.Available)
	}
}

func TestCancelBookingRestoresSeats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	trip := f.trip(t, 3, 10)
	b, _ := f.coord.Reserve(ctx, f.passenger, ReserveInput{TripID: trip.ID, Seats: 2})

	other := &models.User{ID: "p9", Role: models.RolePassenger}
	if err := f.coord.CancelBooking(ctx, other, b.ID); !errors.Is(err, models.ErrNotOwner) {
		t.Fatalf("foreign cancel: got %v", err)
	}

	if err := f.coord.CancelBooking(ctx, f.passenger, b.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	got, _ := f.store.TripByID(trip.ID)
	if got.Available != 3 {
		t.Fatalf("available = %d, want 3", got.Available)
	}
	checkAccounting(t, f.store, trip.ID)

	// cancelled booking cannot be cancelled again
	if err := f.coord.CancelBooking(ctx, f.passenger, b.ID); !errors.Is(err, models.ErrIllegalTransition) {
		t.Fatalf("double cancel: got %v", err)
	}
}

func TestCancelBookingAfterDeparture(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	trip := f.trip(t, 2, 10)
	b, _ := f.coord.Reserve(ctx, f.passenger, ReserveInput{TripID: trip.ID, Seats: 1})

	trip, _ = f.store.TripByID(trip.ID)
	trip.Status = models.TripOngoing
	_ = f.store.ApplyTripTransition(trip, nil, nil)

	if err := f.coord.CancelBooking(ctx, f.passenger, b.ID); !errors.Is(err, models.ErrTripAlreadyDeparted) {
		t.Fatalf("cancel after departure: got %v", err)
	}
	got, _ := f.store.TripByID(trip.ID)
	if got.Available != 1 {
		t.Fatalf("seats changed on failed cancel: available=%d", got.Available)
	}
	checkAccounting(t, f.store, trip.ID)
}

func TestReserveContention(t *testing.T) {
	f := newFixture(t)
	f.coord.LockAttempts = 1
	trip := f.trip(t, 2, 10)

	if !f.coord.Locks.TryAcquire(trip.ID) {
		t.Fatal("could not pre-lock trip")
	}
	defer f.coord.Locks.Release(trip.ID)

	_, err := f.coord.Reserve(context.Background(), f.passenger, ReserveInput{TripID: trip.ID, Seats: 1})
	if !errors.Is(err, models.ErrReservationContended) {
		t.Fatalf("expected contention error, got %v", err)
	}
}
