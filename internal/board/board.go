package board

import (
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/example/carpool/internal/ledger"
	"github.com/example/carpool/internal/models"
	"github.com/example/carpool/internal/observability"
	"github.com/example/carpool/internal/storage"
)

// Board owns passenger ride requests: intents not yet matched to a trip.
// Matching itself happens in the booking coordinator; the board only manages
// the request lifecycle.
type Board struct {
	Store  storage.Store
	Logger *slog.Logger
}

func New(store storage.Store, logger *slog.Logger) *Board {
	return &Board{Store: store, Logger: logger}
}

// Post publishes a ride request for the calling passenger.
func (b *Board) Post(passenger *models.User, origin, destination string, window models.Window, seats int, note string) (*models.RideRequest, error) {
	if passenger.Role != models.RolePassenger {
		return nil, models.ErrRoleForbidden.WithDetail("only passengers post ride requests")
	}
	if seats < ledger.MinCapacity || seats > ledger.MaxCapacity {
		return nil, models.ErrInvalidSeatCount.WithDetail("seats %d outside %d-%d", seats, ledger.MinCapacity, ledger.MaxCapacity)
	}
	if window.To.Before(window.From) {
		return nil, models.ErrInvalidWindow.WithDetail("window ends before it starts")
	}
	r := &models.RideRequest{
		ID:          uuid.NewString(),
		PassengerID: passenger.ID,
		Origin:      origin,
		Destination: destination,
		Window:      window,
		Seats:       seats,
		Note:        note,
		Status:      models.RequestOpen,
		CreatedAt:   time.Now(),
	}
	if err := b.Store.CreateRequest(r); err != nil {
		return nil, err
	}
	observability.RequestsPosted.Inc()
	return r, nil
}

// Cancel is the passenger-initiated Open->Cancelled transition.
func (b *Board) Cancel(caller *models.User, requestID string) error {
	r, ok := b.Store.RequestByID(requestID)
	if !ok {
		return models.ErrRequestNotFound.WithDetail("request %s", requestID)
	}
	if r.PassengerID != caller.ID {
		return models.ErrNotOwner.WithDetail("request %s belongs to another passenger", requestID)
	}
	if !r.Status.CanTransitionTo(models.RequestCancelled) {
		return models.ErrIllegalTransition.WithDetail("%s -> %s", r.Status, models.RequestCancelled)
	}
	r.Status = models.RequestCancelled
	return b.Store.UpdateRequest(r)
}

// Expire transitions a single request Open->Expired. Only the passive sweep
// calls this; any other state fails the transition check.
func (b *Board) Expire(requestID string) error {
	r, ok := b.Store.RequestByID(requestID)
	if !ok {
		return models.ErrRequestNotFound.WithDetail("request %s", requestID)
	}
	if !r.Status.CanTransitionTo(models.RequestExpired) {
		return models.ErrIllegalTransition.WithDetail("%s -> %s", r.Status, models.RequestExpired)
	}
	r.Status = models.RequestExpired
	if err := b.Store.UpdateRequest(r); err != nil {
		return err
	}
	observability.RequestsExpired.Inc()
	return nil
}

// ExpireStale transitions every Open request whose departure window has
// fully passed to Expired and returns the affected ids. It is driven by an
// external time check, never an internal timer.
func (b *Board) ExpireStale(now time.Time) []string {
	var expired []string
	for _, r := range b.Store.OpenRequests() {
		if !r.Window.To.Before(now) {
			continue
		}
		if err := b.Expire(r.ID); err != nil {
			if b.Logger != nil {
				b.Logger.Warn("expire failed", "request_id", r.ID, "error", err)
			}
			continue
		}
		expired = append(expired, r.ID)
	}
	return expired
}

// OpenRequests lists requests a driver may accept, soonest window first.
func (b *Board) OpenRequests() []*models.RideRequest {
	out := b.Store.OpenRequests()
	sort.Slice(out, func(i, j int) bool { return out[i].Window.From.Before(out[j].Window.From) })
	return out
}

// RequestsByPassenger lists a passenger's own requests, newest first.
func (b *Board) RequestsByPassenger(passengerID string) []*models.RideRequest {
	out := b.Store.RequestsByPassenger(passengerID)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}
