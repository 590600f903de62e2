package board

import (
	"errors"
	"testing"
	"time"

	"github.com/example/carpool/internal/models"
	"github.com/example/carpool/internal/storage"
)

func window(from, to time.Time) models.Window { return models.Window{From: from, To: to} }

func newTestBoard() (*Board, *models.User) {
	b := New(storage.NewMemoryStore(), nil)
	passenger := &models.User{ID: "p1", Name: "Wang", Role: models.RolePassenger}
	return b, passenger
}

func TestPostValidation(t *testing.T) {
	b, passenger := newTestBoard()
	now := time.Now()

	if _, err := b.Post(passenger, "a", "b", window(now, now.Add(time.Hour)), 0, ""); !errors.Is(err, models.ErrInvalidSeatCount) {
		t.Fatalf("seats 0: got %v", err)
	}
	if _, err := b.Post(passenger, "a", "b", window(now, now.Add(time.Hour)), 5, ""); !errors.Is(err, models.ErrInvalidSeatCount) {
		t.Fatalf("seats 5: got %v", err)
	}
	if _, err := b.Post(passenger, "a", "b", window(now.Add(time.Hour), now), 2, ""); !errors.Is(err, models.ErrInvalidWindow) {
		t.Fatalf("inverted window: got %v", err)
	}
	driver := &models.User{ID: "d1", Role: models.RoleDriver}
	if _, err := b.Post(driver, "a", "b", window(now, now.Add(time.Hour)), 2, ""); !errors.Is(err, models.ErrRoleForbidden) {
		t.Fatalf("driver post: got %v", err)
	}

	r, err := b.Post(passenger, "a", "b", window(now, now.Add(time.Hour)), 2, "two bags")
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if r.Status != models.RequestOpen {
		t.Fatalf("new request status %s", r.Status)
	}
}

func TestCancelTwice(t *testing.T) {
	b, passenger := newTestBoard()
	now := time.Now()
	r, _ := b.Post(passenger, "a", "b", window(now, now.Add(time.Hour)), 1, "")

	if err := b.Cancel(passenger, r.ID); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	if err := b.Cancel(passenger, r.ID); !errors.Is(err, models.ErrIllegalTransition) {
		t.Fatalf("second cancel: got %v", err)
	}
}

func TestCancelForeignRequest(t *testing.T) {
	b, passenger := newTestBoard()
	now := time.Now()
	r, _ := b.Post(passenger, "a", "b", window(now, now.Add(time.Hour)), 1, "")

	other := &models.User{ID: "p2", Role: models.RolePassenger}
	if err := b.Cancel(other, r.ID); !errors.Is(err, models.ErrNotOwner) {
		t.Fatalf("foreign cancel: got %v", err)
	}
	if err := b.Cancel(passenger, "missing"); !errors.Is(err, models.ErrRequestNotFound) {
		t.Fatalf("missing request: got %v", err)
	}
}

func TestExpireStale(t *testing.T) {
	b, passenger := newTestBoard()
	now := time.Now()

	past, _ := b.Post(passenger, "a", "b", window(now.Add(-2*time.Hour), now.Add(-time.Hour)), 1, "")
	future, _ := b.Post(passenger, "a", "b", window(now, now.Add(time.Hour)), 1, "")

	expired := b.ExpireStale(now)
	if len(expired) != 1 || expired[0] != past.ID {
		t.Fatalf("expected %s expired, got %v", past.ID, expired)
	}
	got, _ := b.Store.RequestByID(past.ID)
	if got.Status != models.RequestExpired {
		t.Fatalf("stale request status %s", got.Status)
	}
	fresh, _ := b.Store.RequestByID(future.ID)
	if fresh.Status != models.RequestOpen {
		t.Fatalf("fresh request status %s", fresh.Status)
	}

	// sweep is idempotent: the expired request is no longer Open
	if again := b.ExpireStale(now); len(again) != 0 {
		t.Fatalf("second sweep expired %v", again)
	}
}

func TestExpireNonOpen(t *testing.T) {
	b, passenger := newTestBoard()
	now := time.Now()
	r, _ := b.Post(passenger, "a", "b", window(now, now.Add(time.Hour)), 1, "")
	_ = b.Cancel(passenger, r.ID)

	if err := b.Expire(r.ID); !errors.Is(err, models.ErrIllegalTransition) {
		t.Fatalf("expire cancelled: got %v", err)
	}
}
