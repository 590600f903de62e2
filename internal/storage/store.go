package storage

import (
	"sync"

	"github.com/example/carpool/internal/models"
)

// Store defines persistence for the engine. Reads return copies; the caller
// mutates its copy and writes it back, with serialization of writes to a
// single trip handled above the store by the booking coordinator.
//
// Seat accounting is exposed only through fused operations (ReserveSeats,
// ReleaseSeats, ApplyTripTransition) so a reader can never observe a trip
// with decremented seats and no booking accounting for them.
type Store interface {
	CreateUser(u *models.User) error
	UserByID(id string) (*models.User, bool)
	UserByPhone(phone string) (*models.User, bool)
	UpdateUser(u *models.User) error

	CreateTrip(t *models.Trip) error
	TripByID(id string) (*models.Trip, bool)
	Trips() []*models.Trip
	TripsByDriver(driverID string) []*models.Trip

	CreateRequest(r *models.RideRequest) error
	RequestByID(id string) (*models.RideRequest, bool)
	UpdateRequest(r *models.RideRequest) error
	RequestsByPassenger(passengerID string) []*models.RideRequest
	OpenRequests() []*models.RideRequest

	BookingByID(id string) (*models.Booking, bool)
	BookingsByTrip(tripID string) []*models.Booking
	BookingsByPassenger(passengerID string) []*models.Booking

	// ReserveSeats persists the decremented trip, the new booking, and the
	// matched request (nil when booking directly) as one atomic write.
	ReserveSeats(t *models.Trip, b *models.Booking, req *models.RideRequest) error

	// ReleaseSeats persists the restored trip and the cancelled booking as
	// one atomic write.
	ReleaseSeats(t *models.Trip, b *models.Booking) error

	// ApplyTripTransition persists a trip status change together with any
	// cascaded booking updates and an optional driver profile update.
	ApplyTripTransition(t *models.Trip, bookings []*models.Booking, driver *models.User) error
}

type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]*models.User
	byPhone  map[string]string
	trips    map[string]*models.Trip
	requests map[string]*models.RideRequest
	bookings map[string]*models.Booking
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]*models.User),
		byPhone:  make(map[string]string),
		trips:    make(map[string]*models.Trip),
		requests: make(map[string]*models.RideRequest),
		bookings: make(map[string]*models.Booking),
	}
}

func (m *MemoryStore) CreateUser(u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
	m.byPhone[u.Phone] = u.ID
	return nil
}

func (m *MemoryStore) UserByID(id string) (*models.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, false
	}
	cp := *u
	return &cp, true
}

func (m *MemoryStore) UserByPhone(phone string) (*models.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byPhone[phone]
	if !ok {
		return nil, false
	}
	cp := *m.users[id]
	return &cp, true
}

func (m *MemoryStore) UpdateUser(u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *MemoryStore) CreateTrip(t *models.Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.trips[t.ID] = &cp
	return nil
}

func (m *MemoryStore) TripByID(id string) (*models.Trip, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trips[id]
	if !ok {
		return nil, false
	}
	cp := *t
	return &cp, true
}

func (m *MemoryStore) Trips() []*models.Trip {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Trip, 0, len(m.trips))
	for _, t := range m.trips {
		cp := *t
		out = append(out, &cp)
	}
	return out
}

func (m *MemoryStore) TripsByDriver(driverID string) []*models.Trip {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Trip
	for _, t := range m.trips {
		if t.DriverID == driverID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out
}

func (m *MemoryStore) CreateRequest(r *models.RideRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.requests[r.ID] = &cp
	return nil
}

func (m *MemoryStore) RequestByID(id string) (*models.RideRequest, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, false
	}
	cp := *r
	return &cp, true
}

func (m *MemoryStore) UpdateRequest(r *models.RideRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.requests[r.ID] = &cp
	return nil
}

func (m *MemoryStore) RequestsByPassenger(passengerID string) []*models.RideRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.RideRequest
	for _, r := range m.requests {
		if r.PassengerID == passengerID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out
}

func (m *MemoryStore) OpenRequests() []*models.RideRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.RideRequest
	for _, r := range m.requests {
		if r.Status == models.RequestOpen {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out
}

func (m *MemoryStore) BookingByID(id string) (*models.Booking, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, false
	}
	cp := *b
	return &cp, true
}

func (m *MemoryStore) BookingsByTrip(tripID string) []*models.Booking {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Booking
	for _, b := range m.bookings {
		if b.TripID == tripID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out
}

func (m *MemoryStore) BookingsByPassenger(passengerID string) []*models.Booking {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Booking
	for _, b := range m.bookings {
		if b.PassengerID == passengerID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out
}

func (m *MemoryStore) ReserveSeats(t *models.Trip, b *models.Booking, req *models.RideRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tc := *t
	bc := *b
	m.trips[t.ID] = &tc
	m.bookings[b.ID] = &bc
	if req != nil {
		rc := *req
		m.requests[req.ID] = &rc
	}
	return nil
}

func (m *MemoryStore) ReleaseSeats(t *models.Trip, b *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tc := *t
	bc := *b
	m.trips[t.ID] = &tc
	m.bookings[b.ID] = &bc
	return nil
}

func (m *MemoryStore) ApplyTripTransition(t *models.Trip, bookings []*models.Booking, driver *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tc := *t
	m.trips[t.ID] = &tc
	for _, b := range bookings {
		bc := *b
		m.bookings[b.ID] = &bc
	}
	if driver != nil {
		dc := *driver
		m.users[driver.ID] = &dc
	}
	return nil
}
