package storage

import (
	"database/sql"

	_ "github.com/lib/pq"

	"github.com/example/carpool/internal/models"
)

// PostgresStore persists the engine state in Postgres. The fused seat
// accounting operations run inside a single transaction so the atomicity
// of the memory store carries over.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) CreateUser(u *models.User) error {
	_, err := p.db.Exec(`INSERT INTO users(id, name, phone, password_hash, role, car_model, plate_number, rating, completed_trips, created_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		u.ID, u.Name, u.Phone, u.PasswordHash, u.Role, u.CarModel, u.PlateNumber, u.Rating, u.CompletedTrips, u.CreatedAt)
	return err
}

func (p *PostgresStore) UserByID(id string) (*models.User, bool) {
	return p.scanUser(p.db.QueryRow(`SELECT id, name, phone, password_hash, role, car_model, plate_number, rating, completed_trips, created_at FROM users WHERE id=$1`, id))
}

func (p *PostgresStore) UserByPhone(phone string) (*models.User, bool) {
	return p.scanUser(p.db.QueryRow(`SELECT id, name, phone, password_hash, role, car_model, plate_number, rating, completed_trips, created_at FROM users WHERE phone=$1`, phone))
}

func (p *PostgresStore) scanUser(row *sql.Row) (*models.User, bool) {
	var u models.User
	err := row.Scan(&u.ID, &u.Name, &u.Phone, &u.PasswordHash, &u.Role, &u.CarModel, &u.PlateNumber, &u.Rating, &u.CompletedTrips, &u.CreatedAt)
	if err != nil {
		return nil, false
	}
	return &u, true
}

func (p *PostgresStore) UpdateUser(u *models.User) error {
	_, err := p.db.Exec(`UPDATE users SET name=$1, rating=$2, completed_trips=$3 WHERE id=$4`,
		u.Name, u.Rating, u.CompletedTrips, u.ID)
	return err
}

func (p *PostgresStore) CreateTrip(t *models.Trip) error {
	_, err := p.db.Exec(`INSERT INTO trips(id, driver_id, origin, destination, departure, capacity, available, price_per_seat, status, created_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		t.ID, t.DriverID, t.Origin, t.Destination, t.Departure, t.Capacity, t.Available, t.PricePerSeat, t.Status, t.CreatedAt)
	return err
}

func (p *PostgresStore) TripByID(id string) (*models.Trip, bool) {
	row := p.db.QueryRow(`SELECT id, driver_id, origin, destination, departure, capacity, available, price_per_seat, status, created_at FROM trips WHERE id=$1`, id)
	var t models.Trip
	if err := row.Scan(&t.ID, &t.DriverID, &t.Origin, &t.Destination, &t.Departure, &t.Capacity, &t.Available, &t.PricePerSeat, &t.Status, &t.CreatedAt); err != nil {
		return nil, false
	}
	return &t, true
}

func (p *PostgresStore) Trips() []*models.Trip {
	return p.queryTrips(`SELECT id, driver_id, origin, destination, departure, capacity, available, price_per_seat, status, created_at FROM trips`)
}

func (p *PostgresStore) TripsByDriver(driverID string) []*models.Trip {
	return p.queryTrips(`SELECT id, driver_id, origin, destination, departure, capacity, available, price_per_seat, status, created_at FROM trips WHERE driver_id=$1`, driverID)
}

func (p *PostgresStore) queryTrips(q string, args ...any) []*models.Trip {
	rows, err := p.db.Query(q, args...)
	if err != nil {
		return nil
	}
	defer rows.Close()
	var out []*models.Trip
	for rows.Next() {
		var t models.Trip
		if err := rows.Scan(&t.ID, &t.DriverID, &t.Origin, &t.Destination, &t.Departure, &t.Capacity, &t.Available, &t.PricePerSeat, &t.Status, &t.CreatedAt); err != nil {
			continue
		}
		out = append(out, &t)
	}
	return out
}

func (p *PostgresStore) CreateRequest(r *models.RideRequest) error {
	_, err := p.db.Exec(`INSERT INTO ride_requests(id, passenger_id, origin, destination, window_from, window_to, seats, note, status, created_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		r.ID, r.PassengerID, r.Origin, r.Destination, r.Window.From, r.Window.To, r.Seats, r.Note, r.Status, r.CreatedAt)
	return err
}

func (p *PostgresStore) RequestByID(id string) (*models.RideRequest, bool) {
	row := p.db.QueryRow(`SELECT id, passenger_id, origin, destination, window_from, window_to, seats, note, status, created_at FROM ride_requests WHERE id=$1`, id)
	var r models.RideRequest
	if err := row.Scan(&r.ID, &r.PassengerID, &r.Origin, &r.Destination, &r.Window.From, &r.Window.To, &r.Seats, &r.Note, &r.Status, &r.CreatedAt); err != nil {
		return nil, false
	}
	return &r, true
}

func (p *PostgresStore) UpdateRequest(r *models.RideRequest) error {
	_, err := p.db.Exec(`UPDATE ride_requests SET status=$1 WHERE id=$2`, r.Status, r.ID)
	return err
}

func (p *PostgresStore) RequestsByPassenger(passengerID string) []*models.RideRequest {
	return p.queryRequests(`SELECT id, passenger_id, origin, destination, window_from, window_to, seats, note, status, created_at FROM ride_requests WHERE passenger_id=$1`, passengerID)
}

func (p *PostgresStore) OpenRequests() []*models.RideRequest {
	return p.queryRequests(`SELECT id, passenger_id, origin, destination, window_from, window_to, seats, note, status, created_at FROM ride_requests WHERE status=$1`, models.RequestOpen)
}

func (p *PostgresStore) queryRequests(q string, args ...any) []*models.RideRequest {
	rows, err := p.db.Query(q, args...)
	if err != nil {
		return nil
	}
	defer rows.Close()
	var out []*models.RideRequest
	for rows.Next() {
		var r models.RideRequest
		if err := rows.Scan(&r.ID, &r.PassengerID, &r.Origin, &r.Destination, &r.Window.From, &r.Window.To, &r.Seats, &r.Note, &r.Status, &r.CreatedAt); err != nil {
			continue
		}
		out = append(out, &r)
	}
	return out
}

func (p *PostgresStore) BookingByID(id string) (*models.Booking, bool) {
	row := p.db.QueryRow(`SELECT id, trip_id, passenger_id, request_id, seats, amount, status, payment, created_at FROM bookings WHERE id=$1`, id)
	var b models.Booking
	if err := row.Scan(&b.ID, &b.TripID, &b.PassengerID, &b.RequestID, &b.Seats, &b.Amount, &b.Status, &b.Payment, &b.CreatedAt); err != nil {
		return nil, false
	}
	return &b, true
}

func (p *PostgresStore) BookingsByTrip(tripID string) []*models.Booking {
	return p.queryBookings(`SELECT id, trip_id, passenger_id, request_id, seats, amount, status, payment, created_at FROM bookings WHERE trip_id=$1`, tripID)
}

func (p *PostgresStore) BookingsByPassenger(passengerID string) []*models.Booking {
	return p.queryBookings(`SELECT id, trip_id, passenger_id, request_id, seats, amount, status, payment, created_at FROM bookings WHERE passenger_id=$1`, passengerID)
}

func (p *PostgresStore) queryBookings(q string, args ...any) []*models.Booking {
	rows, err := p.db.Query(q, args...)
	if err != nil {
		return nil
	}
	defer rows.Close()
	var out []*models.Booking
	for rows.Next() {
		var b models.Booking
		if err := rows.Scan(&b.ID, &b.TripID, &b.PassengerID, &b.RequestID, &b.Seats, &b.Amount, &b.Status, &b.Payment, &b.CreatedAt); err != nil {
			continue
		}
		out = append(out, &b)
	}
	return out
}

func (p *PostgresStore) ReserveSeats(t *models.Trip, b *models.Booking, req *models.RideRequest) error {
	tx, err := p.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`UPDATE trips SET available=$1 WHERE id=$2`, t.Available, t.ID); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO bookings(id, trip_id, passenger_id, request_id, seats, amount, status, payment, created_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		b.ID, b.TripID, b.PassengerID, b.RequestID, b.Seats, b.Amount, b.Status, b.Payment, b.CreatedAt); err != nil {
		return err
	}
	if req != nil {
		if _, err := tx.Exec(`UPDATE ride_requests SET status=$1 WHERE id=$2`, req.Status, req.ID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *PostgresStore) ReleaseSeats(t *models.Trip, b *models.Booking) error {
	tx, err := p.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`UPDATE trips SET available=$1 WHERE id=$2`, t.Available, t.ID); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE bookings SET status=$1 WHERE id=$2`, b.Status, b.ID); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) ApplyTripTransition(t *models.Trip, bookings []*models.Booking, driver *models.User) error {
	tx, err := p.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`UPDATE trips SET status=$1, available=$2 WHERE id=$3`, t.Status, t.Available, t.ID); err != nil {
		return err
	}
	for _, b := range bookings {
		if _, err := tx.Exec(`UPDATE bookings SET status=$1, payment=$2 WHERE id=$3`, b.Status, b.Payment, b.ID); err != nil {
			return err
		}
	}
	if driver != nil {
		if _, err := tx.Exec(`UPDATE users SET completed_trips=$1 WHERE id=$2`, driver.CompletedTrips, driver.ID); err != nil {
			return err
		}
	}
	return tx.Commit()
}
