package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/carpool/internal/auth"
	"github.com/example/carpool/internal/board"
	"github.com/example/carpool/internal/booking"
	"github.com/example/carpool/internal/config"
	"github.com/example/carpool/internal/directory"
	"github.com/example/carpool/internal/dispatch"
	"github.com/example/carpool/internal/ingest"
	"github.com/example/carpool/internal/ledger"
	"github.com/example/carpool/internal/locks"
	"github.com/example/carpool/internal/models"
	"github.com/example/carpool/internal/settlement"
	"github.com/example/carpool/internal/storage"
)

// Server is the thin HTTP facade over the engine. All business rules live in
// the components; handlers only decode, resolve the caller, and translate
// typed failures into status codes.
type Server struct {
	Dir        *directory.Directory
	Ledger     *ledger.Ledger
	Board      *board.Board
	Booking    *booking.Coordinator
	Settlement *settlement.Tracker
	Tokens     *auth.TokenService
	WSReg      *dispatch.WSRegistry

	logger *slog.Logger
	mux    *mux.Router
}

// NewServer wires the engine from config: Postgres or memory store, Kafka
// events when brokers are configured, Redis idempotency tokens when Redis is
// configured.
func NewServer(cfg config.ServerConfig, logger *slog.Logger) *Server {
	var store storage.Store
	if cfg.PGDSN != "" {
		if ps, err := storage.NewPostgresStore(cfg.PGDSN); err == nil {
			store = ps
		} else {
			logger.Warn("postgres unavailable, using memory store", "error", err)
		}
	}
	if store == nil {
		store = storage.NewMemoryStore()
	}

	var events ledger.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		events = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	}

	lm := locks.NewManager(cfg.LockTTL)
	wsreg := dispatch.NewWSRegistry(logger.With("component", "ws"))

	dir := directory.New(store)
	led := ledger.New(store, lm, logger.With("component", "ledger"))
	led.Events = events
	led.LockAttempts = cfg.LockAttempts
	led.LockBackoff = cfg.LockBackoff

	brd := board.New(store, logger.With("component", "board"))

	coord := booking.New(store, lm, logger.With("component", "booking"))
	coord.Notify = wsreg
	if events != nil {
		coord.Events = events
	}
	coord.LockAttempts = cfg.LockAttempts
	coord.LockBackoff = cfg.LockBackoff
	if cfg.RedisAddr != "" {
		coord.Tokens = booking.NewRedisTokens(cfg.RedisAddr, cfg.RedisPassword, cfg.IdempotencyTTL)
	}

	tracker := settlement.New(store, logger.With("component", "settlement"))
	if events != nil {
		tracker.Events = events
	}
	led.Settlement = tracker

	s := &Server{
		Dir:        dir,
		Ledger:     led,
		Board:      brd,
		Booking:    coord,
		Settlement: tracker,
		Tokens:     auth.NewTokenService(cfg.JWTSecret, cfg.JWTExpiry),
		WSReg:      wsreg,
		logger:     logger,
		mux:        mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{driver_id}", s.handleWS)

	s.mux.HandleFunc("/api/v1/auth/register", s.handleRegister).Methods("POST")
	s.mux.HandleFunc("/api/v1/auth/login", s.handleLogin).Methods("POST")

	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.Use(s.authMiddleware)
	api.HandleFunc("/trips", s.handlePublishTrip).Methods("POST")
	api.HandleFunc("/trips", s.handleQueryTrips).Methods("GET")
	api.HandleFunc("/trips/{id}/status", s.handleAdvanceTrip).Methods("PUT")
	api.HandleFunc("/my-trips", s.handleMyTrips).Methods("GET")
	api.HandleFunc("/ride-requests", s.handlePostRequest).Methods("POST")
	api.HandleFunc("/ride-requests", s.handleListRequests).Methods("GET")
	api.HandleFunc("/ride-requests/{id}/cancel", s.handleCancelRequest).Methods("PUT")
	api.HandleFunc("/bookings", s.handleReserve).Methods("POST")
	api.HandleFunc("/bookings/{id}/cancel", s.handleCancelBooking).Methods("PUT")
	api.HandleFunc("/bookings/{id}/pay", s.handleMarkPaid).Methods("PUT")
	api.HandleFunc("/settlement/summary", s.handleSummary).Methods("GET")

	s.mux.HandleFunc("/internal/requests/sweep", s.handleSweep).Methods("POST")
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name        string `json:"name"`
		Phone       string `json:"phone"`
		Password    string `json:"password"`
		Role        string `json:"role"`
		CarModel    string `json:"car_model"`
		PlateNumber string `json:"plate_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	u, err := s.Dir.Register(directory.RegisterInput{
		Name: in.Name, Phone: in.Phone, Password: in.Password,
		Role: models.Role(in.Role), CarModel: in.CarModel, PlateNumber: in.PlateNumber,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	token, err := s.Tokens.Issue(u)
	if err != nil {
		http.Error(w, "token issue failed", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"user": u, "token": token})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Phone    string `json:"phone"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	u, err := s.Dir.Authenticate(in.Phone, in.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	token, err := s.Tokens.Issue(u)
	if err != nil {
		http.Error(w, "token issue failed", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"user": u, "token": token})
}

func (s *Server) handlePublishTrip(w http.ResponseWriter, r *http.Request) {
	caller := callerFromContext(r.Context())
	var in struct {
		Origin      string    `json:"origin"`
		Destination string    `json:"destination"`
		Departure   time.Time `json:"departure"`
		Capacity    int       `json:"capacity"`
		Price       float64   `json:"price_per_seat"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	t, err := s.Ledger.Publish(caller, in.Origin, in.Destination, in.Departure, in.Capacity, in.Price)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleAdvanceTrip(w http.ResponseWriter, r *http.Request) {
	caller := callerFromContext(r.Context())
	var in struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	affected, err := s.Ledger.Advance(r.Context(), caller, mux.Vars(r)["id"], models.TripStatus(in.Status))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"cancelled_bookings": affected})
}

func (s *Server) handleQueryTrips(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := models.TripFilter{Origin: q.Get("origin"), Destination: q.Get("destination")}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid from", http.StatusBadRequest)
			return
		}
		f.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid to", http.StatusBadRequest)
			return
		}
		f.To = t
	}
	trips := make([]*models.Trip, 0)
	for t := range s.Ledger.Query(f) {
		trips = append(trips, t)
	}
	s.writeJSON(w, http.StatusOK, trips)
}

// handleMyTrips mirrors the profile view: drivers see their published trips,
// passengers see their bookings.
func (s *Server) handleMyTrips(w http.ResponseWriter, r *http.Request) {
	caller := callerFromContext(r.Context())
	if caller.Role == models.RoleDriver {
		s.writeJSON(w, http.StatusOK, s.Ledger.TripsByDriver(caller.ID))
		return
	}
	bookings := make([]*models.Booking, 0)
	for b := range s.Settlement.Bookings(caller.ID) {
		bookings = append(bookings, b)
	}
	s.writeJSON(w, http.StatusOK, bookings)
}

func (s *Server) handlePostRequest(w http.ResponseWriter, r *http.Request) {
	caller := callerFromContext(r.Context())
	var in struct {
		Origin      string    `json:"origin"`
		Destination string    `json:"destination"`
		WindowFrom  time.Time `json:"window_from"`
		WindowTo    time.Time `json:"window_to"`
		Seats       int       `json:"seats"`
		Note        string    `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req, err := s.Board.Post(caller, in.Origin, in.Destination, models.Window{From: in.WindowFrom, To: in.WindowTo}, in.Seats, in.Note)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, req)
}

// handleListRequests: drivers browse open requests to accept; passengers see
// their own.
func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	caller := callerFromContext(r.Context())
	if caller.Role == models.RoleDriver {
		s.writeJSON(w, http.StatusOK, s.Board.OpenRequests())
		return
	}
	s.writeJSON(w, http.StatusOK, s.Board.RequestsByPassenger(caller.ID))
}

func (s *Server) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	caller := callerFromContext(r.Context())
	if err := s.Board.Cancel(caller, mux.Vars(r)["id"]); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleReserve(w http.ResponseWriter, r *http.Request) {
	caller := callerFromContext(r.Context())
	var in struct {
		TripID    string `json:"trip_id"`
		Seats     int    `json:"seats"`
		RequestID string `json:"request_id"`
		Token     string `json:"idempotency_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	b, err := s.Booking.Reserve(r.Context(), caller, booking.ReserveInput{
		TripID: in.TripID, Seats: in.Seats, RequestID: in.RequestID, Token: in.Token,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	caller := callerFromContext(r.Context())
	if err := s.Booking.CancelBooking(r.Context(), caller, mux.Vars(r)["id"]); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	caller := callerFromContext(r.Context())
	if err := s.Settlement.MarkPaid(caller, mux.Vars(r)["id"]); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"payment": string(models.PaymentPaid)})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	caller := callerFromContext(r.Context())
	bookings := make([]*models.Booking, 0)
	for b := range s.Settlement.Bookings(caller.ID) {
		bookings = append(bookings, b)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"summary":  s.Settlement.Summary(caller.ID),
		"bookings": bookings,
	})
}

// handleSweep is the external time check that drives request expiry; the
// engine itself never runs timers.
func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	expired := s.Board.ExpireStale(time.Now())
	s.writeJSON(w, http.StatusOK, map[string]any{"expired": expired})
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	driverID := mux.Vars(r)["driver_id"]
	token := r.URL.Query().Get("token")
	claims, err := s.Tokens.Validate(token)
	if err != nil || claims.UserID != driverID || claims.Role != models.RoleDriver {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	s.WSReg.Add(driverID, conn)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var de *models.DomainError
	status := http.StatusInternalServerError
	code := "internal"
	if errors.As(err, &de) {
		code = de.Code
		switch de.Kind {
		case models.KindValidation:
			status = http.StatusBadRequest
		case models.KindNotFound:
			status = http.StatusNotFound
		case models.KindStateConflict:
			status = http.StatusConflict
		case models.KindConcurrencyConflict:
			status = http.StatusServiceUnavailable
			w.Header().Set("Retry-After", "1")
		case models.KindForbidden:
			status = http.StatusForbidden
		}
	} else {
		s.logger.Error("unhandled error", "error", err)
	}
	s.writeJSON(w, status, map[string]string{"error": code, "detail": err.Error()})
}
