package directory

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/carpool/internal/models"
	"github.com/example/carpool/internal/storage"
)

// Directory holds user records and answers the role checks every other
// component relies on.
type Directory struct {
	Store storage.Store
}

func New(store storage.Store) *Directory { return &Directory{Store: store} }

type RegisterInput struct {
	Name        string
	Phone       string
	Password    string
	Role        models.Role
	CarModel    string
	PlateNumber string
}

func (d *Directory) Register(in RegisterInput) (*models.User, error) {
	if in.Role != models.RolePassenger && in.Role != models.RoleDriver {
		return nil, models.ErrRoleForbidden.WithDetail("unknown role %q", in.Role)
	}
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Phone) == "" {
		return nil, models.ErrInvalidCredentials.WithDetail("name and phone are required")
	}
	if _, ok := d.Store.UserByPhone(in.Phone); ok {
		return nil, models.ErrPhoneTaken.WithDetail("phone %s already registered", in.Phone)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &models.User{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Phone:        in.Phone,
		PasswordHash: string(hash),
		Role:         in.Role,
		CreatedAt:    time.Now(),
	}
	if in.Role == models.RoleDriver {
		u.CarModel = in.CarModel
		u.PlateNumber = in.PlateNumber
		u.Rating = 5.0
	}
	if err := d.Store.CreateUser(u); err != nil {
		return nil, err
	}
	return u, nil
}

func (d *Directory) Authenticate(phone, password string) (*models.User, error) {
	u, ok := d.Store.UserByPhone(phone)
	if !ok {
		return nil, models.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, models.ErrInvalidCredentials
	}
	return u, nil
}

func (d *Directory) Get(id string) (*models.User, error) {
	u, ok := d.Store.UserByID(id)
	if !ok {
		return nil, models.ErrUserNotFound.WithDetail("user %s", id)
	}
	return u, nil
}
