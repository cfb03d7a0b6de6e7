// Package users is the credential store: accounts with bcrypt password hashes.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mbolis/quick-forms/database"
	"github.com/mbolis/quick-forms/model"
	"golang.org/x/crypto/bcrypt"
)

var validate = validator.New()

type Registration struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// registrationError turns validator failures into one short message per field.
func registrationError(err error) error {
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return model.Invalid("invalid registration: %s", err)
	}

	msgs := make([]string, len(fieldErrs))
	for i, fe := range fieldErrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs[i] = field + " is required"
		case "email":
			msgs[i] = field + " must be a valid email address"
		case "min":
			msgs[i] = fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		case "max":
			msgs[i] = fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		default:
			msgs[i] = field + " is invalid"
		}
	}
	return model.Invalid("%s", strings.Join(msgs, "; "))
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db}
}

func (s *Store) Register(ctx context.Context, reg Registration) (int64, error) {
	reg.Name = strings.TrimSpace(reg.Name)
	reg.Email = normalizeEmail(reg.Email)
	if err := validate.Struct(reg); err != nil {
		return 0, registrationError(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("bcrypt: %w", err)
	}

	var id int64
	err = s.db.
		QueryRowContext(ctx, "INSERT INTO user (name, email, password_hash) VALUES (?, ?, ?) RETURNING id", reg.Name, reg.Email, hash).
		Scan(&id)
	if database.IsUniqueViolation(err) {
		return 0, model.Conflict("email %s is already registered", reg.Email)
	}
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return id, nil
}

// Authenticate checks a password against the stored hash; any mismatch,
// including an unknown email, is reported as Unauthenticated.
func (s *Store) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	var user model.User
	var hash []byte
	err := s.db.
		QueryRowContext(ctx, "SELECT id, name, email, password_hash FROM user WHERE email = ?", normalizeEmail(email)).
		Scan(&user.ID, &user.Name, &user.Email, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.Unauthenticated("invalid email or password")
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}

	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return nil, model.Unauthenticated("invalid email or password")
	}
	return &user, nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.find(ctx, "email = ?", normalizeEmail(email))
}

func (s *Store) FindByID(ctx context.Context, id int64) (*model.User, error) {
	return s.find(ctx, "id = ?", id)
}

func (s *Store) find(ctx context.Context, where string, arg any) (*model.User, error) {
	var user model.User
	err := s.db.
		QueryRowContext(ctx, "SELECT id, name, email FROM user WHERE "+where, arg).
		Scan(&user.ID, &user.Name, &user.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	return &user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
