// Package authpw provides email/password registration and login.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"intake/api/internal/rbac"
	"intake/api/internal/store"
	"intake/api/internal/util"
	"intake/api/internal/workflow"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// ValidationError reports a rejected registration or login field.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// UserStore defines the storage interface for auth
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, id string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) (store.User, error)
}

type Service struct {
	store UserStore
	cost  int
}

func NewService(store UserStore) *Service {
	return &Service{store: store, cost: bcrypt.DefaultCost}
}

type RegisterRequest struct {
	Email      string
	Password   string
	FullName   string
	Role       string
	Department string
	Phone      string
}

// Register creates an account. An empty role defaults to requestor.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (store.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	fullName := strings.TrimSpace(req.FullName)
	if email == "" || req.Password == "" || fullName == "" {
		return store.User{}, &ValidationError{Message: "email, password, and full name are required"}
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return store.User{}, &ValidationError{Message: "email is not valid"}
	}
	if len(req.Password) < 8 {
		return store.User{}, &ValidationError{Message: "password must be at least 8 characters"}
	}
	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = string(rbac.RoleRequestor)
	}
	if !rbac.Valid(role) {
		return store.User{}, &ValidationError{Message: fmt.Sprintf("role %q is not valid", role)}
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return store.User{}, ErrEmailTaken
	} else if !errors.Is(err, workflow.ErrNotFound) {
		return store.User{}, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, store.User{
		ID:           util.NewID("usr"),
		Email:        email,
		PasswordHash: string(hash),
		FullName:     fullName,
		Role:         role,
		Department:   strings.TrimSpace(req.Department),
		Phone:        strings.TrimSpace(req.Phone),
	})
	if err != nil {
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Login returns the account whose password matches. Unknown emails and wrong
// passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (store.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return store.User{}, &ValidationError{Message: "email and password are required"}
	}
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, workflow.ErrNotFound) {
			return store.User{}, ErrInvalidCredentials
		}
		return store.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (s *Service) User(ctx context.Context, id string) (store.User, error) {
	return s.store.GetUserByID(ctx, id)
}
