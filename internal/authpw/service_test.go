package authpw

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"intake/api/internal/store"
	"intake/api/internal/workflow"
)

// mockUserStore is a mock implementation of UserStore for testing
type mockUserStore struct {
	users      map[string]store.User
	emailIndex map[string]string
	lookupErr  error
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:      make(map[string]store.User),
		emailIndex: make(map[string]string),
	}
}

func (m *mockUserStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if m.lookupErr != nil {
		return store.User{}, m.lookupErr
	}
	if userID, ok := m.emailIndex[email]; ok {
		return m.users[userID], nil
	}
	return store.User{}, fmt.Errorf("user %s: %w", email, workflow.ErrNotFound)
}

func (m *mockUserStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return store.User{}, fmt.Errorf("user %s: %w", id, workflow.ErrNotFound)
}

func (m *mockUserStore) CreateUser(ctx context.Context, user store.User) (store.User, error) {
	m.users[user.ID] = user
	m.emailIndex[user.Email] = user.ID
	return user, nil
}

func newTestService(m *mockUserStore) *Service {
	svc := NewService(m)
	svc.cost = bcrypt.MinCost
	return svc
}

func TestRegisterDefaultsToRequestor(t *testing.T) {
	m := newMockUserStore()
	svc := newTestService(m)

	user, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "  Alice@Example.com ",
		Password: "password123",
		FullName: "Alice",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if user.Role != "requestor" {
		t.Fatalf("expected requestor role, got %q", user.Role)
	}
	if user.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if user.PasswordHash == "password123" || user.PasswordHash == "" {
		t.Fatal("expected password to be hashed")
	}
	if user.ID == "" {
		t.Fatal("expected generated id")
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc := newTestService(newMockUserStore())
	req := RegisterRequest{Email: "bob@example.com", Password: "password123", FullName: "Bob"}
	if _, err := svc.Register(context.Background(), req); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	if _, err := svc.Register(context.Background(), req); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(newMockUserStore())
	cases := []struct {
		name string
		req  RegisterRequest
	}{
		{name: "missing email", req: RegisterRequest{Password: "password123", FullName: "A"}},
		{name: "bad email", req: RegisterRequest{Email: "not-an-email", Password: "password123", FullName: "A"}},
		{name: "short password", req: RegisterRequest{Email: "a@example.com", Password: "short", FullName: "A"}},
		{name: "missing name", req: RegisterRequest{Email: "a@example.com", Password: "password123"}},
		{name: "unknown role", req: RegisterRequest{Email: "a@example.com", Password: "password123", FullName: "A", Role: "owner"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tc.req)
			var validation *ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestRegisterSurfacesStoreFailure(t *testing.T) {
	m := newMockUserStore()
	m.lookupErr = errors.New("connection refused")
	svc := newTestService(m)
	_, err := svc.Register(context.Background(), RegisterRequest{Email: "a@example.com", Password: "password123", FullName: "A"})
	if err == nil || errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	svc := newTestService(newMockUserStore())
	registered, err := svc.Register(context.Background(), RegisterRequest{
		Email: "carol@example.com", Password: "password123", FullName: "Carol", Role: "committee",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	user, err := svc.Login(context.Background(), "CAROL@example.com", "password123")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if user.ID != registered.ID || user.Role != "committee" {
		t.Fatalf("unexpected user: %+v", user)
	}

	if _, err := svc.Login(context.Background(), "carol@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, err := svc.Login(context.Background(), "nobody@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
	var validation *ValidationError
	if _, err := svc.Login(context.Background(), "", ""); !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}
