package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testMigrationsDir = filepath.Join("..", "..", "db", "migrations")

// startPostgres boots a throwaway postgres container and returns an open
// handle. The container is terminated when the test finishes.
func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:18",
		postgres.WithDatabase("intake_test"),
		postgres.WithUsername("intake_test"),
		postgres.WithPassword("intake_test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Errorf("terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func startMigratedStore(t *testing.T) (*PostgresStore, *sql.DB) {
	t.Helper()
	db := startPostgres(t)
	if err := ApplyMigrations(context.Background(), db, testMigrationsDir); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return NewPostgresStore(db), db
}

func seedUser(t *testing.T, s *PostgresStore, id, role, name string) User {
	t.Helper()
	user, err := s.CreateUser(context.Background(), User{
		ID:           id,
		Email:        id + "@example.com",
		PasswordHash: "hash",
		FullName:     name,
		Role:         role,
	})
	if err != nil {
		t.Fatalf("create user %s: %v", id, err)
	}
	return user
}
