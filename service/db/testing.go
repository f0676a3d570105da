package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestStore wraps a Store with test cleanup functionality.
type TestStore struct {
	*Store
	pool      *pgxpool.Pool
	container *postgres.PostgresContainer
}

// NewTestStore creates a migrated Store for tests. It connects to
// TEST_DATABASE_URL when set and otherwise starts a throwaway Postgres container.
func NewTestStore(t *testing.T) *TestStore {
	t.Helper()
	ctx := context.Background()

	var container *postgres.PostgresContainer
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		var err error
		container, err = postgres.Run(ctx, "postgres:15-alpine",
			postgres.WithDatabase("poolsniper_test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			t.Fatalf("failed to start postgres container: %v", err)
		}
		dbURL, err = container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			_ = container.Terminate(ctx)
			t.Fatalf("failed to get connection string: %v", err)
		}
	}

	pool, err := Connect(ctx, dbURL)
	if err != nil {
		if container != nil {
			_ = container.Terminate(ctx)
		}
		t.Fatalf("failed to connect to test database: %v", err)
	}

	store := NewStore(pool, nil)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return &TestStore{
		Store:     store,
		pool:      pool,
		container: container,
	}
}

// Close closes the pool and stops the container, if one was started.
func (ts *TestStore) Close() {
	ts.pool.Close()
	if ts.container != nil {
		_ = ts.container.Terminate(context.Background())
	}
}

// Cleanup removes all data from test tables.
// Call this in tests to ensure clean state between test cases.
func (ts *TestStore) Cleanup(t *testing.T) {
	t.Helper()

	_, err := ts.pool.Exec(context.Background(), "TRUNCATE TABLE positions, completed_trades")
	if err != nil {
		t.Fatalf("failed to cleanup test database: %v", err)
	}
}

// MustExec executes a SQL statement and fails the test if it errors.
// Useful for setting up test fixtures.
func (ts *TestStore) MustExec(t *testing.T, query string, args ...interface{}) {
	t.Helper()

	_, err := ts.pool.Exec(context.Background(), query, args...)
	if err != nil {
		t.Fatalf("failed to execute query: %v\nQuery: %s", err, query)
	}
}

// SkipIfNoTestDB skips the test when no database can be provided:
// SKIP_DB_TESTS is set, TEST_DATABASE_URL is unreachable, or Docker is unavailable.
func SkipIfNoTestDB(t *testing.T) {
	t.Helper()

	if os.Getenv("SKIP_DB_TESTS") != "" {
		t.Skip("Skipping database test (SKIP_DB_TESTS is set)")
	}

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		testcontainers.SkipIfProviderIsNotHealthy(t)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Skipf("Skipping database test: cannot connect to test database: %v", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		t.Skipf("Skipping database test: cannot ping test database: %v", err)
	}
}
