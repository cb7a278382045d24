package integration

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"antarin/internal/database/migrations"
	"antarin/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestDB represents a test database instance.
type TestDB struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	ConnStr   string
}

// SetupTestDB creates a PostgreSQL test container, applies the embedded
// migrations and returns a connection pool.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	migrate(t, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("failed to create connection pool: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	t.Cleanup(func() {
		pool.Close()
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	return &TestDB{
		Container: postgresContainer,
		Pool:      pool,
		ConnStr:   connStr,
	}
}

func migrate(t *testing.T, connStr string) {
	t.Helper()

	db, err := sql.Open("pgx", connStr)
	if err != nil {
		t.Fatalf("failed to open database for migrations: %v", err)
	}
	defer db.Close()

	if err := migrations.Run(db); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}
}

// CleanupDB removes all data from the domain tables.
func CleanupDB(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	ctx := context.Background()

	tables := []string{"order_items", "orders", "couriers", "customers"}
	for _, table := range tables {
		_, err := pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s", table))
		if err != nil {
			t.Logf("failed to clean table %s: %v", table, err)
		}
	}
}

// SeedCustomer inserts a customer row.
func SeedCustomer(t *testing.T, pool *pgxpool.Pool, phone, name string) {
	t.Helper()

	_, err := pool.Exec(context.Background(),
		"INSERT INTO customers (phone, name, has_shared_location) VALUES ($1, $2, TRUE)",
		phone, name,
	)
	if err != nil {
		t.Fatalf("failed to seed customer %s: %v", phone, err)
	}
}

// SeedCourier inserts a courier row with a fixed id and position.
func SeedCourier(t *testing.T, pool *pgxpool.Pool, id int64, phone string, shiftCode int, status model.CourierStatus, lat, lng float64) {
	t.Helper()

	_, err := pool.Exec(context.Background(),
		`INSERT INTO couriers (id, name, phone, shift_code, status, is_active, lat, lng)
		 VALUES ($1, $2, $3, $4, $5, TRUE, $6, $7)`,
		id, fmt.Sprintf("Kurir %d", id), phone, shiftCode, status.String(), lat, lng,
	)
	if err != nil {
		t.Fatalf("failed to seed courier %d: %v", id, err)
	}
}
