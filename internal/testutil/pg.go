// README: Shared helpers for DB-backed tests (skipped unless COURIER_TEST_DSN is set).
package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"courier/migrations"
)

// tables is truncated in one statement so FK order does not matter.
const tables = `driver_progress_stage_orders, driver_progress_stages, driver_current_orders,
	order_state_events, orders, drivers, restaurants, customers, finance_rules`

// NewPool connects to COURIER_TEST_DSN, applies migrations and empties every table.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("COURIER_TEST_DSN")
	if dsn == "" {
		t.Skip("COURIER_TEST_DSN not set; skipping DB-backed tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := migrations.Apply(ctx, db); err != nil {
		t.Fatalf("apply migration: %v", err)
	}
	if _, err := db.Exec(ctx, "TRUNCATE TABLE "+tables+" RESTART IDENTITY"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	return db
}

// Fixture ids seeded by Seed.
const (
	CustomerID   = "11111111-1111-4111-8111-111111111111"
	RestaurantID = "22222222-2222-4222-8222-222222222222"
	DriverID     = "33333333-3333-4333-8333-333333333333"
)

// Seed inserts one customer, restaurant and driver.
func Seed(t *testing.T, db *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()
	stmts := []string{
		`INSERT INTO customers (id, name, avatar) VALUES ('` + CustomerID + `', 'Ada', 'ada.png')`,
		`INSERT INTO restaurants (id, name, address, lat, lng) VALUES ('` + RestaurantID + `', 'Noodle Bar', '1 Main St', 25.03, 121.56)`,
		`INSERT INTO drivers (id, name, lat, lng) VALUES ('` + DriverID + `', 'Lin', 25.04, 121.55)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(ctx, stmt); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

// InsertOrder adds a dispatchable order for the seeded customer and restaurant.
func InsertOrder(t *testing.T, db *pgxpool.Pool, id string, distance, tips float64) {
	t.Helper()
	_, err := db.Exec(context.Background(), `
		INSERT INTO orders (id, customer_id, restaurant_id, status, tracking_info, distance, driver_tips, delivery_address)
		VALUES ($1, $2, $3, 'PREPARING', 'PREPARING', $4, $5, '9 Side St')`,
		id, CustomerID, RestaurantID, distance, tips,
	)
	if err != nil {
		t.Fatalf("insert order: %v", err)
	}
}
