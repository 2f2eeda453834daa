// README: Driver store backed by PostgreSQL (drivers + driver_current_orders).
package driver

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"courier/internal/infra"
	"courier/internal/types"
)

type Store struct {
	db infra.Querier
}

func NewStore(db infra.Querier) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Driver, error) {
	return s.find(ctx, `
		SELECT id, name, avatar, lat, lng, updated_at
		FROM drivers
		WHERE id = $1`, id)
}

// FindWithBundleLocked row-locks the driver and loads its current orders.
func (s *Store) FindWithBundleLocked(ctx context.Context, id types.ID) (*Driver, error) {
	return s.find(ctx, `
		SELECT id, name, avatar, lat, lng, updated_at
		FROM drivers
		WHERE id = $1
		FOR UPDATE`, id)
}

func (s *Store) find(ctx context.Context, query string, id types.ID) (*Driver, error) {
	var d Driver
	var lat, lng *float64
	err := s.db.QueryRow(ctx, query, string(id)).Scan(&d.ID, &d.Name, &d.Avatar, &lat, &lng, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lat != nil && lng != nil {
		d.Location = &types.Point{Lat: *lat, Lng: *lng}
	}

	rows, err := s.db.Query(ctx, `
		SELECT order_id FROM driver_current_orders
		WHERE driver_id = $1
		ORDER BY position`, string(id),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var orderID string
		if err := rows.Scan(&orderID); err != nil {
			return nil, err
		}
		d.CurrentOrders = append(d.CurrentOrders, types.ID(orderID))
	}
	return &d, rows.Err()
}

// Save rewrites the driver's bundle to match d.CurrentOrders.
func (s *Store) Save(ctx context.Context, d *Driver) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM driver_current_orders WHERE driver_id = $1`, string(d.ID)); err != nil {
		return fmt.Errorf("clear bundle: %w", err)
	}
	for i, orderID := range d.CurrentOrders {
		if _, err := s.db.Exec(ctx, `
			INSERT INTO driver_current_orders (driver_id, order_id, position)
			VALUES ($1, $2, $3)`,
			string(d.ID), string(orderID), i+1,
		); err != nil {
			return fmt.Errorf("insert bundle order: %w", err)
		}
	}
	tag, err := s.db.Exec(ctx, `UPDATE drivers SET updated_at = $2 WHERE id = $1`, string(d.ID), d.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
