// README: Order store backed by PostgreSQL.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

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

func (s *Store) Create(ctx context.Context, o *Order) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO orders (
			id, customer_id, restaurant_id, driver_id, status, tracking_info, status_version,
			distance, driver_tips, delivery_address, delivery_lat, delivery_lng,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $13
		)`,
		string(o.ID),
		string(o.CustomerID),
		string(o.RestaurantID),
		toStringPtr(o.DriverID),
		string(o.Status),
		string(o.Tracking),
		o.StatusVersion,
		o.Distance, o.DriverTips,
		o.DeliveryAddress, o.DeliveryLocation.Lat, o.DeliveryLocation.Lng,
		o.CreatedAt,
	)
	return err
}

const selectOrder = `
	SELECT o.id, o.customer_id, o.restaurant_id, o.driver_id, o.status, o.tracking_info, o.status_version,
	       o.distance, o.driver_tips, o.delivery_address, o.delivery_lat, o.delivery_lng,
	       o.created_at, o.updated_at, o.dispatched_at, o.delivered_at`

func (s *Store) Get(ctx context.Context, id types.ID) (*Order, error) {
	row := s.db.QueryRow(ctx, selectOrder+`
		FROM orders o
		WHERE o.id = $1`, string(id),
	)
	o, err := scanOrder(row)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// FindWithRelationsLocked loads the order with its customer and restaurant and
// row-locks the order for the rest of the surrounding transaction.
func (s *Store) FindWithRelationsLocked(ctx context.Context, id types.ID) (*Order, error) {
	row := s.db.QueryRow(ctx, selectOrder+`,
	       c.id, c.name, c.avatar, c.fcm_token,
	       r.id, r.name, r.avatar, r.address, r.lat, r.lng, r.fcm_token
		FROM orders o
		JOIN customers c ON c.id = o.customer_id
		JOIN restaurants r ON r.id = o.restaurant_id
		WHERE o.id = $1
		FOR UPDATE OF o`, string(id),
	)
	var c, r Party
	o, err := scanOrder(row,
		&c.ID, &c.Name, &c.Avatar, &c.FCMToken,
		&r.ID, &r.Name, &r.Avatar, &r.Address, &r.Location.Lat, &r.Location.Lng, &r.FCMToken,
	)
	if err != nil {
		return nil, err
	}
	c.Address = o.DeliveryAddress
	c.Location = o.DeliveryLocation
	o.Customer = &c
	o.Restaurant = &r
	return o, nil
}

// Save writes the mutable driver-side fields. The write is conditional on the
// version read, so a concurrent writer surfaces as ErrConflict.
func (s *Store) Save(ctx context.Context, o *Order) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET driver_id = $2,
		    status = $3,
		    tracking_info = $4,
		    status_version = status_version + 1,
		    dispatched_at = $5,
		    delivered_at = $6,
		    updated_at = $7
		WHERE id = $1 AND status_version = $8`,
		string(o.ID),
		toStringPtr(o.DriverID),
		string(o.Status),
		string(o.Tracking),
		o.DispatchedAt,
		o.DeliveredAt,
		o.UpdatedAt,
		o.StatusVersion,
	)
	if err != nil {
		return fmt.Errorf("save order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	o.StatusVersion++
	return nil
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO order_state_events (
			order_id, from_status, to_status, actor_type, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.OrderID),
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorType,
		toStringPtr(e.ActorID),
		e.CreatedAt,
	)
	return err
}

func (s *Store) Events(ctx context.Context, orderID types.ID) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, order_id, from_status, to_status, actor_type, actor_id, created_at
		FROM order_state_events
		WHERE order_id = $1
		ORDER BY id`, string(orderID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var actorID *string
		if err := rows.Scan(&e.ID, &e.OrderID, &e.FromStatus, &e.ToStatus, &e.ActorType, &actorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		if actorID != nil {
			id := types.ID(*actorID)
			e.ActorID = &id
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row, extra ...any) (*Order, error) {
	var o Order
	var driverID *string
	var dispatchedAt, deliveredAt *time.Time

	dest := []any{
		&o.ID, &o.CustomerID, &o.RestaurantID, &driverID, &o.Status, &o.Tracking, &o.StatusVersion,
		&o.Distance, &o.DriverTips, &o.DeliveryAddress, &o.DeliveryLocation.Lat, &o.DeliveryLocation.Lng,
		&o.CreatedAt, &o.UpdatedAt, &dispatchedAt, &deliveredAt,
	}
	err := row.Scan(append(dest, extra...)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if driverID != nil {
		d := types.ID(*driverID)
		o.DriverID = &d
	}
	o.DispatchedAt = dispatchedAt
	o.DeliveredAt = deliveredAt
	return &o, nil
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
