// README: Order aggregate, driver-side status/tracking definitions and transition table.
package order

import (
	"errors"
	"time"

	"courier/internal/types"
)

var (
	ErrNotFound     = errors.New("order not found")
	ErrConflict     = errors.New("order state conflict")
	ErrInvalidState = errors.New("invalid state transition")
	ErrTaken        = errors.New("order already taken by another driver")
)

type Status string

const (
	StatusPending            Status = "PENDING"
	StatusRestaurantAccepted Status = "RESTAURANT_ACCEPTED"
	StatusPreparing          Status = "PREPARING"
	StatusDispatched         Status = "DISPATCHED"
	StatusReadyForPickup     Status = "READY_FOR_PICKUP"
	StatusRestaurantPickup   Status = "RESTAURANT_PICKUP"
	StatusEnRoute            Status = "EN_ROUTE"
	StatusDelivered          Status = "DELIVERED"
	StatusCancelled          Status = "CANCELLED"
)

// Tracking is the coarse customer-facing view of an order.
type Tracking string

const (
	TrackingOrderPlaced        Tracking = "ORDER_PLACED"
	TrackingPreparing          Tracking = "PREPARING"
	TrackingDriverAssigned     Tracking = "DRIVER_ASSIGNED"
	TrackingDriverAtRestaurant Tracking = "DRIVER_AT_RESTAURANT"
	TrackingOutForDelivery     Tracking = "OUT_FOR_DELIVERY"
	TrackingDelivered          Tracking = "DELIVERED"
	TrackingCancelled          Tracking = "CANCELLED"
)

// Party is a customer or restaurant snapshot loaded alongside the order.
type Party struct {
	ID       types.ID
	Name     string
	Avatar   string
	Address  string
	Location types.Point
	FCMToken string
}

type Order struct {
	ID               types.ID
	CustomerID       types.ID
	RestaurantID     types.ID
	DriverID         *types.ID
	Status           Status
	Tracking         Tracking
	StatusVersion    int
	Distance         float64
	DriverTips       float64
	DeliveryAddress  string
	DeliveryLocation types.Point
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DispatchedAt     *time.Time
	DeliveredAt      *time.Time

	// Populated by FindWithRelationsLocked.
	Customer   *Party
	Restaurant *Party
}

type Event struct {
	ID         int64
	OrderID    types.ID
	FromStatus Status
	ToStatus   Status
	ActorType  string
	ActorID    *types.ID
	CreatedAt  time.Time
}

// AllowedTransitions represents the order state flow (diagram) as code.
// Restaurant-side steps are listed so dispatch can happen at any point the
// kitchen has accepted the order.
var AllowedTransitions = map[Status][]Status{
	StatusPending:            {StatusRestaurantAccepted, StatusCancelled},
	StatusRestaurantAccepted: {StatusPreparing, StatusDispatched, StatusCancelled},
	StatusPreparing:          {StatusDispatched, StatusReadyForPickup, StatusCancelled},
	StatusReadyForPickup:     {StatusDispatched, StatusRestaurantPickup, StatusCancelled},
	StatusDispatched:         {StatusReadyForPickup, StatusRestaurantPickup, StatusCancelled},
	StatusRestaurantPickup:   {StatusEnRoute},
	StatusEnRoute:            {StatusDelivered},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

func Terminal(s Status) bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Dispatchable reports whether a driver may still pick up an order in s.
func Dispatchable(s Status) bool {
	return CanTransition(s, StatusDispatched)
}

// AssignTo moves the order to DISPATCHED under driverID.
func (o *Order) AssignTo(driverID types.ID, now time.Time) error {
	if o.DriverID != nil && *o.DriverID != driverID {
		return ErrTaken
	}
	if !Dispatchable(o.Status) {
		return ErrInvalidState
	}
	d := driverID
	o.DriverID = &d
	o.Status = StatusDispatched
	o.Tracking = TrackingDriverAssigned
	o.DispatchedAt = &now
	o.UpdatedAt = now
	return nil
}

// Project moves a driver-owned order to the status/tracking mirrored from its
// delivery stage. It reports whether anything changed. Terminal orders and
// backwards moves along the driver walk are left alone, even where the
// transition table would allow them.
func (o *Order) Project(to Status, tracking Tracking, now time.Time) bool {
	if Terminal(o.Status) {
		return false
	}
	changed := false
	if o.Status != to {
		from, next := driverRank(o.Status), driverRank(to)
		if from > 0 && next > 0 && next <= from {
			return false
		}
		if !CanTransition(o.Status, to) && next <= from {
			return false
		}
		o.Status = to
		changed = true
		if to == StatusDelivered {
			o.DeliveredAt = &now
		}
	}
	if o.Tracking != tracking {
		o.Tracking = tracking
		changed = true
	}
	if changed {
		o.UpdatedAt = now
	}
	return changed
}

// driverRank orders the statuses a driver walks through; others rank 0.
func driverRank(s Status) int {
	switch s {
	case StatusDispatched:
		return 1
	case StatusReadyForPickup:
		return 2
	case StatusRestaurantPickup:
		return 3
	case StatusEnRoute:
		return 4
	case StatusDelivered:
		return 5
	}
	return 0
}
