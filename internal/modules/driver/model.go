// README: Driver aggregate with the bundle of orders currently in hand.
package driver

import (
	"errors"
	"time"

	"courier/internal/types"
)

var ErrNotFound = errors.New("driver not found")

type Driver struct {
	ID            types.ID
	Name          string
	Avatar        string
	Location      *types.Point
	CurrentOrders []types.ID
	UpdatedAt     time.Time
}

func (d *Driver) Holds(orderID types.ID) bool {
	return types.Contains(d.CurrentOrders, orderID)
}

// AddOrder appends orderID to the bundle; it reports false if already held.
func (d *Driver) AddOrder(orderID types.ID) bool {
	if d.Holds(orderID) {
		return false
	}
	d.CurrentOrders = append(d.CurrentOrders, orderID)
	return true
}

// RemoveOrder drops orderID from the bundle, keeping the order of the rest.
func (d *Driver) RemoveOrder(orderID types.ID) bool {
	for i, id := range d.CurrentOrders {
		if id == orderID {
			d.CurrentOrders = append(d.CurrentOrders[:i:i], d.CurrentOrders[i+1:]...)
			return true
		}
	}
	return false
}
