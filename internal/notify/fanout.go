// README: Fanout of one committed stage change to the driver and the order's parties.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"courier/internal/types"
)

type DriverTransport interface {
	SendToDriver(ctx context.Context, driverID types.ID, event string, payload any, key string) error
}

type PartyPusher interface {
	Push(ctx context.Context, token string, p Push) error
}

type Fanout struct {
	driver  DriverTransport
	parties PartyPusher
	log     *slog.Logger
}

// NewFanout sends to driver sockets; parties may be nil to skip pushes.
func NewFanout(driver DriverTransport, parties PartyPusher, log *slog.Logger) *Fanout {
	if log == nil {
		log = slog.Default()
	}
	return &Fanout{driver: driver, parties: parties, log: log}
}

// Notify sends exactly one driver message for c, then an order-status push
// per updated order. An offline driver is not an error.
func (f *Fanout) Notify(ctx context.Context, c StageChange) error {
	var errs []error
	err := f.driver.SendToDriver(ctx, c.DriverID, c.Event, c.Stage, c.Key)
	switch {
	case errors.Is(err, ErrNotConnected):
		f.log.Debug("driver offline, live update skipped", "driver_id", c.DriverID, "event", c.Event)
	case err != nil:
		errs = append(errs, fmt.Errorf("driver %s: %w", c.DriverID, err))
	}

	if f.parties == nil {
		return errors.Join(errs...)
	}
	for _, u := range c.Orders {
		p := Push{
			Title: "Order update",
			Body:  fmt.Sprintf("Your order is now %s", u.Tracking),
			Data: map[string]string{
				"order_id":      string(u.OrderID),
				"status":        u.Status,
				"tracking_info": u.Tracking,
			},
		}
		if err := f.parties.Push(ctx, u.CustomerToken, p); err != nil {
			errs = append(errs, fmt.Errorf("customer %s: %w", u.CustomerID, err))
		}
		if err := f.parties.Push(ctx, u.RestaurantToken, p); err != nil {
			errs = append(errs, fmt.Errorf("restaurant %s: %w", u.RestaurantID, err))
		}
	}
	return errors.Join(errs...)
}
