// README: Projections between progress stages, orders and stage details (status mirror, ETA, snapshots).
package dispatch

import (
	"math"

	"courier/internal/modules/driver"
	"courier/internal/modules/order"
	"courier/internal/modules/progress"
	"courier/internal/notify"
)

// averageSpeedKmh converts order distance into a delivery ETA.
const averageSpeedKmh = 30.0

// projection is the order status and tracking mirrored from a stage.
type projection struct {
	Status   order.Status
	Tracking order.Tracking
}

var projections = map[progress.BaseState]projection{
	progress.DriverReady:       {order.StatusDispatched, order.TrackingDriverAssigned},
	progress.WaitingForPickup:  {order.StatusReadyForPickup, order.TrackingDriverAtRestaurant},
	progress.RestaurantPickup:  {order.StatusRestaurantPickup, order.TrackingOutForDelivery},
	progress.EnRouteToCustomer: {order.StatusEnRoute, order.TrackingOutForDelivery},
	progress.DeliveryComplete:  {order.StatusDelivered, order.TrackingDelivered},
}

func projectionFor(base progress.BaseState) (projection, bool) {
	p, ok := projections[base]
	return p, ok
}

// orderETA is the full delivery estimate in minutes for distance km.
func orderETA(distance float64) float64 {
	if distance <= 0 || math.IsNaN(distance) || math.IsInf(distance, 0) {
		return 0
	}
	return distance / averageSpeedKmh * 60
}

// stageETA is what remains of an order's ETA once base is reached.
func stageETA(orderMinutes float64, base progress.BaseState) float64 {
	return orderMinutes * float64(base.StepsRemaining()) / float64(len(progress.Lifecycle)-1)
}

// arrival returns the slot's delivery_complete stage, which carries the
// amounts booked at accept time.
func arrival(p *progress.DriverProgressStage, slot int) *progress.Stage {
	i := progress.IndexOf(p.Stages, progress.Label{Base: progress.DeliveryComplete, Slot: slot})
	if i < 0 {
		return nil
	}
	return &p.Stages[i]
}

func bookedDistance(p *progress.DriverProgressStage, slot int) float64 {
	if st := arrival(p, slot); st != nil && st.Details.Distance != nil {
		return *st.Details.Distance
	}
	return 0
}

// remainingETA sums, over undelivered slots, the estimate left from each
// slot's current position.
func remainingETA(p *progress.DriverProgressStage) float64 {
	total := 0.0
	for slot := 1; slot <= len(p.Orders); slot++ {
		pos := progress.Locate(p.Stages, slot)
		if pos.Terminal {
			continue
		}
		full := orderETA(bookedDistance(p, slot))
		switch {
		case pos.Active >= 0:
			total += stageETA(full, p.Stages[pos.Active].State.Base)
		case pos.LastCompleted >= 0:
			if next, ok := p.Stages[pos.LastCompleted].State.Base.Next(); ok {
				total += stageETA(full, next)
			}
		default:
			total += full
		}
	}
	return total
}

func restaurantSnapshot(o *order.Order) *progress.Counterpart {
	if o.Restaurant == nil {
		return &progress.Counterpart{ID: o.RestaurantID}
	}
	loc := o.Restaurant.Location
	return &progress.Counterpart{
		ID:       o.Restaurant.ID,
		Name:     o.Restaurant.Name,
		Avatar:   o.Restaurant.Avatar,
		Address:  o.Restaurant.Address,
		Location: &loc,
	}
}

func customerSnapshot(o *order.Order) *progress.Counterpart {
	loc := o.DeliveryLocation
	c := &progress.Counterpart{ID: o.CustomerID, Address: o.DeliveryAddress, Location: &loc}
	if o.Customer != nil {
		c.Name = o.Customer.Name
		c.Avatar = o.Customer.Avatar
	}
	return c
}

// booking is what accept credits to the bundle for one order.
type booking struct {
	Distance float64
	Tip      float64
	Earns    float64
	ETA      float64
}

// fillDetails decorates the five freshly generated stages of one slot.
func fillDetails(stages []progress.Stage, slot int, o *order.Order, d *driver.Driver, b booking, pickupETA *float64) {
	restaurant := restaurantSnapshot(o)
	customer := customerSnapshot(o)
	for i := range stages {
		st := &stages[i]
		if st.State.Slot != slot {
			continue
		}
		switch st.State.Base {
		case progress.DriverReady:
			st.Details.Location = d.Location
			st.Details.RestaurantDetails = restaurant
			st.Details.PickupETA = pickupETA
		case progress.WaitingForPickup, progress.RestaurantPickup:
			st.Details.RestaurantDetails = restaurant
		case progress.EnRouteToCustomer:
			st.Details.CustomerDetails = customer
		case progress.DeliveryComplete:
			st.Details.CustomerDetails = customer
			st.Details.Distance = progress.Float(b.Distance)
			st.Details.Tip = progress.Float(b.Tip)
			st.Details.Earns = progress.Float(b.Earns)
			st.Details.EstimatedTime = progress.Float(b.ETA)
		}
		if st.Status == progress.StatusInProgress {
			st.Details.EstimatedTime = progress.Float(stageETA(b.ETA, st.State.Base))
		}
	}
}

func orderView(o *order.Order) *OrderView {
	return &OrderView{ID: o.ID, Status: o.Status, Tracking: o.Tracking, DriverID: o.DriverID}
}

func orderUpdate(o *order.Order) notify.OrderUpdate {
	u := notify.OrderUpdate{
		OrderID:      o.ID,
		CustomerID:   o.CustomerID,
		RestaurantID: o.RestaurantID,
		Status:       string(o.Status),
		Tracking:     string(o.Tracking),
	}
	if o.Customer != nil {
		u.CustomerToken = o.Customer.FCMToken
	}
	if o.Restaurant != nil {
		u.RestaurantToken = o.Restaurant.FCMToken
	}
	return u
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
