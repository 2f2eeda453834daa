// README: Driver progress-stage aggregate: bundle of orders walked through the delivery lifecycle.
package progress

import (
	"errors"

	"courier/internal/types"
)

var ErrNotFound = errors.New("progress stage not found")

// BaseState is one step of the per-order delivery lifecycle.
type BaseState string

const (
	DriverReady       BaseState = "driver_ready"
	WaitingForPickup  BaseState = "waiting_for_pickup"
	RestaurantPickup  BaseState = "restaurant_pickup"
	EnRouteToCustomer BaseState = "en_route_to_customer"
	DeliveryComplete  BaseState = "delivery_complete"
)

// Lifecycle is the fixed order every slot walks through, terminal last.
var Lifecycle = []BaseState{
	DriverReady,
	WaitingForPickup,
	RestaurantPickup,
	EnRouteToCustomer,
	DeliveryComplete,
}

func (b BaseState) Index() int {
	for i, s := range Lifecycle {
		if s == b {
			return i
		}
	}
	return -1
}

func (b BaseState) Valid() bool { return b.Index() >= 0 }

func (b BaseState) Terminal() bool { return b == DeliveryComplete }

func (b BaseState) Next() (BaseState, bool) {
	i := b.Index()
	if i < 0 || i+1 >= len(Lifecycle) {
		return "", false
	}
	return Lifecycle[i+1], true
}

func (b BaseState) Prev() (BaseState, bool) {
	i := b.Index()
	if i <= 0 {
		return "", false
	}
	return Lifecycle[i-1], true
}

// StepsRemaining counts the non-terminal steps from b (inclusive) to arrival.
func (b BaseState) StepsRemaining() int {
	i := b.Index()
	if i < 0 {
		return 0
	}
	return len(Lifecycle) - 1 - i
}

type StageStatus string

const (
	StatusPending    StageStatus = "pending"
	StatusInProgress StageStatus = "in_progress"
	StatusCompleted  StageStatus = "completed"
	// StatusFailed is accepted on stored stages but never written by the
	// advance walk. A failed stage is neither pending nor active, so advance
	// leaves its slot alone.
	StatusFailed StageStatus = "failed"
)

// Counterpart is the restaurant or customer snapshot shown to the driver.
type Counterpart struct {
	ID       types.ID     `json:"id"`
	Name     string       `json:"name"`
	Avatar   string       `json:"avatar,omitempty"`
	Address  string       `json:"address,omitempty"`
	Location *types.Point `json:"location,omitempty"`
}

type StageDetails struct {
	Location          *types.Point `json:"location,omitempty"`
	EstimatedTime     *float64     `json:"estimated_time,omitempty"`
	PickupETA         *float64     `json:"pickup_eta,omitempty"`
	ActualTime        *float64     `json:"actual_time,omitempty"`
	Tip               *float64     `json:"tip,omitempty"`
	Earns             *float64     `json:"earns,omitempty"`
	Distance          *float64     `json:"distance,omitempty"`
	RestaurantDetails *Counterpart `json:"restaurant_details,omitempty"`
	CustomerDetails   *Counterpart `json:"customer_details,omitempty"`
}

type Stage struct {
	State     Label        `json:"state"`
	Status    StageStatus  `json:"status"`
	Timestamp int64        `json:"timestamp"`
	Duration  int64        `json:"duration"`
	Details   StageDetails `json:"details"`
}

const (
	EventOrderAssigned  = "order_assigned"
	EventStageStarted   = "stage_started"
	EventStageCompleted = "stage_completed"
	EventOrderDelivered = "order_delivered"
)

type Event struct {
	Type      string         `json:"event_type"`
	State     Label          `json:"state"`
	OrderID   types.ID       `json:"order_id,omitempty"`
	Timestamp int64          `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// DriverProgressStage is the aggregate root. A driver owns at most one
// non-terminal instance; Orders is append-only while it is active.
type DriverProgressStage struct {
	ID                     types.ID   `json:"id"`
	DriverID               types.ID   `json:"driver_id"`
	Orders                 []types.ID `json:"orders"`
	CurrentState           Label      `json:"current_state"`
	PreviousState          Label      `json:"previous_state"`
	NextState              Label      `json:"next_state"`
	Stages                 []Stage    `json:"stages"`
	Events                 []Event    `json:"events"`
	EstimatedTimeRemaining float64    `json:"estimated_time_remaining"`
	ActualTimeSpent        float64    `json:"actual_time_spent"`
	TotalDistanceTravelled float64    `json:"total_distance_travelled"`
	TotalTips              float64    `json:"total_tips"`
	TotalEarns             float64    `json:"total_earns"`
	CreatedAt              int64      `json:"created_at"`
	UpdatedAt              int64      `json:"updated_at"`
}

// SlotOf returns the 1-based slot of orderID within the bundle.
func (p *DriverProgressStage) SlotOf(orderID types.ID) (int, bool) {
	for i, id := range p.Orders {
		if id == orderID {
			return i + 1, true
		}
	}
	return 0, false
}

func (p *DriverProgressStage) OrderAt(slot int) (types.ID, bool) {
	if slot < 1 || slot > len(p.Orders) {
		return "", false
	}
	return p.Orders[slot-1], true
}

// Terminal reports whether every bundled slot has completed its arrival stage.
func (p *DriverProgressStage) Terminal() bool {
	if len(p.Orders) == 0 {
		return false
	}
	for slot := 1; slot <= len(p.Orders); slot++ {
		if !SlotTerminal(p.Stages, slot) {
			return false
		}
	}
	return true
}

// SetCursor mirrors c into the current/previous/next labels.
func (p *DriverProgressStage) SetCursor(c Cursor) {
	p.CurrentState = c.Current
	p.PreviousState = c.Previous
	p.NextState = c.Next
}

func (p *DriverProgressStage) Cursor() Cursor {
	return Cursor{Current: p.CurrentState, Previous: p.PreviousState, Next: p.NextState}
}

func (p *DriverProgressStage) AddEvent(e Event) {
	p.Events = append(p.Events, e)
}

// Clone returns a copy that shares no slices with p.
func (p *DriverProgressStage) Clone() *DriverProgressStage {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Orders = append([]types.ID(nil), p.Orders...)
	cp.Stages = append([]Stage(nil), p.Stages...)
	cp.Events = make([]Event, len(p.Events))
	for i, e := range p.Events {
		cp.Events[i] = e
		if e.Details != nil {
			cp.Events[i].Details = make(map[string]any, len(e.Details))
			for k, v := range e.Details {
				cp.Events[i].Details[k] = v
			}
		}
	}
	return &cp
}

func Float(v float64) *float64 { return &v }
