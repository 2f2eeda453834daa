// README: Notification payloads emitted after a progress-stage change commits.
package notify

import (
	"courier/internal/modules/progress"
	"courier/internal/types"
)

const (
	EventOrderAssigned   = "order_assigned"
	EventProgressUpdated = "progress_stage_updated"
)

// OrderUpdate is the order-status push sent to the customer and restaurant.
type OrderUpdate struct {
	OrderID         types.ID `json:"order_id"`
	CustomerID      types.ID `json:"customer_id"`
	RestaurantID    types.ID `json:"restaurant_id"`
	Status          string   `json:"status"`
	Tracking        string   `json:"tracking_info"`
	CustomerToken   string   `json:"-"`
	RestaurantToken string   `json:"-"`
}

// StageChange is one committed state change. Key identifies it for dedupe:
// redelivery with the same key is dropped.
type StageChange struct {
	DriverID types.ID
	Event    string
	Key      string
	Stage    *progress.DriverProgressStage
	Orders   []OrderUpdate
}

// Message is the frame written to driver sockets.
type Message struct {
	Event   string `json:"event"`
	Key     string `json:"key,omitempty"`
	Payload any    `json:"payload"`
}
