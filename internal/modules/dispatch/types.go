// README: Dispatch contracts: commands, results, failure kinds and the repositories the protocols run against.
package dispatch

import (
	"context"

	"courier/internal/modules/driver"
	"courier/internal/modules/order"
	"courier/internal/modules/progress"
	"courier/internal/notify"
	"courier/internal/types"
)

type OrderRepo interface {
	FindWithRelationsLocked(ctx context.Context, id types.ID) (*order.Order, error)
	Save(ctx context.Context, o *order.Order) error
	AppendEvent(ctx context.Context, e *order.Event) error
}

type DriverRepo interface {
	FindWithBundleLocked(ctx context.Context, id types.ID) (*driver.Driver, error)
	Save(ctx context.Context, d *driver.Driver) error
}

type StageRepo interface {
	Create(ctx context.Context, p *progress.DriverProgressStage) error
	AppendOrder(ctx context.Context, p *progress.DriverProgressStage, orderID types.ID, slot int) error
	Update(ctx context.Context, p *progress.DriverProgressStage) error
	GetForUpdate(ctx context.Context, id types.ID) (*progress.DriverProgressStage, error)
	FindActiveByDriverForUpdate(ctx context.Context, driverID types.ID) (*progress.DriverProgressStage, error)
}

// StageReader serves lock-free reads outside a transaction.
type StageReader interface {
	FindActiveByDriver(ctx context.Context, driverID types.ID) (*progress.DriverProgressStage, error)
}

// UnitOfWork hands out repositories bound to one transaction.
type UnitOfWork interface {
	Orders() OrderRepo
	Drivers() DriverRepo
	Stages() StageRepo
}

// Transactor runs fn in a SERIALIZABLE unit of work, replaying it on
// serialization conflicts.
type Transactor interface {
	Serializable(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error
}

type WageCalculator interface {
	Wage(ctx context.Context, distance float64) (float64, error)
}

type RouteEstimator interface {
	TravelMinutes(ctx context.Context, from, to types.Point) (float64, error)
}

type Notifier interface {
	Notify(ctx context.Context, c notify.StageChange) error
}

type StatsRecomputer interface {
	RecomputeForDriver(ctx context.Context, driverID types.ID, period string) error
}

type AcceptCommand struct {
	DriverID types.ID
	OrderID  types.ID
}

// AdvanceCommand moves a bundle forward. OrderID targets one slot; nil means
// the first slot not yet delivered. DriverID, when set, must own the stage.
type AdvanceCommand struct {
	StageID  types.ID
	OrderID  *types.ID
	DriverID *types.ID
}

type FailureKind string

const (
	KindValidation FailureKind = "validation"
	KindNotFound   FailureKind = "not_found"
	KindConflict   FailureKind = "conflict"
	KindTimeout    FailureKind = "timeout"
	KindServer     FailureKind = "server_error"
)

// OrderView is the order as returned to the driver after accept.
type OrderView struct {
	ID       types.ID       `json:"id"`
	Status   order.Status   `json:"status"`
	Tracking order.Tracking `json:"tracking_info"`
	DriverID *types.ID      `json:"driver_id,omitempty"`
}

// Result is the tagged outcome of every dispatch operation. Callers never see
// raw store errors.
type Result struct {
	Success bool                          `json:"success"`
	Message string                        `json:"message,omitempty"`
	Kind    FailureKind                   `json:"kind,omitempty"`
	Order   *OrderView                    `json:"order,omitempty"`
	Stage   *progress.DriverProgressStage `json:"stage,omitempty"`
}

// AfterCommit runs the post-commit work of an operation composed into a
// caller-owned unit of work. Call it once the caller's transaction commits.
type AfterCommit func()
