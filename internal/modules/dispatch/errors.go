// README: Error taxonomy and translation of lower-level errors into tagged results.
package dispatch

import (
	"context"
	"errors"

	"courier/internal/modules/driver"
	"courier/internal/modules/order"
	"courier/internal/modules/progress"
	"courier/internal/modules/wage"
	"courier/internal/retry"
)

var (
	ErrInvalidID         = errors.New("driver_id and order_id must be UUIDs")
	ErrInvalidStageID    = errors.New("stage_id must be a UUID")
	ErrAlreadyProcessing = errors.New("order is already being processed")
	ErrNoActiveStage     = errors.New("no active stage")
	ErrOrderNotInBundle  = errors.New("order is not part of this stage")
	ErrOrderDelivered    = errors.New("order already delivered")
	ErrNotOwner          = errors.New("stage belongs to another driver")
	ErrTimeout           = errors.New("dispatch timed out")
)

// Error carries a kind and a caller-safe message alongside the cause.
type Error struct {
	Kind    FailureKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func fail(kind FailureKind, err error) *Error {
	return &Error{Kind: kind, Message: err.Error(), Err: err}
}

// classify maps any error from the protocols to a kind and a message that is
// safe to return to the caller.
func classify(err error) *Error {
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	switch {
	case errors.Is(err, ErrInvalidID),
		errors.Is(err, ErrInvalidStageID),
		errors.Is(err, wage.ErrInvalidDistance):
		return fail(KindValidation, err)

	case errors.Is(err, order.ErrNotFound):
		return &Error{Kind: KindNotFound, Message: "order not found", Err: err}
	case errors.Is(err, driver.ErrNotFound):
		return &Error{Kind: KindNotFound, Message: "driver not found", Err: err}
	case errors.Is(err, progress.ErrNotFound):
		return &Error{Kind: KindNotFound, Message: "progress stage not found", Err: err}
	case errors.Is(err, ErrNoActiveStage),
		errors.Is(err, ErrOrderNotInBundle),
		errors.Is(err, ErrNotOwner):
		return &Error{Kind: KindNotFound, Message: err.Error(), Err: err}

	case errors.Is(err, order.ErrTaken):
		return &Error{Kind: KindConflict, Message: "order already taken by another driver", Err: err}
	case errors.Is(err, order.ErrInvalidState):
		return &Error{Kind: KindConflict, Message: "order is not dispatchable", Err: err}
	case errors.Is(err, order.ErrConflict),
		errors.Is(err, retry.ErrExhausted):
		return &Error{Kind: KindConflict, Message: "concurrent update, please retry", Err: err}
	case errors.Is(err, ErrAlreadyProcessing),
		errors.Is(err, ErrOrderDelivered):
		return fail(KindConflict, err)

	case errors.Is(err, ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Message: "request timed out", Err: err}
	}
	return &Error{Kind: KindServer, Message: "internal error", Err: err}
}

func failure(err error) Result {
	e := classify(err)
	return Result{Success: false, Kind: e.Kind, Message: e.Message}
}
