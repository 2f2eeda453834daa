// README: Accept protocol: bind an order to a driver's bundle under lock, tx and timeout.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"courier/internal/modules/driver"
	"courier/internal/modules/order"
	"courier/internal/modules/progress"
	"courier/internal/modules/wage"
	"courier/internal/notify"
	"courier/internal/types"
)

type acceptOutcome struct {
	order  *order.Order
	stage  *progress.DriverProgressStage
	replay bool
	change *notify.StageChange
}

func (a *acceptOutcome) result() Result {
	r := Result{Success: true, Order: orderView(a.order), Stage: a.stage}
	if a.replay {
		r.Message = "order already assigned to this driver"
	}
	return r
}

func acceptKey(cmd AcceptCommand) string {
	return string(cmd.DriverID) + ":" + string(cmd.OrderID)
}

// AcceptOrder assigns an order to a driver, creating the driver's bundle or
// appending to it. The whole operation is raced against the accept timeout;
// post-commit work runs in the background.
func (s *Service) AcceptOrder(ctx context.Context, cmd AcceptCommand) Result {
	if !cmd.DriverID.Valid() || !cmd.OrderID.Valid() {
		return failure(ErrInvalidID)
	}
	release, ok := s.locks.TryAcquire(acceptKey(cmd))
	if !ok {
		return failure(ErrAlreadyProcessing)
	}

	ctx, cancel := context.WithTimeout(ctx, s.acceptTimeout)
	defer cancel()

	done := make(chan Result, 1)
	go func() {
		defer release()
		var out *acceptOutcome
		err := s.tx.Serializable(ctx, func(ctx context.Context, uow UnitOfWork) error {
			var err error
			out, err = s.accept(ctx, uow, cmd)
			return err
		})
		if err != nil {
			done <- s.acceptFailed(cmd, err)
			return
		}
		if !out.replay {
			s.post.dispatch(out.change, true)
		}
		done <- out.result()
	}()

	select {
	case r := <-done:
		return r
	case <-ctx.Done():
		// The transaction may still be unwinding; the database keeps a
		// concurrent retry from booking the order twice.
		release()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.log.Warn("accept timed out", "driver_id", cmd.DriverID, "order_id", cmd.OrderID, "timeout", s.acceptTimeout)
			return failure(ErrTimeout)
		}
		return failure(ctx.Err())
	}
}

// AcceptInTx runs the accept protocol inside a unit of work the caller owns.
// No retry or timeout is applied; call the returned AfterCommit once the
// caller's transaction has committed.
func (s *Service) AcceptInTx(ctx context.Context, uow UnitOfWork, cmd AcceptCommand) (Result, AfterCommit) {
	if !cmd.DriverID.Valid() || !cmd.OrderID.Valid() {
		return failure(ErrInvalidID), func() {}
	}
	release, ok := s.locks.TryAcquire(acceptKey(cmd))
	if !ok {
		return failure(ErrAlreadyProcessing), func() {}
	}
	defer release()

	out, err := s.accept(ctx, uow, cmd)
	if err != nil {
		return s.acceptFailed(cmd, err), func() {}
	}
	if out.replay {
		return out.result(), func() {}
	}
	return out.result(), func() { s.post.dispatch(out.change, true) }
}

func (s *Service) acceptFailed(cmd AcceptCommand, err error) Result {
	e := classify(err)
	if e.Kind == KindServer {
		s.log.Error("accept failed", "driver_id", cmd.DriverID, "order_id", cmd.OrderID, "error", err)
	} else {
		s.log.Info("accept rejected", "driver_id", cmd.DriverID, "order_id", cmd.OrderID, "kind", e.Kind, "error", err)
	}
	return Result{Kind: e.Kind, Message: e.Message}
}

func (s *Service) accept(ctx context.Context, uow UnitOfWork, cmd AcceptCommand) (*acceptOutcome, error) {
	o, err := uow.Orders().FindWithRelationsLocked(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	d, err := uow.Drivers().FindWithBundleLocked(ctx, cmd.DriverID)
	if err != nil {
		return nil, err
	}
	p, err := uow.Stages().FindActiveByDriverForUpdate(ctx, cmd.DriverID)
	if err != nil && !errors.Is(err, progress.ErrNotFound) {
		return nil, err
	}
	if p != nil {
		if _, held := p.SlotOf(o.ID); held {
			return &acceptOutcome{order: o, stage: p, replay: true}, nil
		}
	}

	if !wage.ValidDistance(o.Distance) {
		return nil, &Error{Kind: KindValidation, Message: "order distance is invalid", Err: wage.ErrInvalidDistance}
	}
	now := s.now()
	from := o.Status
	if err := o.AssignTo(d.ID, now); err != nil {
		return nil, err
	}
	earns, err := s.wages.Wage(ctx, o.Distance)
	if err != nil {
		return nil, fmt.Errorf("wage for order %s: %w", o.ID, err)
	}
	b := booking{
		Distance: o.Distance,
		Tip:      nonNegative(o.DriverTips),
		Earns:    earns,
		ETA:      orderETA(o.Distance),
	}
	pickup := s.pickupETA(ctx, d, o)

	ts := now.Unix()
	created := p == nil
	var slot int
	if created {
		slot = 1
		p = &progress.DriverProgressStage{
			ID:        types.NewID(),
			DriverID:  d.ID,
			Orders:    []types.ID{o.ID},
			CreatedAt: ts,
		}
		p.Stages = progress.GenerateStages(p.Orders, 0, true, ts)
		fillDetails(p.Stages, slot, o, d, b, pickup)
	} else {
		slot = len(p.Orders) + 1
		p.Orders = append(p.Orders, o.ID)
		added := progress.GenerateStages([]types.ID{o.ID}, slot-1, false, ts)
		fillDetails(added, slot, o, d, b, pickup)
		p.Stages = append(p.Stages, added...)
	}

	p.TotalDistanceTravelled += b.Distance
	p.TotalTips += b.Tip
	p.TotalEarns += b.Earns
	p.EstimatedTimeRemaining += b.ETA
	if p.CurrentState.IsZero() {
		p.SetCursor(progress.DeriveCursor(p.Stages, slot))
	}

	ready := progress.Label{Base: progress.DriverReady, Slot: slot}
	p.AddEvent(progress.Event{
		Type:      progress.EventOrderAssigned,
		State:     ready,
		OrderID:   o.ID,
		Timestamp: ts,
		Details:   map[string]any{"distance": b.Distance, "tip": b.Tip, "earns": b.Earns, "slot": slot},
	})
	if created {
		p.AddEvent(progress.Event{Type: progress.EventStageStarted, State: ready, OrderID: o.ID, Timestamp: ts})
	}
	p.UpdatedAt = ts

	if created {
		err = uow.Stages().Create(ctx, p)
	} else {
		err = uow.Stages().AppendOrder(ctx, p, o.ID, slot)
	}
	if err != nil {
		return nil, err
	}

	if err := uow.Orders().Save(ctx, o); err != nil {
		return nil, err
	}
	actor := d.ID
	if err := uow.Orders().AppendEvent(ctx, &order.Event{
		OrderID:    o.ID,
		FromStatus: from,
		ToStatus:   o.Status,
		ActorType:  "driver",
		ActorID:    &actor,
		CreatedAt:  now,
	}); err != nil {
		return nil, err
	}

	d.AddOrder(o.ID)
	d.UpdatedAt = now
	if err := uow.Drivers().Save(ctx, d); err != nil {
		return nil, err
	}

	return &acceptOutcome{
		order: o,
		stage: p,
		change: &notify.StageChange{
			DriverID: d.ID,
			Event:    notify.EventOrderAssigned,
			Key:      changeKey(p),
			Stage:    p.Clone(),
			Orders:   []notify.OrderUpdate{orderUpdate(o)},
		},
	}, nil
}

// pickupETA asks the route estimator for driver-to-restaurant minutes. It is
// advisory: any failure leaves the detail empty.
func (s *Service) pickupETA(ctx context.Context, d *driver.Driver, o *order.Order) *float64 {
	if s.routes == nil || d.Location == nil || o.Restaurant == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.routeTimeout)
	defer cancel()
	minutes, err := s.routes.TravelMinutes(ctx, *d.Location, o.Restaurant.Location)
	if err != nil {
		s.log.Debug("pickup eta unavailable", "driver_id", d.ID, "order_id", o.ID, "error", err)
		return nil
	}
	return progress.Float(minutes)
}

// changeKey identifies one committed state of a stage for notification dedupe.
func changeKey(p *progress.DriverProgressStage) string {
	return fmt.Sprintf("%s:%d", p.ID, len(p.Events))
}
