// README: Advance protocol: walk one bundle slot through the lifecycle and mirror it onto the order.
package dispatch

import (
	"context"
	"math"

	"courier/internal/modules/order"
	"courier/internal/modules/progress"
	"courier/internal/notify"
	"courier/internal/types"
)

type advanceOutcome struct {
	stage     *progress.DriverProgressStage
	unchanged bool
	delivered bool
	change    *notify.StageChange
}

func (a *advanceOutcome) result() Result {
	r := Result{Success: true, Stage: a.stage}
	if a.unchanged {
		r.Message = "no change"
	}
	return r
}

// AdvanceProgress moves the target slot of a bundle one step forward and
// starts any idle slot. Exactly one notification follows a change; a call
// that changes nothing writes nothing.
func (s *Service) AdvanceProgress(ctx context.Context, cmd AdvanceCommand) Result {
	if err := validateAdvance(cmd); err != nil {
		return failure(err)
	}
	var out *advanceOutcome
	err := s.tx.Serializable(ctx, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		out, err = s.advance(ctx, uow, cmd)
		return err
	})
	if err != nil {
		return s.advanceFailed(cmd, err)
	}
	if out.change != nil {
		s.post.dispatch(out.change, out.delivered)
	}
	return out.result()
}

// AdvanceInTx runs the advance protocol inside a caller-owned unit of work.
func (s *Service) AdvanceInTx(ctx context.Context, uow UnitOfWork, cmd AdvanceCommand) (Result, AfterCommit) {
	if err := validateAdvance(cmd); err != nil {
		return failure(err), func() {}
	}
	out, err := s.advance(ctx, uow, cmd)
	if err != nil {
		return s.advanceFailed(cmd, err), func() {}
	}
	if out.change == nil {
		return out.result(), func() {}
	}
	return out.result(), func() { s.post.dispatch(out.change, out.delivered) }
}

func validateAdvance(cmd AdvanceCommand) error {
	if !cmd.StageID.Valid() {
		return ErrInvalidStageID
	}
	if cmd.OrderID != nil && !cmd.OrderID.Valid() {
		return &Error{Kind: KindValidation, Message: "order_id must be a UUID"}
	}
	return nil
}

func (s *Service) advanceFailed(cmd AdvanceCommand, err error) Result {
	e := classify(err)
	if e.Kind == KindServer {
		s.log.Error("advance failed", "stage_id", cmd.StageID, "error", err)
	} else {
		s.log.Info("advance rejected", "stage_id", cmd.StageID, "kind", e.Kind, "error", err)
	}
	return Result{Kind: e.Kind, Message: e.Message}
}

func (s *Service) advance(ctx context.Context, uow UnitOfWork, cmd AdvanceCommand) (*advanceOutcome, error) {
	p, err := uow.Stages().GetForUpdate(ctx, cmd.StageID)
	if err != nil {
		return nil, err
	}
	if cmd.DriverID != nil && *cmd.DriverID != p.DriverID {
		return nil, ErrNotOwner
	}
	if p.Terminal() {
		return nil, ErrNoActiveStage
	}
	target, err := targetSlot(p, cmd.OrderID)
	if err != nil {
		return nil, err
	}

	before := p.Clone()
	now := s.now()
	w := &walker{p: p, ts: now.Unix()}

	delivered := w.step(target)
	for slot := 1; slot <= len(p.Orders); slot++ {
		if slot != target {
			w.wake(slot)
		}
	}
	p.SetCursor(progress.DeriveCursor(p.Stages, target))

	changed := changedSlots(before, p)
	if len(changed) == 0 && before.Cursor() == p.Cursor() {
		return &advanceOutcome{stage: before, unchanged: true}, nil
	}
	p.EstimatedTimeRemaining = remainingETA(p)
	p.UpdatedAt = w.ts

	orders := make(map[int]*order.Order, len(changed))
	for _, slot := range changed {
		o, err := uow.Orders().FindWithRelationsLocked(ctx, p.Orders[slot-1])
		if err != nil {
			return nil, err
		}
		orders[slot] = o
	}
	if delivered {
		s.settle(ctx, p, target, orders[target])
	}
	if err := uow.Stages().Update(ctx, p); err != nil {
		return nil, err
	}

	var updates []notify.OrderUpdate
	for _, slot := range changed {
		o := orders[slot]
		proj, ok := projectionFor(slotBase(p, slot))
		if !ok {
			continue
		}
		from := o.Status
		if !o.Project(proj.Status, proj.Tracking, now) {
			continue
		}
		if err := uow.Orders().Save(ctx, o); err != nil {
			return nil, err
		}
		if from != o.Status {
			actor := p.DriverID
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
		}
		updates = append(updates, orderUpdate(o))
	}

	if delivered {
		d, err := uow.Drivers().FindWithBundleLocked(ctx, p.DriverID)
		if err != nil {
			return nil, err
		}
		d.RemoveOrder(p.Orders[target-1])
		d.UpdatedAt = now
		if err := uow.Drivers().Save(ctx, d); err != nil {
			return nil, err
		}
	}

	return &advanceOutcome{
		stage:     p,
		delivered: delivered,
		change: &notify.StageChange{
			DriverID: p.DriverID,
			Event:    notify.EventProgressUpdated,
			Key:      changeKey(p),
			Stage:    p.Clone(),
			Orders:   updates,
		},
	}, nil
}

// targetSlot resolves the slot to progress: the named order's, or the first
// slot still undelivered.
func targetSlot(p *progress.DriverProgressStage, orderID *types.ID) (int, error) {
	if orderID != nil {
		slot, ok := p.SlotOf(*orderID)
		if !ok {
			return 0, ErrOrderNotInBundle
		}
		if progress.SlotTerminal(p.Stages, slot) {
			return 0, ErrOrderDelivered
		}
		return slot, nil
	}
	for slot := 1; slot <= len(p.Orders); slot++ {
		if !progress.SlotTerminal(p.Stages, slot) {
			return slot, nil
		}
	}
	return 0, ErrNoActiveStage
}

// settle folds what the delivered order is finally worth into the totals.
// Only the increase over what accept booked is added, so totals never
// double count and never shrink.
func (s *Service) settle(ctx context.Context, p *progress.DriverProgressStage, slot int, o *order.Order) {
	st := arrival(p, slot)
	if st == nil || o == nil {
		return
	}
	booked := func(v *float64) float64 {
		if v == nil {
			return 0
		}
		return *v
	}
	bDist, bTip, bEarns := booked(st.Details.Distance), booked(st.Details.Tip), booked(st.Details.Earns)

	finalDist := nonNegative(o.Distance)
	finalTip := nonNegative(o.DriverTips)
	finalEarns := bEarns
	if earns, err := s.wages.Wage(ctx, finalDist); err == nil {
		finalEarns = earns
	} else {
		s.log.Warn("final wage unavailable, keeping booked amount", "order_id", o.ID, "error", err)
	}

	dDist := math.Max(0, finalDist-bDist)
	dTip := math.Max(0, finalTip-bTip)
	dEarns := math.Max(0, finalEarns-bEarns)

	p.TotalDistanceTravelled += dDist
	p.TotalTips += dTip
	p.TotalEarns += dEarns
	st.Details.Distance = progress.Float(bDist + dDist)
	st.Details.Tip = progress.Float(bTip + dTip)
	st.Details.Earns = progress.Float(bEarns + dEarns)
}

// slotBase is the lifecycle step a slot is at: its active stage, else the
// furthest completed one.
func slotBase(p *progress.DriverProgressStage, slot int) progress.BaseState {
	pos := progress.Locate(p.Stages, slot)
	if pos.Active >= 0 {
		return p.Stages[pos.Active].State.Base
	}
	if pos.LastCompleted >= 0 {
		return p.Stages[pos.LastCompleted].State.Base
	}
	return ""
}

func changedSlots(before, after *progress.DriverProgressStage) []int {
	var out []int
	for slot := 1; slot <= len(after.Orders); slot++ {
		if progress.Locate(before.Stages, slot) != progress.Locate(after.Stages, slot) {
			out = append(out, slot)
		}
	}
	return out
}

// walker applies stage transitions to one bundle at a fixed instant.
type walker struct {
	p  *progress.DriverProgressStage
	ts int64
}

// step advances slot once. It reports whether the slot reached arrival.
func (w *walker) step(slot int) bool {
	pos := progress.Locate(w.p.Stages, slot)
	if pos.Active < 0 {
		w.wake(slot)
		return false
	}
	w.complete(pos.Active)

	next := progress.FirstPending(w.p.Stages, slot)
	if next < 0 {
		return false
	}
	if w.p.Stages[next].State.Base.Terminal() {
		w.arrive(next, slot)
		return true
	}
	w.activate(next)
	return false
}

// wake starts an idle, undelivered slot at its first pending stage.
func (w *walker) wake(slot int) {
	if !progress.Locate(w.p.Stages, slot).Idle() {
		return
	}
	idx := progress.FirstPending(w.p.Stages, slot)
	if idx < 0 || w.p.Stages[idx].State.Base.Terminal() {
		return
	}
	w.activate(idx)
}

func (w *walker) complete(i int) {
	st := &w.p.Stages[i]
	elapsed := w.ts - st.Timestamp
	if elapsed < 0 {
		elapsed = 0
	}
	st.Status = progress.StatusCompleted
	st.Duration = elapsed
	st.Details.ActualTime = progress.Float(float64(elapsed))
	w.p.ActualTimeSpent += float64(elapsed)
	w.event(progress.EventStageCompleted, st.State)
}

func (w *walker) activate(i int) {
	st := &w.p.Stages[i]
	st.Status = progress.StatusInProgress
	st.Timestamp = w.ts
	full := orderETA(bookedDistance(w.p, st.State.Slot))
	st.Details.EstimatedTime = progress.Float(stageETA(full, st.State.Base))
	w.event(progress.EventStageStarted, st.State)
}

func (w *walker) arrive(i, slot int) {
	st := &w.p.Stages[i]
	st.Status = progress.StatusCompleted
	st.Timestamp = w.ts
	st.Duration = 0

	var spent int64
	for j := range w.p.Stages {
		if w.p.Stages[j].State.Slot == slot {
			spent += w.p.Stages[j].Duration
		}
	}
	st.Details.ActualTime = progress.Float(float64(spent))
	w.event(progress.EventStageCompleted, st.State)
	w.event(progress.EventOrderDelivered, st.State)
}

func (w *walker) event(kind string, l progress.Label) {
	orderID, _ := w.p.OrderAt(l.Slot)
	w.p.AddEvent(progress.Event{Type: kind, State: l, OrderID: orderID, Timestamp: w.ts})
}
