// README: Stage sequencing: schedule generation, slot positions and bundle cursor.
package progress

import "courier/internal/types"

// GenerateStages emits the five lifecycle stages for each order, labelled with
// slot startIndex+i+1. Only the first stage of the first order is started, and
// only when markFirstInProgress is set; everything else is pending.
func GenerateStages(orders []types.ID, startIndex int, markFirstInProgress bool, now int64) []Stage {
	stages := make([]Stage, 0, len(orders)*len(Lifecycle))
	for i := range orders {
		slot := startIndex + i + 1
		for j, base := range Lifecycle {
			st := Stage{
				State:  Label{Base: base, Slot: slot},
				Status: StatusPending,
			}
			if markFirstInProgress && i == 0 && j == 0 {
				st.Status = StatusInProgress
				st.Timestamp = now
			}
			stages = append(stages, st)
		}
	}
	return stages
}

// IndexOf returns the position of the stage labelled l, or -1.
func IndexOf(stages []Stage, l Label) int {
	for i := range stages {
		if stages[i].State == l {
			return i
		}
	}
	return -1
}

// Position is where one slot stands in its lifecycle.
type Position struct {
	Slot          int
	Active        int // index of the in-progress stage, -1 if none
	LastCompleted int // index of the furthest completed stage, -1 if none
	Terminal      bool
}

func (p Position) Idle() bool { return p.Active < 0 && !p.Terminal }

func Locate(stages []Stage, slot int) Position {
	pos := Position{Slot: slot, Active: -1, LastCompleted: -1}
	for i := range stages {
		st := &stages[i]
		if st.State.Slot != slot {
			continue
		}
		switch st.Status {
		case StatusInProgress:
			if pos.Active < 0 {
				pos.Active = i
			}
		case StatusCompleted:
			if pos.LastCompleted < 0 || st.State.Base.Index() > stages[pos.LastCompleted].State.Base.Index() {
				pos.LastCompleted = i
			}
			if st.State.Base.Terminal() {
				pos.Terminal = true
			}
		}
	}
	return pos
}

func SlotTerminal(stages []Stage, slot int) bool {
	return Locate(stages, slot).Terminal
}

// FirstPending returns the earliest pending stage of slot in lifecycle order, or -1.
func FirstPending(stages []Stage, slot int) int {
	best := -1
	for i := range stages {
		st := &stages[i]
		if st.State.Slot != slot || st.Status != StatusPending {
			continue
		}
		if best < 0 || st.State.Base.Index() < stages[best].State.Base.Index() {
			best = i
		}
	}
	return best
}

// Cursor is the bundle-level view of the current/previous/next stage.
type Cursor struct {
	Current  Label
	Previous Label
	Next     Label
}

func CursorAt(l Label) Cursor {
	c := Cursor{Current: l}
	if prev, ok := l.Base.Prev(); ok {
		c.Previous = Label{Base: prev, Slot: l.Slot}
	}
	if next, ok := l.Base.Next(); ok {
		c.Next = Label{Base: next, Slot: l.Slot}
	}
	return c
}

// DeriveCursor mirrors the in-progress stage, preferring preferSlot when that
// slot is active. With nothing in progress it falls back to the most recently
// completed arrival stage; with neither it returns the zero cursor.
func DeriveCursor(stages []Stage, preferSlot int) Cursor {
	if preferSlot > 0 {
		if pos := Locate(stages, preferSlot); pos.Active >= 0 {
			return CursorAt(stages[pos.Active].State)
		}
	}
	for i := range stages {
		if stages[i].Status == StatusInProgress {
			return CursorAt(stages[i].State)
		}
	}
	latest := -1
	for i := range stages {
		st := &stages[i]
		if !st.State.Base.Terminal() || st.Status != StatusCompleted {
			continue
		}
		if latest < 0 || st.Timestamp >= stages[latest].Timestamp {
			latest = i
		}
	}
	if latest >= 0 {
		return CursorAt(stages[latest].State)
	}
	return Cursor{}
}
