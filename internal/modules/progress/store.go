// README: Progress-stage store backed by PostgreSQL (JSONB stages/events, join table for bundled orders).
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"courier/internal/infra"
	"courier/internal/types"
)

type Store struct {
	q infra.Querier
}

// NewStore binds the store to q: a pool for standalone reads, a pgx.Tx when
// the caller composes several writes into one unit of work.
func NewStore(q infra.Querier) *Store {
	return &Store{q: q}
}

const selectStage = `
	SELECT id, driver_id, current_state, previous_state, next_state,
	       stages, events,
	       estimated_time_remaining, actual_time_spent, total_distance_travelled,
	       total_tips, total_earns, created_at, updated_at
	FROM driver_progress_stages`

func (s *Store) Create(ctx context.Context, p *DriverProgressStage) error {
	stages, events, err := encodeJSON(p)
	if err != nil {
		return err
	}
	_, err = s.q.Exec(ctx, `
		INSERT INTO driver_progress_stages (
			id, driver_id, current_state, previous_state, next_state,
			stages, events,
			estimated_time_remaining, actual_time_spent, total_distance_travelled,
			total_tips, total_earns, is_terminal, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7,
			$8, $9, $10,
			$11, $12, $13, $14, $15
		)`,
		string(p.ID),
		string(p.DriverID),
		nullLabel(p.CurrentState),
		nullLabel(p.PreviousState),
		nullLabel(p.NextState),
		stages, events,
		p.EstimatedTimeRemaining, p.ActualTimeSpent, p.TotalDistanceTravelled,
		p.TotalTips, p.TotalEarns,
		p.Terminal(),
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert progress stage: %w", err)
	}
	for i, orderID := range p.Orders {
		if err := s.insertOrder(ctx, p.ID, orderID, i+1); err != nil {
			return err
		}
	}
	return nil
}

// AppendOrder records orderID in slot and persists the already-extended aggregate.
func (s *Store) AppendOrder(ctx context.Context, p *DriverProgressStage, orderID types.ID, slot int) error {
	if err := s.insertOrder(ctx, p.ID, orderID, slot); err != nil {
		return err
	}
	return s.Update(ctx, p)
}

func (s *Store) Update(ctx context.Context, p *DriverProgressStage) error {
	stages, events, err := encodeJSON(p)
	if err != nil {
		return err
	}
	tag, err := s.q.Exec(ctx, `
		UPDATE driver_progress_stages
		SET current_state = $2,
		    previous_state = $3,
		    next_state = $4,
		    stages = $5,
		    events = $6,
		    estimated_time_remaining = $7,
		    actual_time_spent = $8,
		    total_distance_travelled = $9,
		    total_tips = $10,
		    total_earns = $11,
		    is_terminal = $12,
		    updated_at = $13
		WHERE id = $1`,
		string(p.ID),
		nullLabel(p.CurrentState),
		nullLabel(p.PreviousState),
		nullLabel(p.NextState),
		stages, events,
		p.EstimatedTimeRemaining, p.ActualTimeSpent, p.TotalDistanceTravelled,
		p.TotalTips, p.TotalEarns,
		p.Terminal(),
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update progress stage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id types.ID) (*DriverProgressStage, error) {
	return s.one(ctx, selectStage+` WHERE id = $1`, string(id))
}

// GetForUpdate row-locks the stage for the rest of the surrounding transaction.
func (s *Store) GetForUpdate(ctx context.Context, id types.ID) (*DriverProgressStage, error) {
	return s.one(ctx, selectStage+` WHERE id = $1 FOR UPDATE`, string(id))
}

func (s *Store) FindActiveByDriver(ctx context.Context, driverID types.ID) (*DriverProgressStage, error) {
	return s.one(ctx, selectStage+` WHERE driver_id = $1 AND NOT is_terminal`, string(driverID))
}

func (s *Store) FindActiveByDriverForUpdate(ctx context.Context, driverID types.ID) (*DriverProgressStage, error) {
	return s.one(ctx, selectStage+` WHERE driver_id = $1 AND NOT is_terminal FOR UPDATE`, string(driverID))
}

func (s *Store) one(ctx context.Context, query string, args ...any) (*DriverProgressStage, error) {
	var p DriverProgressStage
	var current, previous, next *string
	var stages, events []byte

	err := s.q.QueryRow(ctx, query, args...).Scan(
		&p.ID, &p.DriverID, &current, &previous, &next,
		&stages, &events,
		&p.EstimatedTimeRemaining, &p.ActualTimeSpent, &p.TotalDistanceTravelled,
		&p.TotalTips, &p.TotalEarns, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if p.CurrentState, err = parseNullLabel(current); err != nil {
		return nil, err
	}
	if p.PreviousState, err = parseNullLabel(previous); err != nil {
		return nil, err
	}
	if p.NextState, err = parseNullLabel(next); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(stages, &p.Stages); err != nil {
		return nil, fmt.Errorf("decode stages: %w", err)
	}
	if len(events) > 0 {
		if err := json.Unmarshal(events, &p.Events); err != nil {
			return nil, fmt.Errorf("decode events: %w", err)
		}
	}

	orders, err := s.orders(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Orders = orders
	return &p, nil
}

func (s *Store) orders(ctx context.Context, stageID types.ID) ([]types.ID, error) {
	rows, err := s.q.Query(ctx, `
		SELECT order_id FROM driver_progress_stage_orders
		WHERE stage_id = $1
		ORDER BY slot`, string(stageID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []types.ID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, types.ID(id))
	}
	return ids, rows.Err()
}

func (s *Store) insertOrder(ctx context.Context, stageID, orderID types.ID, slot int) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO driver_progress_stage_orders (stage_id, order_id, slot)
		VALUES ($1, $2, $3)`,
		string(stageID), string(orderID), slot,
	)
	if err != nil {
		return fmt.Errorf("insert stage order: %w", err)
	}
	return nil
}

func encodeJSON(p *DriverProgressStage) ([]byte, []byte, error) {
	stages := p.Stages
	if stages == nil {
		stages = []Stage{}
	}
	events := p.Events
	if events == nil {
		events = []Event{}
	}
	sb, err := json.Marshal(stages)
	if err != nil {
		return nil, nil, fmt.Errorf("encode stages: %w", err)
	}
	eb, err := json.Marshal(events)
	if err != nil {
		return nil, nil, fmt.Errorf("encode events: %w", err)
	}
	return sb, eb, nil
}

func nullLabel(l Label) *string {
	if l.IsZero() {
		return nil
	}
	s := l.String()
	return &s
}

func parseNullLabel(s *string) (Label, error) {
	if s == nil {
		return Label{}, nil
	}
	return ParseLabel(*s)
}
