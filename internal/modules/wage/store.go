// README: Finance-rule store backed by PostgreSQL.
package wage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"courier/internal/infra"
)

type Store struct {
	db infra.Querier
}

func NewStore(db infra.Querier) *Store {
	return &Store{db: db}
}

// LatestWageTable returns the most recently published wage table.
func (s *Store) LatestWageTable(ctx context.Context) (Table, error) {
	var raw []byte
	var formula string
	err := s.db.QueryRow(ctx, `
		SELECT wage_table, formula
		FROM finance_rules
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
	).Scan(&raw, &formula)
	if errors.Is(err, pgx.ErrNoRows) {
		return Table{}, ErrNoRules
	}
	if err != nil {
		return Table{}, err
	}
	var t Table
	if err := json.Unmarshal(raw, &t.Bands); err != nil {
		return Table{}, fmt.Errorf("decode wage table: %w", err)
	}
	t.Formula = formula
	return t, nil
}

func (s *Store) Publish(ctx context.Context, t Table) error {
	raw, err := json.Marshal(t.Bands)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO finance_rules (wage_table, formula)
		VALUES ($1, $2)`, raw, t.Formula,
	)
	return err
}
