// README: Wage service resolves the current table and prices a delivery.
package wage

import (
	"context"
	"errors"
	"log/slog"
)

type Service struct {
	provider Provider
	calc     *Calculator
	fallback Table
	log      *slog.Logger
}

// NewService prices against provider's latest table, using fallback when no
// table is published or the provider is unavailable. provider may be nil.
func NewService(provider Provider, fallback Table, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{provider: provider, calc: NewCalculator(), fallback: fallback, log: log}
}

func (s *Service) Wage(ctx context.Context, distance float64) (float64, error) {
	if !ValidDistance(distance) {
		return 0, ErrInvalidDistance
	}
	table := s.table(ctx)
	return s.calc.Calculate(table, distance)
}

func (s *Service) table(ctx context.Context) Table {
	if s.provider == nil {
		return s.fallback
	}
	t, err := s.provider.LatestWageTable(ctx)
	if err != nil {
		if !errors.Is(err, ErrNoRules) {
			s.log.Warn("wage table unavailable, using fallback", "error", err)
		}
		return s.fallback
	}
	if t.Formula == "" {
		t.Formula = s.fallback.Formula
	}
	return t
}
