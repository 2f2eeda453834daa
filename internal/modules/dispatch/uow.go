// README: PostgreSQL unit of work: tx-bound stores behind the dispatch repositories.
package dispatch

import (
	"context"

	"github.com/jackc/pgx/v5"

	"courier/internal/infra"
	"courier/internal/modules/driver"
	"courier/internal/modules/order"
	"courier/internal/modules/progress"
)

type pgUnitOfWork struct {
	orders  *order.Store
	drivers *driver.Store
	stages  *progress.Store
}

// NewUnitOfWork binds every store to q, typically a pgx.Tx the caller owns.
func NewUnitOfWork(q infra.Querier) UnitOfWork {
	return &pgUnitOfWork{
		orders:  order.NewStore(q),
		drivers: driver.NewStore(q),
		stages:  progress.NewStore(q),
	}
}

func (u *pgUnitOfWork) Orders() OrderRepo   { return u.orders }
func (u *pgUnitOfWork) Drivers() DriverRepo { return u.drivers }
func (u *pgUnitOfWork) Stages() StageRepo   { return u.stages }

type PgTransactor struct {
	tx *infra.Transactor
}

func NewPgTransactor(tx *infra.Transactor) *PgTransactor {
	return &PgTransactor{tx: tx}
}

func (t *PgTransactor) Serializable(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error {
	return t.tx.Serializable(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, NewUnitOfWork(tx))
	})
}
