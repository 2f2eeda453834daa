// README: Best-effort post-commit work (stats recompute + notification), tracked for draining.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"courier/internal/notify"
	"courier/internal/stats"
	"courier/internal/types"
)

type postCommit struct {
	notifier Notifier
	stats    StatsRecomputer
	timeout  time.Duration
	log      *slog.Logger
	wg       sync.WaitGroup
}

func newPostCommit(n Notifier, st StatsRecomputer, timeout time.Duration, log *slog.Logger) *postCommit {
	return &postCommit{notifier: n, stats: st, timeout: timeout, log: log}
}

// dispatch runs the side effects of one committed change in the background.
// Failures are logged and never reach the caller.
func (p *postCommit) dispatch(change *notify.StageChange, recompute bool) {
	if change == nil && !recompute {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()

		var g errgroup.Group
		if recompute && p.stats != nil && change != nil {
			driverID := change.DriverID
			g.Go(func() error {
				p.recompute(ctx, driverID)
				return nil
			})
		}
		if change != nil && p.notifier != nil {
			c := *change
			g.Go(func() error {
				if err := p.notifier.Notify(ctx, c); err != nil {
					p.log.Warn("notification failed", "driver_id", c.DriverID, "event", c.Event, "key", c.Key, "error", err)
				}
				return nil
			})
		}
		_ = g.Wait()
	}()
}

func (p *postCommit) recompute(ctx context.Context, driverID types.ID) {
	if err := p.stats.RecomputeForDriver(ctx, driverID, stats.PeriodToday); err != nil {
		p.log.Warn("stats recompute failed", "driver_id", driverID, "error", err)
	}
}

func (p *postCommit) drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
