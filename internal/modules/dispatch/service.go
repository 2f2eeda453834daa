// README: Dispatch service: accept and advance protocols over a serializable unit of work.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"courier/internal/lock"
	"courier/internal/modules/progress"
	"courier/internal/types"
)

const (
	defaultAcceptTimeout = 10 * time.Second
	defaultRouteTimeout  = 2 * time.Second
	defaultPostTimeout   = 10 * time.Second
)

type Deps struct {
	Tx       Transactor
	Reader   StageReader
	Wages    WageCalculator
	Routes   RouteEstimator // optional
	Notifier Notifier       // optional
	Stats    StatsRecomputer
	Locks    *lock.Registry
	Logger   *slog.Logger
}

type Config struct {
	AcceptTimeout time.Duration
	RouteTimeout  time.Duration
	PostTimeout   time.Duration
	Now           func() time.Time
}

type Service struct {
	tx     Transactor
	reader StageReader
	wages  WageCalculator
	routes RouteEstimator
	locks  *lock.Registry
	post   *postCommit
	log    *slog.Logger

	acceptTimeout time.Duration
	routeTimeout  time.Duration
	now           func() time.Time
}

func NewService(d Deps, cfg Config) *Service {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	locks := d.Locks
	if locks == nil {
		locks = lock.NewRegistry()
	}
	if cfg.AcceptTimeout <= 0 {
		cfg.AcceptTimeout = defaultAcceptTimeout
	}
	if cfg.RouteTimeout <= 0 {
		cfg.RouteTimeout = defaultRouteTimeout
	}
	if cfg.PostTimeout <= 0 {
		cfg.PostTimeout = defaultPostTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		tx:            d.Tx,
		reader:        d.Reader,
		wages:         d.Wages,
		routes:        d.Routes,
		locks:         locks,
		post:          newPostCommit(d.Notifier, d.Stats, cfg.PostTimeout, log),
		log:           log,
		acceptTimeout: cfg.AcceptTimeout,
		routeTimeout:  cfg.RouteTimeout,
		now:           cfg.Now,
	}
}

// GetActiveStage returns the driver's bundle in flight.
func (s *Service) GetActiveStage(ctx context.Context, driverID types.ID) Result {
	if !driverID.Valid() {
		return failure(&Error{Kind: KindValidation, Message: "driver_id must be a UUID"})
	}
	p, err := s.reader.FindActiveByDriver(ctx, driverID)
	if errors.Is(err, progress.ErrNotFound) {
		return failure(ErrNoActiveStage)
	}
	if err != nil {
		s.log.Error("get active stage failed", "driver_id", driverID, "error", err)
		return failure(err)
	}
	return Result{Success: true, Stage: p}
}

// Drain waits for in-flight post-commit work, or until ctx is done.
func (s *Service) Drain(ctx context.Context) error {
	return s.post.drain(ctx)
}
