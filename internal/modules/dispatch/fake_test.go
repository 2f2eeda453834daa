package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"courier/internal/infra"
	"courier/internal/lock"
	"courier/internal/modules/driver"
	"courier/internal/modules/order"
	"courier/internal/modules/progress"
	"courier/internal/modules/wage"
	"courier/internal/notify"
	"courier/internal/retry"
	"courier/internal/types"
)

// memState is one committed snapshot of the fake database.
type memState struct {
	orders  map[types.ID]order.Order
	drivers map[types.ID]driver.Driver
	stages  map[types.ID]*progress.DriverProgressStage
	events  []order.Event
}

func (s *memState) clone() *memState {
	cp := &memState{
		orders:  make(map[types.ID]order.Order, len(s.orders)),
		drivers: make(map[types.ID]driver.Driver, len(s.drivers)),
		stages:  make(map[types.ID]*progress.DriverProgressStage, len(s.stages)),
		events:  append([]order.Event(nil), s.events...),
	}
	for k, v := range s.orders {
		cp.orders[k] = v
	}
	for k, v := range s.drivers {
		v.CurrentOrders = append([]types.ID(nil), v.CurrentOrders...)
		cp.drivers[k] = v
	}
	for k, v := range s.stages {
		cp.stages[k] = v.Clone()
	}
	return cp
}

// memDB runs transactions one at a time against a copy of the state and
// swaps it in on commit, which gives serializable semantics.
type memDB struct {
	mu    sync.Mutex
	state *memState

	// conflictsLeft makes the next n commits fail with a serialization error.
	conflictsLeft int
	// delay stalls every transaction before it runs.
	delay   time.Duration
	commits int
}

func newMemDB() *memDB {
	return &memDB{state: &memState{
		orders:  map[types.ID]order.Order{},
		drivers: map[types.ID]driver.Driver{},
		stages:  map[types.ID]*progress.DriverProgressStage{},
	}}
}

func (db *memDB) Serializable(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error {
	policy := retry.Policy{Attempts: 3, Backoff: time.Millisecond, Retryable: infra.IsRetryable}
	return retry.Do(ctx, policy, func(ctx context.Context) error {
		return db.once(ctx, fn)
	})
}

func (db *memDB) once(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.delay > 0 {
		select {
		case <-time.After(db.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	tx := db.state.clone()
	if err := fn(ctx, &memUoW{st: tx}); err != nil {
		return err
	}
	if db.conflictsLeft > 0 {
		db.conflictsLeft--
		return &pgconn.PgError{Code: "40001", Message: "could not serialize access"}
	}
	active := map[types.ID]int{}
	for _, p := range tx.stages {
		if !p.Terminal() {
			active[p.DriverID]++
			if active[p.DriverID] > 1 {
				return &pgconn.PgError{Code: "23505", ConstraintName: infra.ActiveStageConstraint}
			}
		}
	}
	db.state = tx
	db.commits++
	return nil
}

func (db *memDB) FindActiveByDriver(_ context.Context, driverID types.ID) (*progress.DriverProgressStage, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return (&memStages{st: db.state}).FindActiveByDriverForUpdate(context.Background(), driverID)
}

func (db *memDB) order(id types.ID) order.Order {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.state.orders[id]
}

func (db *memDB) driver(id types.ID) driver.Driver {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.state.drivers[id]
}

func (db *memDB) stage(id types.ID) *progress.DriverProgressStage {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.state.stages[id].Clone()
}

func (db *memDB) activeStages(driverID types.ID) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	n := 0
	for _, p := range db.state.stages {
		if p.DriverID == driverID && !p.Terminal() {
			n++
		}
	}
	return n
}

func (db *memDB) editOrder(id types.ID, fn func(o *order.Order)) {
	db.mu.Lock()
	defer db.mu.Unlock()
	o := db.state.orders[id]
	fn(&o)
	db.state.orders[id] = o
}

func (db *memDB) putStage(p *progress.DriverProgressStage) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.state.stages[p.ID] = p.Clone()
}

type memUoW struct{ st *memState }

func (u *memUoW) Orders() OrderRepo   { return &memOrders{st: u.st} }
func (u *memUoW) Drivers() DriverRepo { return &memDrivers{st: u.st} }
func (u *memUoW) Stages() StageRepo   { return &memStages{st: u.st} }

type memOrders struct{ st *memState }

func (r *memOrders) FindWithRelationsLocked(_ context.Context, id types.ID) (*order.Order, error) {
	o, ok := r.st.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return &o, nil
}

func (r *memOrders) Save(_ context.Context, o *order.Order) error {
	cur, ok := r.st.orders[o.ID]
	if !ok {
		return order.ErrNotFound
	}
	if cur.StatusVersion != o.StatusVersion {
		return order.ErrConflict
	}
	o.StatusVersion++
	r.st.orders[o.ID] = *o
	return nil
}

func (r *memOrders) AppendEvent(_ context.Context, e *order.Event) error {
	r.st.events = append(r.st.events, *e)
	return nil
}

type memDrivers struct{ st *memState }

func (r *memDrivers) FindWithBundleLocked(_ context.Context, id types.ID) (*driver.Driver, error) {
	d, ok := r.st.drivers[id]
	if !ok {
		return nil, driver.ErrNotFound
	}
	d.CurrentOrders = append([]types.ID(nil), d.CurrentOrders...)
	return &d, nil
}

func (r *memDrivers) Save(_ context.Context, d *driver.Driver) error {
	cp := *d
	cp.CurrentOrders = append([]types.ID(nil), d.CurrentOrders...)
	r.st.drivers[d.ID] = cp
	return nil
}

type memStages struct{ st *memState }

func (r *memStages) Create(_ context.Context, p *progress.DriverProgressStage) error {
	if _, ok := r.st.stages[p.ID]; ok {
		return errors.New("duplicate stage id")
	}
	r.st.stages[p.ID] = p.Clone()
	return nil
}

func (r *memStages) AppendOrder(ctx context.Context, p *progress.DriverProgressStage, _ types.ID, _ int) error {
	return r.Update(ctx, p)
}

func (r *memStages) Update(_ context.Context, p *progress.DriverProgressStage) error {
	if _, ok := r.st.stages[p.ID]; !ok {
		return progress.ErrNotFound
	}
	r.st.stages[p.ID] = p.Clone()
	return nil
}

func (r *memStages) GetForUpdate(_ context.Context, id types.ID) (*progress.DriverProgressStage, error) {
	p, ok := r.st.stages[id]
	if !ok {
		return nil, progress.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *memStages) FindActiveByDriverForUpdate(_ context.Context, driverID types.ID) (*progress.DriverProgressStage, error) {
	for _, p := range r.st.stages {
		if p.DriverID == driverID && !p.Terminal() {
			return p.Clone(), nil
		}
	}
	return nil, progress.ErrNotFound
}

type recordingNotifier struct {
	mu      sync.Mutex
	changes []notify.StageChange
	err     error
}

func (n *recordingNotifier) Notify(_ context.Context, c notify.StageChange) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, c)
	return n.err
}

func (n *recordingNotifier) all() []notify.StageChange {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.StageChange(nil), n.changes...)
}

func (n *recordingNotifier) byKey(key string) (notify.StageChange, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, c := range n.changes {
		if c.Key == key {
			return c, true
		}
	}
	return notify.StageChange{}, false
}

type recordingStats struct {
	mu      sync.Mutex
	drivers []types.ID
	err     error
}

func (s *recordingStats) RecomputeForDriver(_ context.Context, driverID types.ID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drivers = append(s.drivers, driverID)
	return s.err
}

func (s *recordingStats) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.drivers)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	t        *testing.T
	db       *memDB
	svc      *Service
	notifier *recordingNotifier
	stats    *recordingStats
	clock    *fakeClock
	locks    *lock.Registry
	driverID types.ID
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		db:       newMemDB(),
		notifier: &recordingNotifier{},
		stats:    &recordingStats{},
		clock:    &fakeClock{t: time.Unix(1700000000, 0)},
		locks:    lock.NewRegistry(),
	}
	if cfg.Now == nil {
		cfg.Now = h.clock.Now
	}
	h.svc = NewService(Deps{
		Tx:       h.db,
		Reader:   h.db,
		Wages:    wage.NewService(nil, wage.DefaultTable(""), nil),
		Notifier: h.notifier,
		Stats:    h.stats,
		Locks:    h.locks,
	}, cfg)
	h.driverID = h.addDriver()
	return h
}

func (h *harness) addDriver() types.ID {
	id := types.NewID()
	h.db.mu.Lock()
	defer h.db.mu.Unlock()
	h.db.state.drivers[id] = driver.Driver{
		ID:       id,
		Name:     "Lin",
		Location: &types.Point{Lat: 25.04, Lng: 121.55},
	}
	return id
}

func (h *harness) addOrder(distance, tips float64) types.ID {
	id := types.NewID()
	customerID, restaurantID := types.NewID(), types.NewID()
	h.db.mu.Lock()
	defer h.db.mu.Unlock()
	h.db.state.orders[id] = order.Order{
		ID:               id,
		CustomerID:       customerID,
		RestaurantID:     restaurantID,
		Status:           order.StatusPreparing,
		Tracking:         order.TrackingPreparing,
		Distance:         distance,
		DriverTips:       tips,
		DeliveryAddress:  "9 Side St",
		DeliveryLocation: types.Point{Lat: 25.05, Lng: 121.57},
		Customer:         &order.Party{ID: customerID, Name: "Ada", FCMToken: "cust-token"},
		Restaurant:       &order.Party{ID: restaurantID, Name: "Noodle Bar", Address: "1 Main St", Location: types.Point{Lat: 25.03, Lng: 121.56}},
	}
	return id
}

func (h *harness) accept(driverID, orderID types.ID) Result {
	h.t.Helper()
	return h.svc.AcceptOrder(context.Background(), AcceptCommand{DriverID: driverID, OrderID: orderID})
}

func (h *harness) mustAccept(orderID types.ID) *progress.DriverProgressStage {
	h.t.Helper()
	r := h.accept(h.driverID, orderID)
	if !r.Success {
		h.t.Fatalf("accept %s: %s (%s)", orderID, r.Message, r.Kind)
	}
	return r.Stage
}

func (h *harness) advance(stageID types.ID, orderID *types.ID) Result {
	h.t.Helper()
	return h.svc.AdvanceProgress(context.Background(), AdvanceCommand{StageID: stageID, OrderID: orderID})
}

func (h *harness) mustAdvance(stageID types.ID) *progress.DriverProgressStage {
	h.t.Helper()
	r := h.advance(stageID, nil)
	if !r.Success {
		h.t.Fatalf("advance %s: %s (%s)", stageID, r.Message, r.Kind)
	}
	return r.Stage
}

func (h *harness) drain() {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.svc.Drain(ctx); err != nil {
		h.t.Fatalf("drain: %v", err)
	}
}
