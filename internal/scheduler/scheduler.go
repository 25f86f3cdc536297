package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/me/govm/internal/executor"
	"github.com/me/govm/pkg/model"
)

// Config holds the scheduler topology and admission limits.
type Config struct {
	Units []model.UnitSpec

	// MaxWaitingPerObject raises backpressure when any mirrored object has
	// more queued requests than this. 0 disables the check.
	MaxWaitingPerObject int

	// MaxInbound raises backpressure when more messages than this await
	// the next tick. 0 disables the check.
	MaxInbound int
}

// Journal records dispatch history. It is called on the tick goroutine, so
// implementations should not block. Write failures are logged and never
// interrupt a tick.
type Journal interface {
	RecordLaunch(ctx context.Context, rec *model.PackageRecord) error
	RecordRelease(ctx context.Context, packageID string, tick uint64, failure string) error
	RecordIdle(ctx context.Context, ev *model.IdleEvent) error
}

// IdleHook is called when a release leaves a replica with neither holders
// nor waiters.
type IdleHook func(lo *LogicalObject, replica model.ParallelID)

// Option configures optional Scheduler dependencies.
type Option func(*Scheduler)

// WithIdleHook sets the object-became-idle callback.
func WithIdleHook(fn IdleHook) Option {
	return func(s *Scheduler) {
		s.idleHook = fn
	}
}

// WithJournal sets the dispatch journal.
func WithJournal(j Journal) Option {
	return func(s *Scheduler) {
		s.journal = j
	}
}

// Scheduler decides, tick by tick, which received instructions may launch
// on which execution unit. Receive and Backpressure are safe for concurrent
// use; every other method must be called from a single goroutine.
type Scheduler struct {
	config   Config
	logger   *slog.Logger
	dir      *Directory
	idleHook IdleHook
	journal  Journal

	units    map[model.UnitType][]*ExecutionUnit
	unitList []*ExecutionUnit

	inMu     sync.Mutex
	inbound  []*model.InstructionMessage
	received uint64

	requests   map[uint64]*AccessRequest
	waiting    map[uint64]*InstructionContext
	ready      []*InstructionContext
	candidates []*MirroredObject
	active     []*ExecutionUnit
	overloaded map[*MirroredObject]struct{}
	pressure   atomic.Bool

	nextRequest uint64
	nextContext uint64
	inFlight    int
	tick        uint64
	counters    model.Counters
	err         error
}

// New builds a scheduler with one execution unit per parallel id of every
// configured unit type. Each unit type must have an executor in reg.
func New(cfg Config, reg *executor.Registry, logger *slog.Logger, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		config:     cfg,
		logger:     logger.With("component", "scheduler"),
		dir:        NewDirectory(),
		units:      make(map[model.UnitType][]*ExecutionUnit),
		requests:   make(map[uint64]*AccessRequest),
		waiting:    make(map[uint64]*InstructionContext),
		overloaded: make(map[*MirroredObject]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, spec := range cfg.Units {
		switch {
		case spec.Type == "":
			return nil, fmt.Errorf("unit type is required")
		case spec.Type == model.ControlUnitType:
			return nil, fmt.Errorf("unit type %q is reserved", spec.Type)
		case spec.Count <= 0:
			return nil, fmt.Errorf("unit type %q: count must be positive, got %d", spec.Type, spec.Count)
		}
		if _, dup := s.units[spec.Type]; dup {
			return nil, fmt.Errorf("unit type %q declared twice", spec.Type)
		}
		exec, err := reg.Get(spec.Type)
		if err != nil {
			return nil, err
		}
		units := make([]*ExecutionUnit, spec.Count)
		for i := range units {
			units[i] = &ExecutionUnit{
				id:   model.UnitID{Type: spec.Type, Parallel: model.ParallelID(i)},
				exec: exec,
			}
			s.unitList = append(s.unitList, units[i])
		}
		s.units[spec.Type] = units
	}
	return s, nil
}

// Directory returns the state directory.
func (s *Scheduler) Directory() *Directory {
	return s.dir
}

// Receive appends messages to the inbound queue and returns their ids.
// Messages without an id are assigned one. Nothing is resolved until the
// next Tick.
func (s *Scheduler) Receive(msgs []*model.InstructionMessage) []string {
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		if m.ID == "" {
			m.ID = "ins_" + uuid.New().String()
		}
		ids[i] = m.ID
	}

	s.inMu.Lock()
	s.inbound = append(s.inbound, msgs...)
	s.received += uint64(len(msgs))
	s.inMu.Unlock()
	return ids
}

// HasUnitType reports whether t is the control type or a configured unit
// type. The topology is fixed by New, so this is safe for concurrent use.
func (s *Scheduler) HasUnitType(t model.UnitType) bool {
	if t == model.ControlUnitType {
		return true
	}
	_, ok := s.units[t]
	return ok
}

// Backpressure reports whether producers should hold off. It is set when
// an object's waiting queue or the inbound queue exceeds its configured
// bound. Requests are never dropped either way.
func (s *Scheduler) Backpressure() bool {
	if s.pressure.Load() {
		return true
	}
	if s.config.MaxInbound <= 0 {
		return false
	}
	s.inMu.Lock()
	defer s.inMu.Unlock()
	return len(s.inbound) > s.config.MaxInbound
}

// Err returns the contract violation that halted the scheduler, if any.
func (s *Scheduler) Err() error {
	return s.err
}

// Tick runs one admission-and-dispatch pass. A contract violation halts the
// scheduler: the same error is returned from every later Tick.
func (s *Scheduler) Tick(ctx context.Context) error {
	if s.err != nil {
		return s.err
	}
	s.tick++

	// Phase 1: Reap finished packages; freed objects become candidates.
	if err := s.reap(ctx); err != nil {
		return s.fail(fmt.Errorf("tick %d: phase 1 (reap): %w", s.tick, err))
	}

	// Phase 2: Run control instructions, then expand data instructions.
	if err := s.admit(ctx); err != nil {
		return s.fail(fmt.Errorf("tick %d: phase 2 (admit): %w", s.tick, err))
	}

	// Phase 3: Grant waiting requests on candidate objects.
	if err := s.resolve(); err != nil {
		return s.fail(fmt.Errorf("tick %d: phase 3 (resolve): %w", s.tick, err))
	}

	// Phase 4: Batch ready contexts per unit and launch.
	if err := s.dispatch(ctx); err != nil {
		return s.fail(fmt.Errorf("tick %d: phase 4 (dispatch): %w", s.tick, err))
	}

	s.updatePressure()
	return nil
}

func (s *Scheduler) fail(err error) error {
	s.err = err
	s.logger.Error("scheduler halted", "tick", s.tick, "error", err)
	return err
}

// Idle reports whether there is nothing left to do: no inbound messages,
// no waiting or ready contexts, and no packages in flight.
func (s *Scheduler) Idle() bool {
	s.inMu.Lock()
	inbound := len(s.inbound)
	s.inMu.Unlock()
	return inbound == 0 && len(s.waiting) == 0 && len(s.ready) == 0 && s.inFlight == 0
}

// Snapshot returns a point-in-time view of every object and unit.
func (s *Scheduler) Snapshot() model.Snapshot {
	s.inMu.Lock()
	inbound := len(s.inbound)
	received := s.received
	s.inMu.Unlock()

	snap := model.Snapshot{
		Tick:            s.tick,
		Inbound:         inbound,
		WaitingContexts: len(s.waiting),
		InFlight:        s.inFlight,
		Backpressure:    s.Backpressure(),
		Objects:         make([]model.ObjectSnapshot, 0, s.dir.Len()),
		Units:           make([]model.UnitSnapshot, 0, len(s.unitList)),
		Counters:        s.counters,
	}
	snap.Counters.Received = received
	s.dir.Ascend(func(lo *LogicalObject) bool {
		snap.Objects = append(snap.Objects, lo.snapshot())
		return true
	})
	for _, u := range s.unitList {
		snap.Units = append(snap.Units, u.snapshot())
	}
	return snap
}

// Object returns the snapshot of one logical object.
func (s *Scheduler) Object(id model.LogicalObjectID) (model.ObjectSnapshot, bool) {
	lo, ok := s.dir.Get(id)
	if !ok {
		return model.ObjectSnapshot{}, false
	}
	return lo.snapshot(), true
}

// reap releases finished packages on every unit in submission order. A
// package that is not done blocks the ones launched after it.
func (s *Scheduler) reap(ctx context.Context) error {
	for _, u := range s.unitList {
		for len(u.launched) > 0 {
			pkg := u.launched[0]
			if !u.exec.IsDone(pkg.handle) {
				break
			}
			if err := s.releasePackage(ctx, pkg); err != nil {
				return err
			}
			u.launched[0] = nil
			u.launched = u.launched[1:]
			s.inFlight--
		}
	}
	return nil
}

// releasePackage drops every access held by the contexts of pkg.
func (s *Scheduler) releasePackage(ctx context.Context, pkg *InstructionPackage) error {
	if pkg.state == model.PackageStateReleased {
		return model.NewViolation(model.ViolationPackageReaped, "package %s on %s", pkg.id, pkg.unit.id)
	}

	var failure string
	if fr, ok := pkg.unit.exec.(executor.FailureReporter); ok {
		if err := fr.Err(pkg.handle); err != nil {
			failure = err.Error()
			s.counters.PackagesFailed++
			s.logger.Warn("package finished with error", "package_id", pkg.id, "unit", pkg.unit.id.String(), "error", err)
		}
	}

	for _, c := range pkg.contexts {
		for _, r := range c.holding.items() {
			if err := s.releaseAccess(ctx, r); err != nil {
				return err
			}
		}
		if err := c.transition(model.ContextStateDone); err != nil {
			return err
		}
		s.counters.ContextsReleased++
	}
	pkg.state = model.PackageStateReleased
	s.counters.PackagesReleased++

	if f, ok := pkg.unit.exec.(executor.Forgetter); ok {
		f.Forget(pkg.handle)
	}
	if s.journal != nil {
		if err := s.journal.RecordRelease(ctx, pkg.id, s.tick, failure); err != nil {
			s.logger.Warn("journal release", "package_id", pkg.id, "error", err)
		}
	}
	s.logger.Debug("package released", "package_id", pkg.id, "unit", pkg.unit.id.String(), "size", len(pkg.contexts), "tick", s.tick)
	return nil
}

// releaseAccess removes r from its object and context. An object left
// without holders resets its mode and either becomes a resolution
// candidate or, with nothing waiting, goes idle.
func (s *Scheduler) releaseAccess(ctx context.Context, r *AccessRequest) error {
	if _, ok := s.requests[r.id]; !ok {
		return model.NewViolation(model.ViolationDoubleRelease, "request %d on logical object %d", r.id, r.object.logical.id)
	}
	mo := r.object
	if !mo.holding.remove(r) {
		return model.NewViolation(model.ViolationDoubleRelease, "request %d does not hold logical object %d", r.id, mo.logical.id)
	}
	r.ctx.holding.remove(r)
	delete(s.requests, r.id)

	if !mo.holding.empty() {
		return nil
	}
	mo.mode = model.AccessNone
	if mo.waiting.empty() {
		s.objectIdle(ctx, mo)
		return nil
	}
	s.markCandidate(mo)
	return nil
}

func (s *Scheduler) objectIdle(ctx context.Context, mo *MirroredObject) {
	if s.idleHook != nil {
		s.idleHook(mo.logical, mo.parallel)
	}
	if s.journal != nil {
		ev := &model.IdleEvent{Object: mo.logical.id, Parallel: mo.parallel, Tick: s.tick, At: time.Now().UTC()}
		if err := s.journal.RecordIdle(ctx, ev); err != nil {
			s.logger.Warn("journal idle", "object", mo.logical.id, "error", err)
		}
	}
}

// markCandidate queues mo for resolution at most once per tick.
func (s *Scheduler) markCandidate(mo *MirroredObject) {
	if mo.candidate {
		return
	}
	mo.candidate = true
	s.candidates = append(s.candidates, mo)
}

// admit drains the inbound queue. Control instructions run first so that
// directory changes are visible to every data instruction of the batch.
func (s *Scheduler) admit(ctx context.Context) error {
	s.inMu.Lock()
	msgs := s.inbound
	s.inbound = nil
	s.inMu.Unlock()
	if len(msgs) == 0 {
		return nil
	}

	data := make([]*model.InstructionMessage, 0, len(msgs))
	for _, m := range msgs {
		if !m.IsControl() {
			data = append(data, m)
			continue
		}
		if err := s.runControl(m); err != nil {
			return fmt.Errorf("control instruction %s: %w", m.ID, err)
		}
	}

	for _, m := range data {
		if err := s.expand(m); err != nil {
			return fmt.Errorf("instruction %s: %w", m.ID, err)
		}
	}
	return nil
}

// expand creates one context per unit of the message's unit type and
// queues an access request per distinct object operand.
func (s *Scheduler) expand(m *model.InstructionMessage) error {
	units, ok := s.units[m.UnitType]
	if !ok {
		return model.NewViolation(model.ViolationUnknownUnitType, "unit type %q", m.UnitType)
	}
	accesses := operandAccesses(m)

	for _, u := range units {
		s.nextContext++
		c := newInstructionContext(s.nextContext, m, u)
		s.counters.ContextsCreated++

		for _, a := range accesses {
			mo, err := s.dir.Resolve(a.object, u.id.Parallel)
			if err != nil {
				return fmt.Errorf("on %s: %w", u.id, err)
			}
			s.nextRequest++
			r := &AccessRequest{id: s.nextRequest, kind: a.kind, ctx: c, object: mo}
			s.requests[r.id] = r
			mo.waiting.pushBack(r)
			c.waiting.pushBack(r)
			s.markCandidate(mo)
			if limit := s.config.MaxWaitingPerObject; limit > 0 && mo.waiting.len() > limit {
				s.overloaded[mo] = struct{}{}
			}
		}

		if c.waiting.empty() {
			if err := s.markReady(c); err != nil {
				return err
			}
			continue
		}
		s.waiting[c.id] = c
	}
	return nil
}

func (s *Scheduler) markReady(c *InstructionContext) error {
	if err := c.transition(model.ContextStateReady); err != nil {
		return err
	}
	delete(s.waiting, c.id)
	s.ready = append(s.ready, c)
	return nil
}

// resolve grants waiting requests on every candidate object in FIFO order.
func (s *Scheduler) resolve() error {
	for _, mo := range s.candidates {
		mo.candidate = false
		mo.resetModeIfFree()
		for r := mo.firstAllowed(); r != nil; r = mo.firstAllowed() {
			mo.grant(r)
			c := r.ctx
			c.waiting.remove(r)
			c.holding.pushBack(r)
			if c.waiting.empty() {
				if err := s.markReady(c); err != nil {
					return err
				}
			}
		}
	}
	clear(s.candidates)
	s.candidates = s.candidates[:0]
	return nil
}

// dispatch moves ready contexts onto their units and launches one package
// per unit that collected anything this tick.
func (s *Scheduler) dispatch(ctx context.Context) error {
	for _, c := range s.ready {
		if err := c.transition(model.ContextStateCollected); err != nil {
			return err
		}
		u := c.unit
		u.collect = append(u.collect, c)
		if !u.active {
			u.active = true
			s.active = append(s.active, u)
		}
	}
	clear(s.ready)
	s.ready = s.ready[:0]

	for _, u := range s.active {
		pkg := &InstructionPackage{
			id:       "pkg_" + uuid.New().String(),
			unit:     u,
			contexts: u.collect,
			tick:     s.tick,
			state:    model.PackageStateLaunched,
		}
		u.collect = nil
		u.active = false
		for _, c := range pkg.contexts {
			if err := c.transition(model.ContextStateLaunched); err != nil {
				return err
			}
		}

		h, err := u.exec.Launch(ctx, pkg.view())
		if err != nil {
			return model.NewViolation(model.ViolationLaunchRejected, "package %s on %s: %v", pkg.id, u.id, err)
		}
		pkg.handle = h
		u.launched = append(u.launched, pkg)
		s.inFlight++
		s.counters.PackagesLaunched++

		if s.journal != nil {
			rec := pkg.record()
			rec.LaunchedAt = time.Now().UTC()
			if err := s.journal.RecordLaunch(ctx, rec); err != nil {
				s.logger.Warn("journal launch", "package_id", pkg.id, "error", err)
			}
		}
		s.logger.Debug("package launched", "package_id", pkg.id, "unit", u.id.String(), "size", len(pkg.contexts), "tick", s.tick)
	}
	clear(s.active)
	s.active = s.active[:0]
	return nil
}

// updatePressure refreshes the per-object backpressure flag.
func (s *Scheduler) updatePressure() {
	limit := s.config.MaxWaitingPerObject
	for mo := range s.overloaded {
		if limit <= 0 || mo.waiting.len() <= limit {
			delete(s.overloaded, mo)
		}
	}
	pressured := len(s.overloaded) > 0
	if pressured && !s.pressure.Load() {
		s.logger.Warn("backpressure on", "objects", len(s.overloaded), "max_waiting_per_object", limit)
	} else if !pressured && s.pressure.Load() {
		s.logger.Info("backpressure off")
	}
	s.pressure.Store(pressured)
}
