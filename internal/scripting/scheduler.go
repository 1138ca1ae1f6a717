package scripting

import (
	"fmt"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// SchedulerOptions configures a Scheduler. All hooks are optional.
type SchedulerOptions struct {
	// MaxThreadID bounds the id space; 0 means the full uint32 range.
	MaxThreadID uint32
	// OnError receives every script error that is not an intended termination.
	OnError func(t *Thread, err error)
	// OnReap is called once per thread when it leaves the scheduler.
	OnReap func(t *Thread, outcome Outcome)
	// OnFatal receives configuration errors raised from native bindings.
	// Defaults to logging at Fatal level, which exits the process.
	OnFatal func(err error)
}

// Location names the collection FindThread found a thread in.
type Location int

const (
	LocationNone Location = iota
	LocationActive
	LocationScratch
)

func (l Location) String() string {
	switch l {
	case LocationActive:
		return "active"
	case LocationScratch:
		return "scratch"
	}
	return "none"
}

// Scheduler multiplexes script threads over the simulation tick.
// Single-goroutine access only (frame loop and the bindings it resumes).
type Scheduler struct {
	vm       *lua.LState
	log      *zap.Logger
	opts     SchedulerOptions
	entities *entityValues

	active  []*Thread // resumed on every pass, in order
	pending []*Thread // created since pending was last drained
	scratch []*Thread // the pending batch being drained

	registry *NotifyRegistry
	ticking  bool
}

// NewScheduler binds a scheduler to vm and installs the threading natives
// (createThread, wait, yield, waittill, endon, onnotify, notify) and the
// global level entity.
func NewScheduler(vm *lua.LState, log *zap.Logger, opts SchedulerOptions) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Scheduler{
		log:      log,
		opts:     opts,
		registry: NewNotifyRegistry(NotifyCapacity),
	}
	if s.opts.OnFatal == nil {
		s.opts.OnFatal = func(err error) {
			s.log.Fatal("fatal script configuration error", zap.Error(err))
		}
	}
	s.bind(vm)
	return s
}

func (s *Scheduler) bind(vm *lua.LState) {
	s.vm = vm
	s.entities = newEntityValues(vm)
	s.openThreadLib(vm)
}

// ResetState drops every thread and notify registration and rebinds the
// scheduler to a fresh interpreter environment.
func (s *Scheduler) ResetState(vm *lua.LState) error {
	if s.ticking {
		return ErrReentrantTick
	}
	for _, list := range [...][]*Thread{s.active, s.pending, s.scratch} {
		for _, t := range list {
			t.state = ThreadReaped
			if t.cancel != nil {
				t.cancel()
			}
		}
	}
	clear(s.active)
	clear(s.pending)
	clear(s.scratch)
	s.active = s.active[:0]
	s.pending = s.pending[:0]
	s.scratch = s.scratch[:0]
	s.registry.Reset()
	s.bind(vm)
	return nil
}

// CreateThread queues a new thread that will call entry with args on its
// first resume. The thread first runs during the next Tick (or the current
// one, if called while a Tick is in progress).
func (s *Scheduler) CreateThread(entry *lua.LFunction, args ...lua.LValue) (*Thread, error) {
	if entry == nil {
		return nil, ErrNilEntry
	}
	id, err := s.newThreadID()
	if err != nil {
		return nil, err
	}
	co, cancel := s.vm.NewThread()
	t := &Thread{
		id:       id,
		co:       co,
		cancel:   cancel,
		entry:    entry,
		args:     append([]lua.LValue(nil), args...),
		argCount: len(args),
		firstRun: true,
	}
	s.pending = append(s.pending, t)
	return t, nil
}

// FindThread locates the thread running on co. Only active and the batch
// being drained are searched; a thread still in the raw pending list has
// never been resumed and so cannot be the caller of a binding.
func (s *Scheduler) FindThread(co *lua.LState) (*Thread, Location) {
	for _, t := range s.active {
		if t.co == co && t.alive() {
			return t, LocationActive
		}
	}
	for _, t := range s.scratch {
		if t.co == co && t.alive() {
			return t, LocationScratch
		}
	}
	return nil, LocationNone
}

// Tick runs one simulation pass.
func (s *Scheduler) Tick(dt time.Duration) error {
	return s.tick(dt, nil)
}

// TickEvent runs a filtered pass: only threads waiting on an event called
// name are resumed, whatever entity they wait on. No other thread is
// touched, so sleep timers are left as they were.
func (s *Scheduler) TickEvent(dt time.Duration, name string) error {
	filter, err := FoldEventName(name)
	if err != nil {
		return err
	}
	return s.tick(dt, &filter)
}

func (s *Scheduler) tick(dt time.Duration, filter *string) error {
	if s.ticking {
		return ErrReentrantTick
	}
	s.ticking = true
	defer func() { s.ticking = false }()

	// Phase 1: every active thread once. Creation only appends to pending,
	// so active is stable until compaction.
	for _, t := range s.active {
		s.step(t, dt, filter)
	}
	s.active = compact(s.active)

	// Phase 2: drain pending to a fixed point so a spawned chain reaches its
	// first suspension point within this call.
	for len(s.pending) > 0 {
		s.scratch = append(s.scratch[:0], s.pending...)
		clear(s.pending)
		s.pending = s.pending[:0]

		for _, t := range s.scratch {
			s.step(t, dt, filter)
		}
		for _, t := range s.scratch {
			if t.alive() {
				s.active = append(s.active, t)
			}
		}
		clear(s.scratch)
		s.scratch = s.scratch[:0]
	}
	return nil
}

func (s *Scheduler) step(t *Thread, dt time.Duration, filter *string) {
	if !t.alive() {
		return
	}

	if filter != nil {
		if !t.waitingFor(*filter) {
			return
		}
		t.clearWait()
		s.resume(t)
		return
	}

	if t.TerminateRequested() {
		s.reap(t, OutcomeCancelled)
		return
	}
	if t.sleep > 0 {
		t.sleep -= dt
		if t.sleep > 0 {
			return
		}
		t.sleep = 0
	}
	if t.waiting {
		return
	}
	s.resume(t)
}

func (s *Scheduler) resume(t *Thread) {
	if t.TerminateRequested() {
		s.reap(t, OutcomeCancelled)
		return
	}

	var args []lua.LValue
	if t.firstRun {
		args = t.args
		t.args = nil
		t.firstRun = false
	}

	st, err, _ := s.vm.Resume(t.co, t.entry, args...)
	switch st {
	case lua.ResumeYield:
		return
	case lua.ResumeOK:
		s.reap(t, OutcomeCompleted)
	default:
		if t.TerminateRequested() {
			s.reap(t, OutcomeCancelled)
			return
		}
		if err == nil {
			err = fmt.Errorf("thread %d stopped with status %d", t.id, st)
		}
		s.log.Error("script error", zap.Uint32("thread", uint32(t.id)), zap.Error(err))
		if s.opts.OnError != nil {
			s.opts.OnError(t, err)
		}
		s.reap(t, OutcomeErrored)
	}
}

// reap marks t removed; the owning list drops it when the pass compacts.
func (s *Scheduler) reap(t *Thread, outcome Outcome) {
	t.state = ThreadReaped
	t.clearWait()
	t.args = nil
	if t.cancel != nil {
		t.cancel()
	}
	s.log.Debug("script thread reaped", zap.Uint32("thread", uint32(t.id)), zap.Stringer("outcome", outcome))
	if s.opts.OnReap != nil {
		s.opts.OnReap(t, outcome)
	}
}

func compact(list []*Thread) []*Thread {
	kept := list[:0]
	for _, t := range list {
		if t.alive() {
			kept = append(kept, t)
		}
	}
	clear(list[len(kept):])
	return kept
}

// Active returns a copy of the active list in resume order.
func (s *Scheduler) Active() []*Thread {
	return append([]*Thread(nil), s.active...)
}

// Pending returns a copy of the threads not yet run.
func (s *Scheduler) Pending() []*Thread {
	return append([]*Thread(nil), s.pending...)
}

// Len returns the number of threads the scheduler holds.
func (s *Scheduler) Len() int {
	return len(s.active) + len(s.pending) + len(s.scratch)
}

func (s *Scheduler) Registry() *NotifyRegistry { return s.registry }

// VM returns the interpreter environment threads are created in.
func (s *Scheduler) VM() *lua.LState { return s.vm }
