package scripting

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/nyengine/nyengine/internal/core/ecs"
	"github.com/nyengine/nyengine/internal/core/event"
	"github.com/nyengine/nyengine/internal/vars"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// EngineOptions configures an Engine.
type EngineOptions struct {
	Dir       string // root holding one script directory per level
	PatchDir  string // optional root whose scripts override Dir by name
	DrawEvent string // event name the draw pass resumes; "draw" if empty
	Scheduler SchedulerOptions
}

// Engine owns the gopher-lua VM, the thread scheduler bound to it, and the
// natives scripts use to reach the world and vars.
// Single-goroutine access only (frame loop).
type Engine struct {
	vm    *lua.LState
	log   *zap.Logger
	opts  EngineOptions
	sched *Scheduler

	world *ecs.World
	data  *ecs.PtrComponentStore[lua.LTable]
	vars  *vars.Registry
	bus   *event.Bus

	drawEvent  string
	level      string
	loaded     map[string]Blob // by namespace
	namespaces map[*lua.LTable]struct{}
}

// NewEngine creates an engine with an empty script environment.
func NewEngine(world *ecs.World, vr *vars.Registry, bus *event.Bus, log *zap.Logger, opts EngineOptions) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.DrawEvent == "" {
		opts.DrawEvent = "draw"
	}
	drawEvent, err := FoldEventName(opts.DrawEvent)
	if err != nil {
		return nil, fmt.Errorf("draw event: %w", err)
	}

	e := &Engine{
		log:        log,
		opts:       opts,
		world:      world,
		data:       ecs.NewPtrComponentStore[lua.LTable](),
		vars:       vr,
		bus:        bus,
		drawEvent:  drawEvent,
		loaded:     make(map[string]Blob),
		namespaces: make(map[*lua.LTable]struct{}),
	}
	world.Registry().Register(e.data)
	world.OnDestroy(e.entityDestroyed)

	e.vm = e.newVM()
	e.sched = NewScheduler(e.vm, log.Named("sched"), opts.Scheduler)
	e.openEngineLib()

	if bus != nil {
		event.Subscribe(bus, e.onEntityNotify)
		event.Subscribe(bus, e.onLevelChanged)
	}
	return e, nil
}

func (e *Engine) newVM() *lua.LState {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))
	return vm
}

func (e *Engine) Scheduler() *Scheduler { return e.sched }
func (e *Engine) VM() *lua.LState       { return e.vm }
func (e *Engine) Level() string         { return e.level }

// Loaded returns the blob loaded into namespace ns, if any.
func (e *Engine) Loaded(ns string) (Blob, bool) {
	b, ok := e.loaded[ns]
	return b, ok
}

// ResetState discards every thread, callback and script namespace and starts
// over on a fresh VM. Must not be called from inside Tick.
func (e *Engine) ResetState() error {
	vm := e.newVM()
	if err := e.sched.ResetState(vm); err != nil {
		vm.Close()
		return err
	}
	e.vm.Close()
	e.vm = vm
	e.data.Clear()
	clear(e.loaded)
	clear(e.namespaces)
	e.openEngineLib()
	return nil
}

// Close releases the VM.
func (e *Engine) Close() {
	e.vm.Close()
}

// Tick runs the simulation pass.
func (e *Engine) Tick(dt time.Duration) error {
	return e.sched.Tick(dt)
}

// TickDraw runs the render-phase pass for threads waiting on the draw event
// of any entity.
func (e *Engine) TickDraw(dt time.Duration) error {
	return e.sched.TickEvent(dt, e.drawEvent)
}

// Notify broadcasts name on entity from host code. A zero arg passes the
// entity itself to callbacks.
func (e *Engine) Notify(entity ecs.EntityID, name string, arg ecs.EntityID) error {
	key, err := NewEventKey(entity, name)
	if err != nil {
		return err
	}
	var argValue lua.LValue
	if !arg.IsZero() {
		argValue = e.sched.entities.value(e.vm, arg)
	}
	return e.sched.Notify(key, argValue)
}

// ── Script loading ────────────────────────────────────────────────

// LoadLevel resets the environment and loads the scripts of the named level
// from Dir, with PatchDir overriding by name. Vars, script-created ones
// included, outlive the level.
func (e *Engine) LoadLevel(name string) (int, error) {
	base, err := DirSource(filepath.Join(e.opts.Dir, name))
	if err != nil {
		return 0, err
	}
	var patch []Blob
	if e.opts.PatchDir != "" {
		if patch, err = DirSource(filepath.Join(e.opts.PatchDir, name)); err != nil {
			return 0, err
		}
	}
	if err := e.ResetState(); err != nil {
		return 0, err
	}
	e.world.Reset()
	e.level = name
	n, err := e.LoadScripts(base, patch)
	if err != nil {
		return n, fmt.Errorf("load level %s: %w", name, err)
	}
	e.log.Info("level scripts loaded", zap.String("level", name), zap.Int("scripts", n))
	return n, nil
}

// LoadScripts loads patch blobs, then base blobs the patch does not replace.
func (e *Engine) LoadScripts(base, patch []Blob) (int, error) {
	blobs := Overlay(base, patch)
	for _, b := range blobs {
		if err := e.LoadScript(b); err != nil {
			return 0, err
		}
	}
	return len(blobs), nil
}

// LoadScript runs b inside its own namespace table. The namespace falls back
// to the globals for reads; if the script defines init, an init thread is
// queued with a nil owner.
func (e *Engine) LoadScript(b Blob) error {
	fn, err := e.vm.Load(bytes.NewReader(b.Data), b.Name)
	if err != nil {
		return fmt.Errorf("load %s: %w", b.Name, err)
	}
	ns, err := e.namespace(b.Namespace())
	if err != nil {
		return fmt.Errorf("load %s: %w", b.Name, err)
	}
	fn.Env = ns
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}); err != nil {
		return fmt.Errorf("run %s: %w", b.Name, err)
	}

	if initFn, ok := ns.RawGetString("init").(*lua.LFunction); ok {
		if _, err := e.sched.CreateThread(initFn, lua.LNil); err != nil {
			return fmt.Errorf("init thread %s: %w", b.Name, err)
		}
	}
	e.loaded[b.Namespace()] = b
	e.log.Debug("loaded lua script", zap.String("name", b.Name), zap.String("digest", b.ShortDigest()))
	return nil
}

// namespace walks (creating as needed) the table path ns under the globals.
// Only tables created here are reused; a segment naming any other value,
// such as a library table or a native, is rejected.
func (e *Engine) namespace(ns string) (*lua.LTable, error) {
	globals := e.vm.G.Global
	t := globals
	for _, part := range strings.Split(ns, "/") {
		if part == "" {
			continue
		}
		var next *lua.LTable
		switch v := t.RawGetString(part).(type) {
		case *lua.LNilType:
			next = e.vm.NewTable()
			t.RawSetString(part, next)
			e.namespaces[next] = struct{}{}
		case *lua.LTable:
			if _, ok := e.namespaces[v]; !ok {
				return nil, fmt.Errorf("%w: %q in %q", ErrReservedNamespace, part, ns)
			}
			next = v
		default:
			return nil, fmt.Errorf("%w: %q in %q", ErrReservedNamespace, part, ns)
		}
		t = next
	}
	if t != globals {
		mt := e.vm.NewTable()
		mt.RawSetString("__index", globals)
		e.vm.SetMetatable(t, mt)
	}
	return t, nil
}

// ── Host events ───────────────────────────────────────────────────

func (e *Engine) onEntityNotify(ev event.EntityNotify) {
	if err := e.Notify(ev.Entity, ev.Event, ev.Arg); err != nil {
		e.fail(err)
	}
}

func (e *Engine) onLevelChanged(ev event.LevelChanged) {
	if _, err := e.LoadLevel(ev.Name); err != nil {
		e.fail(err)
	}
}

// entityDestroyed tells scripts an entity is gone before its handle dies.
func (e *Engine) entityDestroyed(id ecs.EntityID) {
	if err := e.Notify(id, "death", 0); err != nil {
		e.fail(err)
	}
	e.sched.entities.forget(id)
}

func (e *Engine) fail(err error) {
	if IsFatal(err) {
		e.sched.opts.OnFatal(err)
		return
	}
	e.log.Error("script runtime", zap.Error(err))
}
