package scripting

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nyengine/nyengine/internal/core/ecs"
	"github.com/nyengine/nyengine/internal/core/event"
	"github.com/nyengine/nyengine/internal/vars"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type engineFixture struct {
	eng    *Engine
	world  *ecs.World
	vars   *vars.Registry
	bus    *event.Bus
	logs   *observer.ObservedLogs
	fatals []error
}

func newEngineFixture(t *testing.T, opts EngineOptions) *engineFixture {
	t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	f := &engineFixture{
		world: ecs.NewWorld(),
		vars:  vars.NewRegistry(0),
		bus:   event.NewBus(),
		logs:  logs,
	}
	opts.Scheduler.OnFatal = func(err error) { f.fatals = append(f.fatals, err) }
	eng, err := NewEngine(f.world, f.vars, f.bus, zap.New(core), opts)
	require.NoError(t, err)
	t.Cleanup(eng.Close)
	f.eng = eng
	return f
}

func (f *engineFixture) load(t *testing.T, name, src string) {
	t.Helper()
	require.NoError(t, f.eng.LoadScript(NewBlob(name, []byte(src))))
}

func (f *engineFixture) vm() *lua.LState { return f.eng.VM() }

func (f *engineFixture) tick(t *testing.T) {
	t.Helper()
	require.NoError(t, f.eng.Tick(time.Second/60))
}

// frame runs the host side of one frame: bus dispatch, then the
// end-of-frame destroy flush.
func (f *engineFixture) frame(t *testing.T) {
	t.Helper()
	f.bus.SwapBuffers()
	f.bus.DispatchAll()
	f.tick(t)
	f.world.FlushDestroyQueue()
}

func writeScript(t *testing.T, root, name, src string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
}

func TestNewEngineRejectsBadDrawEvent(t *testing.T) {
	_, err := NewEngine(ecs.NewWorld(), nil, nil, nil, EngineOptions{DrawEvent: "a-draw-event-name-that-is-too-long"})
	require.ErrorIs(t, err, ErrEventNameTooLong)
}

func TestScriptsLoadIntoTheirNamespace(t *testing.T) {
	f := newEngineFixture(t, EngineOptions{})
	f.load(t, "sp/hello/main.lua", `
counter = 1
function init(owner)
	counter = counter + 1
	ownerWasNil = owner == nil
end`)

	g := f.eng.VM().G.Global
	require.Equal(t, lua.LNil, g.RawGetString("counter"))
	ns := g.RawGetString("sp").(*lua.LTable).
		RawGetString("hello").(*lua.LTable).
		RawGetString("main").(*lua.LTable)
	require.Equal(t, lua.LNumber(1), ns.RawGetString("counter"))

	// init is queued, not run, at load time.
	require.Len(t, f.eng.Scheduler().Pending(), 1)
	f.tick(t)
	require.Equal(t, lua.LNumber(2), ns.RawGetString("counter"))
	require.Equal(t, lua.LTrue, ns.RawGetString("ownerWasNil"))

	b, ok := f.eng.Loaded("sp/hello/main")
	require.True(t, ok)
	require.Equal(t, "sp/hello/main.lua", b.Name)
}

func TestLoadScriptReportsSyntaxAndRuntimeErrors(t *testing.T) {
	f := newEngineFixture(t, EngineOptions{})
	err := f.eng.LoadScript(NewBlob("broken.lua", []byte("function (")))
	require.ErrorContains(t, err, "load broken.lua")

	err = f.eng.LoadScript(NewBlob("throws.lua", []byte(`error("nope")`)))
	require.ErrorContains(t, err, "run throws.lua")
	_, ok := f.eng.Loaded("throws")
	require.False(t, ok)
}

func TestLoadLevelAppliesPatchDir(t *testing.T) {
	base, patch := t.TempDir(), t.TempDir()
	writeScript(t, base, "arena/main.lua", `version = "base"`)
	writeScript(t, base, "arena/ai/wander.lua", `function init() wandering = true end`)
	writeScript(t, patch, "arena/main.lua", `version = "patch"`)
	writeScript(t, base, "arena/notes.txt", `not a script`)

	f := newEngineFixture(t, EngineOptions{Dir: base, PatchDir: patch})
	n, err := f.eng.LoadLevel("arena")
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, "arena", f.eng.Level())

	g := f.eng.VM().G.Global
	main := g.RawGetString("main").(*lua.LTable)
	require.Equal(t, lua.LString("patch"), main.RawGetString("version"))

	f.tick(t)
	wander := g.RawGetString("ai").(*lua.LTable).RawGetString("wander").(*lua.LTable)
	require.Equal(t, lua.LTrue, wander.RawGetString("wandering"))
}

func TestLoadLevelResetsScriptsAndWorldButKeepsVars(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "one/main.lua", `
function init()
	varSetInt("scr_kills", 3)
	e = spawnEntity()
	while true do yield() end
end`)
	writeScript(t, dir, "two/main.lua", `loadedTwo = true`)

	f := newEngineFixture(t, EngineOptions{Dir: dir})
	_, err := f.vars.Create("g_gravity", "800", 0)
	require.NoError(t, err)

	_, err = f.eng.LoadLevel("one")
	require.NoError(t, err)
	f.tick(t)
	require.Equal(t, 1, f.eng.Scheduler().Len())
	require.Equal(t, 1, f.world.Pool().Len())
	_, ok := f.vars.Lookup("scr_kills")
	require.True(t, ok)

	_, err = f.eng.LoadLevel("two")
	require.NoError(t, err)
	require.Zero(t, f.eng.Scheduler().Len())
	require.Zero(t, f.world.Pool().Len())
	kills, ok := f.vars.Lookup("scr_kills")
	require.True(t, ok)
	require.Equal(t, 3, kills.Int())
	_, ok = f.vars.Lookup("g_gravity")
	require.True(t, ok)
	_, ok = f.eng.Loaded("one/main")
	require.False(t, ok)
}

func TestRestoredScriptVarSurvivesLevelLoad(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "main/main.lua", `
best = 0
function init() best = varGetInt("scr_best") end`)

	f := newEngineFixture(t, EngineOptions{Dir: dir})
	require.NoError(t, f.vars.Restore("scr_best", "900"))

	_, err := f.eng.LoadLevel("main")
	require.NoError(t, err)
	f.tick(t)

	v, ok := f.vars.Lookup("scr_best")
	require.True(t, ok)
	require.Equal(t, 900, v.Int())
	ns := f.vm().G.Global.RawGetString("main").(*lua.LTable)
	require.Equal(t, lua.LNumber(900), ns.RawGetString("best"))

	_, err = f.eng.LoadLevel("main")
	require.NoError(t, err)
	_, ok = f.vars.Lookup("scr_best")
	require.True(t, ok)
}

func TestScriptPathCannotReuseGlobals(t *testing.T) {
	f := newEngineFixture(t, EngineOptions{})
	for _, name := range []string{"string.lua", "math/x.lua", "print/a.lua", "level.lua"} {
		err := f.eng.LoadScript(NewBlob(name, []byte(`x = 1`)))
		require.ErrorIs(t, err, ErrReservedNamespace, name)
	}
	require.NoError(t, f.vm().DoString(`formatted = string.format("%d", 7)`))
	require.Equal(t, lua.LString("7"), f.vm().GetGlobal("formatted"))
	_, ok := f.eng.Loaded("string")
	require.False(t, ok)

	// Namespaces made by earlier scripts are shared.
	f.load(t, "ai/walker.lua", `kind = "walker"`)
	f.load(t, "ai/flyer.lua", `kind = "flyer"`)
	ai := f.vm().G.Global.RawGetString("ai").(*lua.LTable)
	require.Equal(t, lua.LString("walker"), ai.RawGetString("walker").(*lua.LTable).RawGetString("kind"))
}

func TestChangeLevelTakesEffectNextFrame(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "menu/main.lua", `function init() changeLevel("game") end`)
	writeScript(t, dir, "game/main.lua", `inGame = true`)

	f := newEngineFixture(t, EngineOptions{Dir: dir})
	_, err := f.eng.LoadLevel("menu")
	require.NoError(t, err)

	f.frame(t)
	require.Equal(t, "menu", f.eng.Level())
	f.frame(t)
	require.Equal(t, "game", f.eng.Level())
}

func TestDeletedEntityNotifiesDeath(t *testing.T) {
	f := newEngineFixture(t, EngineOptions{})
	f.load(t, "mob.lua", `
function init()
	local e = spawnEntity()
	entityData(e).hp = 10
	hp = entityData(e).hp
	onnotify(e, "death", function(who)
		died = who == e
		stillAlive = isAlive(who)
	end)
	createThread(e, function(self)
		endon(self, "death")
		while true do yield() end
	end)
	deleteEntity(e)
end`)

	f.frame(t)
	// The guard thread is marked for termination; the callback is queued.
	require.Equal(t, 2, f.eng.Scheduler().Len())
	require.Zero(t, f.world.Pool().Len())

	f.tick(t)
	mob := f.eng.VM().G.Global.RawGetString("mob").(*lua.LTable)
	require.Equal(t, lua.LNumber(10), mob.RawGetString("hp"))
	require.Equal(t, lua.LTrue, mob.RawGetString("died"))
	require.Equal(t, lua.LFalse, mob.RawGetString("stillAlive"))
	require.Zero(t, f.eng.Scheduler().Len())
	require.Empty(t, f.fatals)
}

func TestHostNotifyThroughBus(t *testing.T) {
	f := newEngineFixture(t, EngineOptions{})
	f.load(t, "door.lua", `
function init()
	waittill(level, "open")
	opened = true
end`)
	f.tick(t)

	event.Emit(f.bus, event.EntityNotify{Entity: ecs.Level, Event: "OPEN"})
	f.frame(t)
	door := f.eng.VM().G.Global.RawGetString("door").(*lua.LTable)
	require.Equal(t, lua.LTrue, door.RawGetString("opened"))
}

func TestTickDrawUsesConfiguredEvent(t *testing.T) {
	f := newEngineFixture(t, EngineOptions{DrawEvent: "render"})
	f.load(t, "hud.lua", `
frames = 0
function init()
	while true do
		waittill(level, "render")
		frames = frames + 1
	end
end`)
	f.tick(t)
	require.NoError(t, f.eng.TickDraw(0))
	require.NoError(t, f.eng.TickDraw(0))
	hud := f.eng.VM().G.Global.RawGetString("hud").(*lua.LTable)
	require.Equal(t, lua.LNumber(2), hud.RawGetString("frames"))
}

func TestTickDrawResumesEntityWaiters(t *testing.T) {
	f := newEngineFixture(t, EngineOptions{})
	f.load(t, "sprite.lua", `
drawn = 0
function init()
	local e = spawnEntity()
	createThread(e, function(self)
		while true do
			waittill(self, "draw")
			drawn = drawn + 1
		end
	end)
end`)
	f.tick(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.eng.TickDraw(0))
		f.tick(t)
	}
	sprite := f.vm().G.Global.RawGetString("sprite").(*lua.LTable)
	require.Equal(t, lua.LNumber(3), sprite.RawGetString("drawn"))
}

func TestPrintLogsThroughZap(t *testing.T) {
	f := newEngineFixture(t, EngineOptions{})
	f.load(t, "hello.lua", `function init() print("hello", 42, level) end`)
	f.tick(t)

	entries := f.logs.FilterMessage("script").All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	require.Equal(t, "hello\t42\tentity(level)", ctx["msg"])
	require.EqualValues(t, 1, ctx["thread"])
}

func TestVarNatives(t *testing.T) {
	f := newEngineFixture(t, EngineOptions{})
	_, err := f.vars.CreateNumber("sv_maxplayers", 8, 0, 1, 32)
	require.NoError(t, err)
	_, err = f.vars.Create("g_version", "1.0", vars.ReadOnly)
	require.NoError(t, err)

	vm := f.eng.VM()
	require.NoError(t, vm.DoString(`
varSetInt("sv_maxplayers", 64)
max = varGetInt("sv_maxplayers")
varSet("scr_name", "duel")
varSet("scr_ratio", 0.5)
varSetBool("scr_on", true)
name = varGetString("scr_name")
ratio = varGetDouble("scr_ratio")
on = varGetBool("scr_on")
varReset("sv_maxplayers")
reset = varGetInt("sv_maxplayers")`))
	require.Equal(t, lua.LNumber(32), vm.GetGlobal("max"))
	require.Equal(t, lua.LString("duel"), vm.GetGlobal("name"))
	require.Equal(t, lua.LNumber(0.5), vm.GetGlobal("ratio"))
	require.Equal(t, lua.LTrue, vm.GetGlobal("on"))
	require.Equal(t, lua.LNumber(8), vm.GetGlobal("reset"))

	err = vm.DoString(`varSetString("g_version", "2.0")`)
	require.ErrorContains(t, err, vars.ErrReadOnly.Error())

	v, ok := f.vars.Lookup("scr_name")
	require.True(t, ok)
	require.True(t, v.Flags().Has(vars.Script))
}

func TestEntityNativesRejectBadHandles(t *testing.T) {
	f := newEngineFixture(t, EngineOptions{})
	vm := f.eng.VM()
	require.Error(t, vm.DoString(`deleteEntity(level)`))
	require.Error(t, vm.DoString(`entityData(42)`))
	require.NoError(t, vm.DoString(`
local e = spawnEntity()
alive = isAlive(e)
notEntity = isAlive("x")`))
	require.Equal(t, lua.LTrue, vm.GetGlobal("alive"))
	require.Equal(t, lua.LFalse, vm.GetGlobal("notEntity"))
}
