package system

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nyengine/nyengine/internal/core/ecs"
	"github.com/nyengine/nyengine/internal/core/event"
	coresys "github.com/nyengine/nyengine/internal/core/system"
	"github.com/nyengine/nyengine/internal/scripting"
	"github.com/nyengine/nyengine/internal/vars"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

type fakeSaver struct {
	batches   [][]string
	deleted   []string
	err       error
	deleteErr error
}

func (f *fakeSaver) Delete(_ context.Context, name string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, name)
	return nil
}

func (f *fakeSaver) SaveModified(_ context.Context, _ string, vs []*vars.Var) error {
	if f.err != nil {
		return f.err
	}
	var names []string
	for _, v := range vs {
		names = append(names, v.Name())
	}
	f.batches = append(f.batches, names)
	return nil
}

func newFrame(t *testing.T) (*coresys.Runner, *scripting.Engine, *event.Bus, *ecs.World) {
	t.Helper()
	world := ecs.NewWorld()
	bus := event.NewBus()
	log := zap.NewNop()
	eng, err := scripting.NewEngine(world, vars.NewRegistry(0), bus, log, scripting.EngineOptions{})
	require.NoError(t, err)
	t.Cleanup(eng.Close)

	r := coresys.NewRunner()
	r.Register(NewCleanupSystem(world, log))
	r.Register(NewDrawSystem(eng, log))
	r.Register(NewScriptSystem(eng, log))
	r.Register(NewEventDispatchSystem(bus))
	return r, eng, bus, world
}

func TestFrameOrderDrivesScripts(t *testing.T) {
	r, eng, bus, world := newFrame(t)
	require.NoError(t, eng.LoadScript(scripting.NewBlob("frame.lua", []byte(`
trace = ""
function init()
	local e = spawnEntity()
	onnotify(e, "death", function() trace = trace .. "d" end)
	createThread(level, function()
		while true do
			waittill(level, "draw")
			trace = trace .. "r"
		end
	end)
	waittill(level, "start")
	trace = trace .. "s"
	deleteEntity(e)
end`))))

	step := time.Second / 60
	r.Tick(step)
	event.Emit(bus, event.EntityNotify{Entity: ecs.Level, Event: "start"})
	r.Tick(step) // start is delivered; the entity is destroyed at cleanup
	r.Tick(step) // the death callback runs

	ns := eng.VM().G.Global.RawGetString("frame").(*lua.LTable)
	require.Equal(t, lua.LString("rsrdr"), ns.RawGetString("trace"))
	require.Zero(t, world.Pool().Len())
}

func TestPersistenceSavesChangedVarsOnInterval(t *testing.T) {
	reg := vars.NewRegistry(0)
	v, err := reg.CreateNumber("sv_maxplayers", 8, 0, 1, 32)
	require.NoError(t, err)
	_, err = reg.Create("g_motd", "hi", 0)
	require.NoError(t, err)

	saver := &fakeSaver{}
	s := NewPersistenceSystem(reg, saver, func() string { return "arena" }, zap.NewNop(), 2)
	require.Equal(t, coresys.PhasePersist, s.Phase())

	require.NoError(t, v.SetNumber(12))
	s.Update(0)
	require.Empty(t, saver.batches)
	s.Update(0)
	require.Equal(t, [][]string{{"sv_maxplayers"}}, saver.batches)

	s.Update(0)
	s.Update(0)
	require.Len(t, saver.batches, 1, "unchanged vars are not saved again")

	s.SaveAll()
	require.Equal(t, []string{"sv_maxplayers"}, saver.batches[1])
}

func TestPersistenceRetriesAfterFailure(t *testing.T) {
	reg := vars.NewRegistry(0)
	v, err := reg.Create("g_motd", "hi", 0)
	require.NoError(t, err)
	require.NoError(t, v.Set("hello"))

	saver := &fakeSaver{err: errors.New("db down")}
	s := NewPersistenceSystem(reg, saver, func() string { return "" }, zap.NewNop(), 1)
	s.Update(0)
	require.Empty(t, saver.batches)

	saver.err = nil
	s.Update(0)
	require.Equal(t, [][]string{{"g_motd"}}, saver.batches)
}

func TestPersistenceDeletesRowOfResetVar(t *testing.T) {
	reg := vars.NewRegistry(0)
	v, err := reg.CreateNumber("sv_maxplayers", 8, 0, 1, 32)
	require.NoError(t, err)
	_, err = reg.Create("g_motd", "hi", 0)
	require.NoError(t, err)

	saver := &fakeSaver{}
	s := NewPersistenceSystem(reg, saver, func() string { return "arena" }, zap.NewNop(), 1)
	// Restored at startup, since reset by hand.
	s.MarkSaved("g_motd", "hello")

	require.NoError(t, v.SetNumber(12))
	s.Update(0)
	require.Equal(t, []string{"g_motd"}, saver.deleted)
	require.Equal(t, [][]string{{"sv_maxplayers"}}, saver.batches)

	v.Reset()
	saver.deleteErr = errors.New("db down")
	s.Update(0)
	require.Equal(t, []string{"g_motd"}, saver.deleted)

	saver.deleteErr = nil
	s.Update(0)
	require.Equal(t, []string{"g_motd", "sv_maxplayers"}, saver.deleted)

	s.Update(0)
	require.Len(t, saver.deleted, 2, "a deleted row is not deleted again")
	require.Len(t, saver.batches, 1)
}
