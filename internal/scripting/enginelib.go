package scripting

import (
	"strings"

	"github.com/nyengine/nyengine/internal/core/event"
	"github.com/nyengine/nyengine/internal/vars"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

func (e *Engine) openEngineLib() {
	fns := map[string]lua.LGFunction{
		"print":        e.luaPrint,
		"spawnEntity":  e.luaSpawnEntity,
		"deleteEntity": e.luaDeleteEntity,
		"isAlive":      e.luaIsAlive,
		"entityData":   e.luaEntityData,
		"changeLevel":  e.luaChangeLevel,
	}
	if e.vars != nil {
		for name, fn := range map[string]lua.LGFunction{
			"varSet":       e.luaVarSet,
			"varSetString": e.luaVarSetString,
			"varSetDouble": e.luaVarSetDouble,
			"varSetInt":    e.luaVarSetInt,
			"varSetBool":   e.luaVarSetBool,
			"varReset":     e.luaVarReset,
			"varGetString": e.luaVarGetString,
			"varGetDouble": e.luaVarGetDouble,
			"varGetInt":    e.luaVarGetInt,
			"varGetBool":   e.luaVarGetBool,
		} {
			fns[name] = fn
		}
	}
	for name, fn := range fns {
		e.vm.SetGlobal(name, e.vm.NewFunction(fn))
	}
}

// print(...)
func (e *Engine) luaPrint(L *lua.LState) int {
	parts := make([]string, 0, L.GetTop())
	for i := 1; i <= L.GetTop(); i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	fields := []zap.Field{zap.String("msg", strings.Join(parts, "\t"))}
	if t, _ := e.sched.FindThread(L); t != nil {
		fields = append(fields, zap.Uint32("thread", uint32(t.id)))
	}
	e.log.Info("script", fields...)
	return 0
}

// ── Entities ──────────────────────────────────────────────────────

// spawnEntity() -> entity
func (e *Engine) luaSpawnEntity(L *lua.LState) int {
	id := e.world.CreateEntity()
	L.Push(e.sched.entities.value(L, id))
	return 1
}

// deleteEntity(entity): destroyed at the end of the frame, after which
// notify(entity, "death") fires.
func (e *Engine) luaDeleteEntity(L *lua.LState) int {
	id := checkEntity(L, 1)
	if id.IsLevel() {
		L.ArgError(1, "the level can not be deleted")
	}
	e.world.MarkForDestruction(id)
	return 0
}

// isAlive(entity) -> bool
func (e *Engine) luaIsAlive(L *lua.LState) int {
	id, ok := entityOf(L.Get(1))
	L.Push(lua.LBool(ok && e.world.Alive(id)))
	return 1
}

// entityData(entity) -> table kept for the entity's lifetime
func (e *Engine) luaEntityData(L *lua.LState) int {
	id := checkEntity(L, 1)
	if !e.world.Alive(id) {
		L.ArgError(1, "entity is not alive")
	}
	t, ok := e.data.Get(id)
	if !ok {
		t = L.NewTable()
		e.data.Set(id, t)
	}
	L.Push(t)
	return 1
}

// changeLevel(name): takes effect at the start of the next frame.
func (e *Engine) luaChangeLevel(L *lua.LState) int {
	name := L.CheckString(1)
	if e.bus == nil {
		L.RaiseError("changeLevel: no event bus")
	}
	event.Emit(e.bus, event.LevelChanged{Name: name})
	return 0
}

// ── Vars ──────────────────────────────────────────────────────────

func (e *Engine) checkVar(L *lua.LState) *vars.Var {
	v, err := e.vars.Find(L.CheckString(1))
	if err != nil {
		e.sched.raise(L, err)
	}
	return v
}

func (e *Engine) setVar(L *lua.LState, err error) int {
	if err != nil {
		L.RaiseError("%s", err.Error())
	}
	return 0
}

// varSet(name, value): dispatches on the value type.
func (e *Engine) luaVarSet(L *lua.LState) int {
	switch L.Get(2).Type() {
	case lua.LTBool:
		return e.luaVarSetBool(L)
	case lua.LTNumber:
		return e.luaVarSetDouble(L)
	case lua.LTString:
		return e.luaVarSetString(L)
	}
	L.ArgError(2, "unknown value type")
	return 0
}

func (e *Engine) luaVarSetString(L *lua.LState) int {
	v := e.checkVar(L)
	return e.setVar(L, v.Set(L.CheckString(2)))
}

func (e *Engine) luaVarSetDouble(L *lua.LState) int {
	v := e.checkVar(L)
	return e.setVar(L, v.SetNumber(float64(L.CheckNumber(2))))
}

func (e *Engine) luaVarSetInt(L *lua.LState) int {
	v := e.checkVar(L)
	return e.setVar(L, v.SetNumber(float64(L.CheckInt(2))))
}

func (e *Engine) luaVarSetBool(L *lua.LState) int {
	v := e.checkVar(L)
	L.CheckAny(2)
	return e.setVar(L, v.SetBool(lua.LVAsBool(L.Get(2))))
}

func (e *Engine) luaVarReset(L *lua.LState) int {
	e.checkVar(L).Reset()
	return 0
}

func (e *Engine) luaVarGetString(L *lua.LState) int {
	L.Push(lua.LString(e.checkVar(L).String()))
	return 1
}

func (e *Engine) luaVarGetDouble(L *lua.LState) int {
	L.Push(lua.LNumber(e.checkVar(L).Number()))
	return 1
}

func (e *Engine) luaVarGetInt(L *lua.LState) int {
	L.Push(lua.LNumber(e.checkVar(L).Int()))
	return 1
}

func (e *Engine) luaVarGetBool(L *lua.LState) int {
	L.Push(lua.LBool(e.checkVar(L).Bool()))
	return 1
}
