package scripting

import (
	"github.com/nyengine/nyengine/internal/core/ecs"
	lua "github.com/yuin/gopher-lua"
)

const entityTypeName = "entity"

// entityValues hands out one userdata per entity so scripts can compare
// handles with == and use them as table keys.
type entityValues struct {
	mt    *lua.LTable
	cache map[ecs.EntityID]*lua.LUserData
}

func newEntityValues(vm *lua.LState) *entityValues {
	mt := vm.NewTypeMetatable(entityTypeName)
	mt.RawSetString("__tostring", vm.NewFunction(func(L *lua.LState) int {
		id, _ := entityOf(L.Get(1))
		L.Push(lua.LString(id.String()))
		return 1
	}))
	mt.RawSetString("__eq", vm.NewFunction(func(L *lua.LState) int {
		a, _ := entityOf(L.Get(1))
		b, _ := entityOf(L.Get(2))
		L.Push(lua.LBool(a == b))
		return 1
	}))
	ev := &entityValues{
		mt:    mt,
		cache: make(map[ecs.EntityID]*lua.LUserData, 64),
	}
	vm.SetGlobal("level", ev.value(vm, ecs.Level))
	return ev
}

// value returns the script value for id; the zero entity is nil.
func (ev *entityValues) value(L *lua.LState, id ecs.EntityID) lua.LValue {
	if id.IsZero() {
		return lua.LNil
	}
	if ud, ok := ev.cache[id]; ok {
		return ud
	}
	ud := L.NewUserData()
	ud.Value = id
	ud.Metatable = ev.mt
	ev.cache[id] = ud
	return ud
}

func (ev *entityValues) forget(id ecs.EntityID) {
	if id.IsLevel() {
		return
	}
	delete(ev.cache, id)
}

func entityOf(v lua.LValue) (ecs.EntityID, bool) {
	ud, ok := v.(*lua.LUserData)
	if !ok {
		return 0, false
	}
	id, ok := ud.Value.(ecs.EntityID)
	return id, ok && !id.IsZero()
}

func checkEntity(L *lua.LState, n int) ecs.EntityID {
	id, ok := entityOf(L.Get(n))
	if !ok {
		L.ArgError(n, "entity expected, got "+L.Get(n).Type().String())
	}
	return id
}
