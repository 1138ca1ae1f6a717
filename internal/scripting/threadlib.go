package scripting

import (
	"fmt"
	"math"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// ── Suspension primitives ─────────────────────────────────────────
// Each takes the coroutine a native binding was called on and returns the
// value the binding must return to the interpreter.

func (s *Scheduler) caller(co *lua.LState) (*Thread, error) {
	t, _ := s.FindThread(co)
	if t == nil {
		return nil, ErrNotScriptThread
	}
	return t, nil
}

// Wait suspends the calling thread for d of simulated time.
func (s *Scheduler) Wait(co *lua.LState, d time.Duration) (int, error) {
	t, err := s.caller(co)
	if err != nil {
		return 0, err
	}
	t.sleep = d
	return co.Yield(), nil
}

// Yield suspends the calling thread until the next unfiltered pass.
func (s *Scheduler) Yield(co *lua.LState) (int, error) {
	if _, err := s.caller(co); err != nil {
		return 0, err
	}
	return co.Yield(), nil
}

// WaitTill suspends the calling thread until key is notified.
func (s *Scheduler) WaitTill(co *lua.LState, key EventKey) (int, error) {
	t, err := s.caller(co)
	if err != nil {
		return 0, err
	}
	t.setWait(key)
	return co.Yield(), nil
}

// EndOn marks the calling thread for termination when key is notified.
// It does not suspend.
func (s *Scheduler) EndOn(co *lua.LState, key EventKey) error {
	t, err := s.caller(co)
	if err != nil {
		return err
	}
	if err := t.addEndOn(key); err != nil {
		return fmt.Errorf("thread %d endon %s: %w", t.id, key, err)
	}
	return nil
}

// ── Native bindings ───────────────────────────────────────────────

func (s *Scheduler) openThreadLib(vm *lua.LState) {
	for name, fn := range map[string]lua.LGFunction{
		"createThread": s.luaCreateThread,
		"wait":         s.luaWait,
		"yield":        s.luaYield,
		"waittill":     s.luaWaitTill,
		"endon":        s.luaEndOn,
		"onnotify":     s.luaOnNotify,
		"notify":       s.luaNotify,
	} {
		vm.SetGlobal(name, vm.NewFunction(fn))
	}
}

// raise aborts the current native call. Configuration errors go to the
// fatal channel first.
func (s *Scheduler) raise(L *lua.LState, err error) {
	if IsFatal(err) {
		s.opts.OnFatal(err)
	}
	L.RaiseError("%s", err.Error())
}

func (s *Scheduler) checkEventKey(L *lua.LState, entityArg, nameArg int) EventKey {
	entity := checkEntity(L, entityArg)
	key, err := NewEventKey(entity, L.CheckString(nameArg))
	if err != nil {
		s.raise(L, err)
	}
	return key
}

// createThread(owner, fn, ...): fn runs as fn(owner, ...) in a new thread.
func (s *Scheduler) luaCreateThread(L *lua.LState) int {
	if L.GetTop() < 2 {
		L.RaiseError("createThread called with %d arguments, expected at least 2", L.GetTop())
	}
	fn := L.CheckFunction(2)
	args := make([]lua.LValue, 0, L.GetTop()-1)
	args = append(args, L.Get(1))
	for i := 3; i <= L.GetTop(); i++ {
		args = append(args, L.Get(i))
	}
	t, err := s.CreateThread(fn, args...)
	if err != nil {
		s.raise(L, err)
	}
	L.Push(lua.LNumber(t.id))
	return 1
}

// wait(seconds)
func (s *Scheduler) luaWait(L *lua.LState) int {
	if L.GetTop() != 1 {
		L.RaiseError("wait called with %d arguments, expected 1", L.GetTop())
	}
	secs := float64(L.CheckNumber(1))
	if math.IsNaN(secs) || secs < 0 {
		L.ArgError(1, "non-negative number expected")
	}
	n, err := s.Wait(L, secondsToDuration(secs))
	if err != nil {
		s.raise(L, err)
	}
	return n
}

// secondsToDuration saturates at the largest Duration, so math.huge sleeps
// for good instead of wrapping negative.
func secondsToDuration(secs float64) time.Duration {
	ns := secs * float64(time.Second)
	if ns >= float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ns)
}

// yield()
func (s *Scheduler) luaYield(L *lua.LState) int {
	n, err := s.Yield(L)
	if err != nil {
		s.raise(L, err)
	}
	return n
}

// waittill(entity, eventName)
func (s *Scheduler) luaWaitTill(L *lua.LState) int {
	key := s.checkEventKey(L, 1, 2)
	n, err := s.WaitTill(L, key)
	if err != nil {
		s.raise(L, err)
	}
	return n
}

// endon(entity, eventName)
func (s *Scheduler) luaEndOn(L *lua.LState) int {
	key := s.checkEventKey(L, 1, 2)
	if err := s.EndOn(L, key); err != nil {
		s.raise(L, err)
	}
	return 0
}

// onnotify(entity, eventName, callback)
func (s *Scheduler) luaOnNotify(L *lua.LState) int {
	key := s.checkEventKey(L, 1, 2)
	fn := L.CheckFunction(3)
	reg, err := s.OnNotify(key, ScriptCallback{Fn: fn})
	if err != nil {
		s.raise(L, err)
	}
	L.Push(lua.LNumber(reg))
	return 1
}

// notify(entity, eventName [, argument])
func (s *Scheduler) luaNotify(L *lua.LState) int {
	key := s.checkEventKey(L, 1, 2)
	var arg lua.LValue
	if L.GetTop() >= 3 && L.Get(3) != lua.LNil {
		arg = L.Get(3)
	}
	if err := s.Notify(key, arg); err != nil {
		s.raise(L, err)
	}
	return 0
}
