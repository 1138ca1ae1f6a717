package scripting

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Callback is something a notification starts a new thread for.
type Callback interface {
	Function() *lua.LFunction
}

// ScriptCallback is a script function registered through onnotify.
type ScriptCallback struct {
	Fn *lua.LFunction
}

func (c ScriptCallback) Function() *lua.LFunction { return c.Fn }

// Registration is the slot an OnNotify entry occupies.
type Registration int

type notifyEntry struct {
	key EventKey
	cb  Callback
}

// NotifyRegistry is a fixed-capacity table of event callbacks. Entries are
// never removed individually; Reset drops all of them.
type NotifyRegistry struct {
	entries  []notifyEntry
	capacity int
}

func NewNotifyRegistry(capacity int) *NotifyRegistry {
	return &NotifyRegistry{
		entries:  make([]notifyEntry, 0, capacity),
		capacity: capacity,
	}
}

func (r *NotifyRegistry) Add(key EventKey, cb Callback) (Registration, error) {
	if len(r.entries) >= r.capacity {
		return -1, fmt.Errorf("%w: %d entries, registering %s", ErrNotifyRegistryFull, r.capacity, key)
	}
	r.entries = append(r.entries, notifyEntry{key: key, cb: cb})
	return Registration(len(r.entries) - 1), nil
}

// Matching returns the callbacks registered for key in registration order.
func (r *NotifyRegistry) Matching(key EventKey) []Callback {
	var out []Callback
	for _, e := range r.entries {
		if e.key == key {
			out = append(out, e.cb)
		}
	}
	return out
}

func (r *NotifyRegistry) Len() int { return len(r.entries) }

func (r *NotifyRegistry) Reset() {
	clear(r.entries)
	r.entries = r.entries[:0]
}

// OnNotify registers cb to run in a new thread every time key is notified.
func (s *Scheduler) OnNotify(key EventKey, cb Callback) (Registration, error) {
	if cb == nil || cb.Function() == nil {
		return -1, ErrNilEntry
	}
	return s.registry.Add(key, cb)
}

// Notify broadcasts key. Waiters on key become runnable on the next pass,
// threads that end on key are marked for termination, and every matching
// callback is queued as a new thread receiving arg. Nothing runs inline.
// A nil arg means the notified entity.
func (s *Scheduler) Notify(key EventKey, arg lua.LValue) error {
	for _, list := range [...][]*Thread{s.active, s.scratch, s.pending} {
		for _, t := range list {
			if !t.alive() {
				continue
			}
			if t.waitingOn(key) {
				t.clearWait()
			}
			if t.endsOn(key) {
				t.requestTerminate()
			}
		}
	}

	callbacks := s.registry.Matching(key)
	if len(callbacks) == 0 {
		return nil
	}
	if arg == nil {
		arg = s.entities.value(s.vm, key.Entity)
	}
	for _, cb := range callbacks {
		t, err := s.CreateThread(cb.Function(), arg)
		if err != nil {
			return fmt.Errorf("notify %s: %w", key, err)
		}
		s.log.Debug("notify callback queued", zap.Stringer("event", key), zap.Uint32("thread", uint32(t.id)))
	}
	return nil
}
