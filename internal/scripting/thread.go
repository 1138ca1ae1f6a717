package scripting

import (
	"context"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// ThreadID is unique among the threads a scheduler currently holds.
type ThreadID uint32

// ThreadState tracks cancellation. A thread only moves forward through it.
type ThreadState int

const (
	ThreadRunning         ThreadState = iota
	ThreadCancelRequested             // an endon event fired; never resumed again
	ThreadReaped                      // removed from the scheduler
)

func (s ThreadState) String() string {
	switch s {
	case ThreadRunning:
		return "running"
	case ThreadCancelRequested:
		return "cancel-requested"
	case ThreadReaped:
		return "reaped"
	}
	return "unknown"
}

// Outcome is how a thread left the scheduler.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeErrored
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeErrored:
		return "errored"
	case OutcomeCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Thread is one script coroutine plus its scheduling metadata.
type Thread struct {
	id     ThreadID
	co     *lua.LState
	cancel context.CancelFunc
	entry  *lua.LFunction

	args     []lua.LValue // first-resume arguments, dropped after use
	argCount int
	firstRun bool
	state    ThreadState

	sleep     time.Duration
	waiting   bool
	waitEvent EventKey
	endon     []EventKey
}

func (t *Thread) ID() ThreadID                  { return t.id }
func (t *Thread) Coroutine() *lua.LState        { return t.co }
func (t *Thread) ArgCount() int                 { return t.argCount }
func (t *Thread) FirstRun() bool                { return t.firstRun }
func (t *Thread) State() ThreadState            { return t.state }
func (t *Thread) TerminateRequested() bool      { return t.state == ThreadCancelRequested }
func (t *Thread) SleepRemaining() time.Duration { return t.sleep }

// WaitEvent returns the event the thread is blocked on, if any.
func (t *Thread) WaitEvent() (EventKey, bool) {
	return t.waitEvent, t.waiting
}

// EndOnEvents returns the thread's endon events in registration order.
func (t *Thread) EndOnEvents() []EventKey {
	out := make([]EventKey, len(t.endon))
	copy(out, t.endon)
	return out
}

func (t *Thread) waitingOn(key EventKey) bool {
	return t.waiting && t.waitEvent == key
}

// waitingFor matches on the event name alone.
func (t *Thread) waitingFor(name string) bool {
	return t.waiting && t.waitEvent.Name == name
}

func (t *Thread) setWait(key EventKey) {
	t.waitEvent = key
	t.waiting = true
}

func (t *Thread) clearWait() {
	t.waitEvent = EventKey{}
	t.waiting = false
}

func (t *Thread) endsOn(key EventKey) bool {
	for _, k := range t.endon {
		if k == key {
			return true
		}
	}
	return false
}

func (t *Thread) addEndOn(key EventKey) error {
	if t.endsOn(key) {
		return nil
	}
	if len(t.endon) >= EndOnCapacity {
		return ErrEndOnFull
	}
	t.endon = append(t.endon, key)
	return nil
}

func (t *Thread) requestTerminate() {
	if t.state == ThreadRunning {
		t.state = ThreadCancelRequested
	}
}

func (t *Thread) alive() bool {
	return t.state != ThreadReaped
}
