package scripting

import "errors"

// Configuration errors. These point at a script or build defect and are
// routed to the fatal channel when raised from a native binding.
var (
	ErrEventNameTooLong   = errors.New("event name too long")
	ErrEmptyEventName     = errors.New("empty event name")
	ErrNotifyRegistryFull = errors.New("notify registry full")
	ErrThreadIDsExhausted = errors.New("no unique thread ids left")
	ErrEndOnFull          = errors.New("endon set full")
)

var (
	ErrReentrantTick   = errors.New("tick called while a tick is in progress")
	ErrNotScriptThread = errors.New("not called from a script thread")
	ErrNilEntry        = errors.New("thread entry function is nil")

	ErrReservedNamespace = errors.New("script path collides with a global")
)

var fatalErrs = []error{
	ErrEventNameTooLong,
	ErrEmptyEventName,
	ErrNotifyRegistryFull,
	ErrThreadIDsExhausted,
	ErrEndOnFull,
}

// IsFatal reports whether err belongs to the non-recoverable configuration class.
func IsFatal(err error) bool {
	for _, target := range fatalErrs {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
