package system

import "time"

// Phase defines execution ordering within a single frame.
type Phase int

const (
	PhaseInput     Phase = iota // 0: gather host input
	PhasePreUpdate              // 1: deliver last frame's events
	PhaseScript                 // 2: simulation script pass
	PhaseUpdate                 // 3: host simulation
	PhaseDraw                   // 4: render-phase script pass
	PhasePersist                // 5: periodic var save
	PhaseCleanup                // 6: destroy queued entities
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhasePreUpdate:
		return "pre-update"
	case PhaseScript:
		return "script"
	case PhaseUpdate:
		return "update"
	case PhaseDraw:
		return "draw"
	case PhasePersist:
		return "persist"
	case PhaseCleanup:
		return "cleanup"
	}
	return "unknown"
}

// System is the interface every frame system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
