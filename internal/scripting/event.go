package scripting

import (
	"fmt"

	"github.com/nyengine/nyengine/internal/core/ecs"
	"golang.org/x/text/cases"
)

const (
	// MaxEventNameLen is the longest accepted event name in bytes.
	MaxEventNameLen = 31
	// EndOnCapacity is how many endon events one thread may hold.
	EndOnCapacity = 16
	// NotifyCapacity is the number of onnotify registrations per environment.
	NotifyCapacity = 16
)

// EventKey identifies an event on an entity. Names compare case-insensitively;
// build keys with NewEventKey so the name is validated and folded.
type EventKey struct {
	Entity ecs.EntityID
	Name   string
}

func NewEventKey(entity ecs.EntityID, name string) (EventKey, error) {
	folded, err := FoldEventName(name)
	if err != nil {
		return EventKey{}, err
	}
	return EventKey{Entity: entity, Name: folded}, nil
}

// FoldEventName validates name and returns its case-folded form.
func FoldEventName(name string) (string, error) {
	if name == "" {
		return "", ErrEmptyEventName
	}
	if len(name) > MaxEventNameLen {
		return "", fmt.Errorf("%w: %q is %d bytes, max %d", ErrEventNameTooLong, name, len(name), MaxEventNameLen)
	}
	return cases.Fold().String(name), nil
}

// LevelEvent is shorthand for an event on the level entity.
func LevelEvent(name string) (EventKey, error) {
	return NewEventKey(ecs.Level, name)
}

func (k EventKey) String() string {
	return fmt.Sprintf("%s:%s", k.Entity, k.Name)
}
