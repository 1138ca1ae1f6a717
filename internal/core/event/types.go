package event

import "github.com/nyengine/nyengine/internal/core/ecs"

// EntityNotify asks the script runtime to broadcast Event on Entity.
// Arg is passed to onnotify callbacks; zero means the entity itself.
type EntityNotify struct {
	Entity ecs.EntityID
	Event  string
	Arg    ecs.EntityID
}

// LevelChanged asks the runtime to drop every script thread and reload.
type LevelChanged struct {
	Name string
}
