package ecs

// World is the top-level ECS container. It owns the entity pool, the component
// registry, and a deferred destruction queue flushed by CleanupSystem each frame.
type World struct {
	pool         *EntityPool
	registry     *Registry
	destroyQueue []EntityID
	onDestroy    func(EntityID)
}

func NewWorld() *World {
	return &World{
		pool:         NewEntityPool(),
		registry:     NewRegistry(),
		destroyQueue: make([]EntityID, 0, 64),
	}
}

func (w *World) Pool() *EntityPool   { return w.pool }
func (w *World) Registry() *Registry { return w.registry }

func (w *World) CreateEntity() EntityID {
	return w.pool.Create()
}

func (w *World) Alive(id EntityID) bool {
	return id.IsLevel() || w.pool.Alive(id)
}

// OnDestroy installs fn to be called for every entity destroyed by
// FlushDestroyQueue, before its components are dropped.
func (w *World) OnDestroy(fn func(EntityID)) {
	w.onDestroy = fn
}

// MarkForDestruction queues an entity for end-of-frame cleanup.
func (w *World) MarkForDestruction(id EntityID) {
	if !w.pool.Alive(id) {
		return
	}
	for _, queued := range w.destroyQueue {
		if queued == id {
			return
		}
	}
	w.destroyQueue = append(w.destroyQueue, id)
}

// FlushDestroyQueue destroys all queued entities and clears their components.
// Called by CleanupSystem at the end of each frame.
func (w *World) FlushDestroyQueue() int {
	n := 0
	for _, id := range w.destroyQueue {
		if w.onDestroy != nil {
			w.onDestroy(id)
		}
		w.registry.RemoveAll(id)
		if w.pool.Destroy(id) {
			n++
		}
	}
	w.destroyQueue = w.destroyQueue[:0]
	return n
}

// Reset drops every entity and component. Used on level change.
func (w *World) Reset() {
	w.pool = NewEntityPool()
	w.registry.Clear()
	w.destroyQueue = w.destroyQueue[:0]
}
