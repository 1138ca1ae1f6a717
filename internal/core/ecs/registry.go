package ecs

// Registry tracks all component stores and supports bulk cleanup on entity destroy.
type Registry struct {
	stores []Store
}

func NewRegistry() *Registry {
	return &Registry{
		stores: make([]Store, 0, 4),
	}
}

// Register adds a component store to the registry.
func (r *Registry) Register(store Store) {
	r.stores = append(r.stores, store)
}

// RemoveAll clears the given entity from every registered component store.
func (r *Registry) RemoveAll(id EntityID) {
	for _, s := range r.stores {
		s.Remove(id)
	}
}

// Clear empties every registered store.
func (r *Registry) Clear() {
	for _, s := range r.stores {
		s.Clear()
	}
}
