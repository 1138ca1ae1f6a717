package ecs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEntityPoolNeverHandsOutZeroOrLevel(t *testing.T) {
	p := NewEntityPool()
	for i := 0; i < 8; i++ {
		id := p.Create()
		require.False(t, id.IsZero())
		require.False(t, id.IsLevel())
		require.True(t, p.Alive(id))
	}
	require.Equal(t, 8, p.Len())
	require.False(t, p.Alive(Level))
	require.False(t, p.Alive(0))
}

func TestEntityPoolStaleHandleDoesNotAlias(t *testing.T) {
	p := NewEntityPool()
	a := p.Create()
	require.True(t, p.Destroy(a))
	require.False(t, p.Destroy(a))

	b := p.Create()
	require.Equal(t, a.Index(), b.Index())
	require.NotEqual(t, a, b)
	require.False(t, p.Alive(a))
	require.True(t, p.Alive(b))
}

func TestWorldFlushReportsAndClearsComponents(t *testing.T) {
	w := NewWorld()
	tags := NewPtrComponentStore[string]()
	w.Registry().Register(tags)

	id := w.CreateEntity()
	tag := "crate"
	tags.Set(id, &tag)

	var destroyed []EntityID
	w.OnDestroy(func(e EntityID) {
		require.True(t, tags.Has(e))
		destroyed = append(destroyed, e)
	})

	w.MarkForDestruction(id)
	w.MarkForDestruction(id)
	require.Equal(t, 1, w.FlushDestroyQueue())
	require.Equal(t, []EntityID{id}, destroyed)
	require.False(t, tags.Has(id))
	require.False(t, w.Alive(id))
	require.True(t, w.Alive(Level))
}
