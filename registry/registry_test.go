package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultName(t *testing.T) {
	assert.Equal(t, "user:1", DefaultName(1))
	assert.Equal(t, "user:42", DefaultName(42))
}

func TestRegistry_Insert_Get(t *testing.T) {
	r := New()

	t.Run("get returns inserted name", func(t *testing.T) {
		r.Insert(1, DefaultName(1))
		name, err := r.Get(1)
		require.NoError(t, err)
		assert.Equal(t, "user:1", name)
	})

	t.Run("insert overwrites existing name", func(t *testing.T) {
		r.Insert(1, "Alice")
		name, err := r.Get(1)
		require.NoError(t, err)
		assert.Equal(t, "Alice", name)
		assert.Equal(t, 1, r.Len())
	})

	t.Run("get missing id returns ErrNotFound", func(t *testing.T) {
		name, err := r.Get(2)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Empty(t, name)
		assert.Contains(t, err.Error(), "session 2")
	})
}

func TestRegistry_Remove(t *testing.T) {
	r := New()
	r.Insert(1, "a")
	r.Insert(2, "b")

	r.Remove(1)
	_, err := r.Get(1)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, r.Len())

	t.Run("remove missing id is no-op", func(t *testing.T) {
		r.Remove(99)
		assert.Equal(t, 1, r.Len())
	})

	t.Run("reinsert after remove uses new value", func(t *testing.T) {
		r.Insert(1, DefaultName(1))
		name, err := r.Get(1)
		require.NoError(t, err)
		assert.Equal(t, "user:1", name)
	})
}

func TestRegistry_Snapshot(t *testing.T) {
	r := New()
	r.Insert(1, "a")
	r.Insert(2, "b")
	assert.Equal(t, map[uint32]string{1: "a", 2: "b"}, r.Snapshot())
}

func TestRegistry_concurrent_access(t *testing.T) {
	r := New()
	const n = 100
	var wg sync.WaitGroup
	wg.Add(n * 2)
	for i := uint32(1); i <= n; i++ {
		go func(id uint32) {
			defer wg.Done()
			r.Insert(id, DefaultName(id))
			r.Insert(id, "nick")
		}(i)
		go func(id uint32) {
			defer wg.Done()
			_, _ = r.Get(id)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n, r.Len())
	for id, name := range r.Snapshot() {
		assert.Equal(t, "nick", name, "id %d", id)
	}
}
