package safemap

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSafeMap(t *testing.T) {
	m := NewSafeMap[string, int]()
	require.NotNil(t, m)
	assert.Equal(t, 0, m.Len())
	_, ok := m.Load("x")
	assert.False(t, ok)
}

func TestSafeMap_Store_Load(t *testing.T) {
	m := NewSafeMap[uint32, string]()

	t.Run("store and load returns value", func(t *testing.T) {
		m.Store(1, "a")
		v, ok := m.Load(1)
		assert.True(t, ok)
		assert.Equal(t, "a", v)
	})

	t.Run("overwrite returns new value", func(t *testing.T) {
		m.Store(1, "b")
		v, ok := m.Load(1)
		assert.True(t, ok)
		assert.Equal(t, "b", v)
	})

	t.Run("load missing key returns zero value and false", func(t *testing.T) {
		v, ok := m.Load(99)
		assert.False(t, ok)
		assert.Empty(t, v)
	})
}

func TestSafeMap_Delete(t *testing.T) {
	m := NewSafeMap[string, int]()
	m.Store("a", 1)
	m.Store("b", 2)

	m.Delete("a")
	_, ok := m.Load("a")
	assert.False(t, ok)
	assert.Equal(t, 1, m.Len())

	m.Delete("nonexistent")
	assert.Equal(t, 1, m.Len())
}

func TestSafeMap_Update(t *testing.T) {
	m := NewSafeMap[string, int]()

	t.Run("update missing key sees zero value", func(t *testing.T) {
		m.Update("n", func(v int, ok bool) int {
			assert.False(t, ok)
			assert.Equal(t, 0, v)
			return 10
		})
		v, _ := m.Load("n")
		assert.Equal(t, 10, v)
	})

	t.Run("concurrent updates are not lost", func(t *testing.T) {
		const n = 200
		var wg sync.WaitGroup
		wg.Add(n)
		for i := 0; i < n; i++ {
			go func() {
				defer wg.Done()
				m.Update("counter", func(v int, _ bool) int { return v + 1 })
			}()
		}
		wg.Wait()
		v, _ := m.Load("counter")
		assert.Equal(t, n, v)
	})
}

func TestSafeMap_Range(t *testing.T) {
	m := NewSafeMap[string, int]()
	m.Store("a", 1)
	m.Store("b", 2)
	m.Store("c", 3)

	t.Run("iterates all entries", func(t *testing.T) {
		seen := make(map[string]int)
		m.Range(func(k string, v int) bool {
			seen[k] = v
			return true
		})
		assert.Equal(t, map[string]int{"a": 1, "b": 2, "c": 3}, seen)
	})

	t.Run("stops when f returns false", func(t *testing.T) {
		calls := 0
		m.Range(func(string, int) bool {
			calls++
			return false
		})
		assert.Equal(t, 1, calls)
	})

	t.Run("modifying the map inside f does not deadlock", func(t *testing.T) {
		m.Range(func(k string, _ int) bool {
			m.Delete(k)
			return true
		})
		assert.Equal(t, 0, m.Len())
	})
}

func TestSafeMap_Snapshot_is_a_copy(t *testing.T) {
	m := NewSafeMap[int, string]()
	m.Store(1, "one")

	snap := m.Snapshot()
	snap[2] = "two"

	assert.Equal(t, 1, m.Len())
}
