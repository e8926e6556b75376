// Package safemap provides a generic map guarded by a read/write mutex.
// Readers share the lock and writers hold it exclusively, so no caller ever
// observes a partially written entry.
package safemap

import "sync"

// SafeMap is a concurrent map that is safe for use by multiple goroutines.
// Keys must be comparable; values may be any type.
//
// SafeMap must not be copied after first use.
type SafeMap[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

// NewSafeMap returns an empty SafeMap ready for use.
//
// Returns:
//   - A pointer to a new SafeMap[K, V]
func NewSafeMap[K comparable, V any]() *SafeMap[K, V] {
	return &SafeMap[K, V]{m: make(map[K]V)}
}

// Store sets the value for key k, overwriting any existing value.
//
// Parameters:
//   - k: The key to store
//   - v: The value to associate with k
func (s *SafeMap[K, V]) Store(k K, v V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[k] = v
}

// Load returns the value stored for k and whether it was present.
//
// Parameters:
//   - k: The key to look up
//
// Returns:
//   - The value associated with k, or the zero value of V if not found
//   - true if the key was present, false otherwise
func (s *SafeMap[K, V]) Load(k K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[k]
	return v, ok
}

// Delete removes the entry for k. Deleting a missing key is a no-op.
//
// Parameters:
//   - k: The key to delete
func (s *SafeMap[K, V]) Delete(k K) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, k)
}

// Update replaces the value for k with fn(current, present) while holding
// the write lock, so read-modify-write sequences are atomic.
//
// Parameters:
//   - k: The key to update
//   - fn: Receives the current value and whether it exists; returns the new value
func (s *SafeMap[K, V]) Update(k K, fn func(v V, ok bool) V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[k]
	s.m[k] = fn(v, ok)
}

// Range calls f for each entry of a point-in-time copy of the map. f may
// modify the map; such changes are not reflected in the ongoing iteration.
// Iteration stops when f returns false.
//
// Parameters:
//   - f: Function called for each entry; return false to stop iteration
func (s *SafeMap[K, V]) Range(f func(k K, v V) bool) {
	for k, v := range s.Snapshot() {
		if !f(k, v) {
			return
		}
	}
}

// Snapshot returns a copy of the current contents.
func (s *SafeMap[K, V]) Snapshot() map[K]V {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[K]V, len(s.m))
	for k, v := range s.m {
		out[k] = v
	}

	return out
}

// Len returns the number of entries.
func (s *SafeMap[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
