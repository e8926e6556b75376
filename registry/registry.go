// Package registry keeps the display name of every live chat session.
//
// An entry is inserted by the listener before the session goroutine starts
// and removed when that goroutine exits, so a session can always find its
// own name while it is running.
package registry

import (
	"errors"
	"fmt"

	"github.com/cyberinferno/go-chatrelay/safemap"
)

// ErrNotFound is returned by Get when no entry exists for the session ID.
var ErrNotFound = errors.New("session not found")

// DefaultName returns the name a session carries until it sets a nickname.
//
// Parameters:
//   - id: The session ID
//
// Returns:
//   - "user:<id>"
func DefaultName(id uint32) string {
	return fmt.Sprintf("user:%d", id)
}

// Registry maps session IDs to display names. It is safe for concurrent use.
type Registry struct {
	names *safemap.SafeMap[uint32, string]
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{names: safemap.NewSafeMap[uint32, string]()}
}

// Insert sets the display name for id, replacing any previous name.
//
// Parameters:
//   - id: The session ID
//   - name: The display name
func (r *Registry) Insert(id uint32, name string) {
	r.names.Store(id, name)
}

// Get returns the display name for id.
//
// Parameters:
//   - id: The session ID
//
// Returns:
//   - The display name
//   - ErrNotFound (wrapped with the id) if the session has no entry
func (r *Registry) Get(id uint32) (string, error) {
	name, ok := r.names.Load(id)
	if !ok {
		return "", fmt.Errorf("session %d: %w", id, ErrNotFound)
	}

	return name, nil
}

// Remove deletes the entry for id. It is a no-op when absent.
func (r *Registry) Remove(id uint32) {
	r.names.Delete(id)
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	return r.names.Len()
}

// Snapshot returns a copy of all id to name entries.
func (r *Registry) Snapshot() map[uint32]string {
	return r.names.Snapshot()
}
