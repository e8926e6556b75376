// Package idgenerator hands out session identifiers. Identifiers are
// positive, increase monotonically and are predictable; they are labels,
// not secrets.
package idgenerator

import "sync/atomic"

// IdGenerator issues monotonically increasing uint32 session IDs. Zero is
// never issued so callers may use it as "no session". When the counter wraps
// past the maximum uint32 it restarts at 1.
type IdGenerator struct {
	last atomic.Uint32
}

// NewIdGenerator creates an IdGenerator whose first Next() returns
// startValue+1.
//
// Parameters:
//   - startValue: The value treated as already issued
//
// Returns:
//   - A new IdGenerator instance
func NewIdGenerator(startValue uint32) *IdGenerator {
	gen := &IdGenerator{}
	gen.last.Store(startValue)
	return gen
}

// Next returns the next session ID. It is safe for concurrent use, although
// the listener calls it from a single goroutine so IDs follow accept order.
//
// Returns:
//   - The next non-zero uint32 ID
func (g *IdGenerator) Next() uint32 {
	for {
		id := g.last.Add(1)
		if id != 0 {
			return id
		}
	}
}

// Last returns the most recently issued ID, or the start value if Next has
// not been called yet.
func (g *IdGenerator) Last() uint32 {
	return g.last.Load()
}
