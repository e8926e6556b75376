// Package throttle rate-limits reconnects per remote host. A host that was
// admitted less than the cooldown ago is refused.
package throttle

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// Throttle remembers recently admitted hosts in a TTL cache. A zero or
// negative cooldown disables it. Safe for concurrent use.
type Throttle struct {
	cooldown time.Duration
	seen     *cache.Cache
}

// New creates a Throttle.
//
// Parameters:
//   - cooldown: Minimum time between two admitted connections from one host
//
// Returns:
//   - A new Throttle
func New(cooldown time.Duration) *Throttle {
	t := &Throttle{cooldown: cooldown}
	if cooldown > 0 {
		t.seen = cache.New(cooldown, 2*cooldown)
	}

	return t
}

// Enabled reports whether the throttle refuses anything at all.
func (t *Throttle) Enabled() bool {
	return t.seen != nil
}

// Allow reports whether host may connect now and, if so, starts its
// cooldown.
//
// Parameters:
//   - host: The remote host (IP address without port)
//
// Returns:
//   - true if the connection is admitted
func (t *Throttle) Allow(host string) bool {
	if t.seen == nil {
		return true
	}

	// Add fails while an unexpired entry exists, which makes check-and-set atomic.
	return t.seen.Add(host, struct{}{}, cache.DefaultExpiration) == nil
}

// Forget clears the cooldown for host.
func (t *Throttle) Forget(host string) {
	if t.seen != nil {
		t.seen.Delete(host)
	}
}

// Tracked returns the number of hosts currently cooling down.
func (t *Throttle) Tracked() int {
	if t.seen == nil {
		return 0
	}

	return t.seen.ItemCount()
}
