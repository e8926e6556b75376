// Package bus implements the in-memory broadcast bus that fans chat messages
// out to every subscribed session.
//
// Each subscription owns a bounded FIFO queue. Publish never blocks: when a
// subscriber's queue is full the oldest undelivered message is dropped and
// the subscriber is told how many it skipped on its next receive.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// DefaultCapacity is the per-subscriber queue size used when New is given a
// non-positive capacity.
const DefaultCapacity = 10

var (
	// ErrClosed is returned by receives once the bus or the subscription is
	// closed and no queued messages remain.
	ErrClosed = errors.New("bus closed")

	// ErrEmpty is returned by TryRecv when nothing is queued.
	ErrEmpty = errors.New("no message queued")
)

// LagError reports that a subscriber fell behind and Skipped messages were
// dropped from its queue. Receiving may continue after a LagError.
type LagError struct {
	Skipped uint64
}

func (e *LagError) Error() string {
	return fmt.Sprintf("subscriber lagged, %d message(s) skipped", e.Skipped)
}

// Message is one broadcast item: the publishing session and the text to
// relay.
type Message struct {
	Origin uint32
	Text   string
}

// Bus is a multi-producer, multi-consumer broadcast channel. It is safe for
// concurrent use.
type Bus struct {
	mu       sync.RWMutex
	capacity int
	subs     map[*Subscription]struct{}
	closed   bool
}

// New creates a Bus whose subscriptions buffer up to capacity messages.
//
// Parameters:
//   - capacity: Per-subscriber queue size; values <= 0 select DefaultCapacity
//
// Returns:
//   - A new, open Bus
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &Bus{
		capacity: capacity,
		subs:     make(map[*Subscription]struct{}),
	}
}

// Capacity returns the per-subscriber queue size.
func (b *Bus) Capacity() int {
	return b.capacity
}

// Subscribe registers a new subscription. Only messages published after
// Subscribe returns are delivered to it. Subscribing to a closed bus yields
// a subscription that is already closed.
//
// Returns:
//   - The new Subscription; call Close when done
func (b *Bus) Subscribe() *Subscription {
	sub := &Subscription{
		bus:   b,
		queue: make([]Message, 0, b.capacity),
		ready: make(chan struct{}, 1),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.closed = true
		sub.signal()
		return sub
	}

	b.subs[sub] = struct{}{}
	return sub
}

// Publish queues msg for every current subscriber, including the origin
// session; filtering by origin is the receiver's job.
//
// Parameters:
//   - msg: The message to broadcast
//
// Returns:
//   - The number of subscriptions the message was queued for
func (b *Bus) Publish(msg Message) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0
	}

	for sub := range b.subs {
		sub.push(msg)
	}

	return len(b.subs)
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes the bus and every subscription. Queued messages can still be
// drained; after that receives return ErrClosed. Safe to call more than once.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	b.closed = true
	for sub := range b.subs {
		sub.markClosed()
	}
	b.subs = make(map[*Subscription]struct{})
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, sub)
}

// Subscription is one consumer's view of the Bus.
type Subscription struct {
	bus *Bus

	mu      sync.Mutex
	queue   []Message
	skipped uint64
	closed  bool

	ready chan struct{}
}

// Ready returns a channel that receives a value whenever the subscription
// may have something to report: a message, a lag notice or closure. Use it
// in a select and then call TryRecv.
func (s *Subscription) Ready() <-chan struct{} {
	return s.ready
}

// TryRecv returns the next queued message without blocking.
//
// Returns:
//   - The next Message on success
//   - *LagError if messages were dropped since the last receive
//   - ErrEmpty if nothing is queued
//   - ErrClosed if the subscription is closed and drained
func (s *Subscription) TryRecv() (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.skipped > 0 {
		n := s.skipped
		s.skipped = 0
		if len(s.queue) > 0 || s.closed {
			s.signal()
		}
		return Message{}, &LagError{Skipped: n}
	}

	if len(s.queue) > 0 {
		msg := s.queue[0]
		s.queue[0] = Message{}
		s.queue = s.queue[1:]
		if len(s.queue) > 0 || s.closed {
			s.signal()
		}
		return msg, nil
	}

	if s.closed {
		s.signal()
		return Message{}, ErrClosed
	}

	return Message{}, ErrEmpty
}

// Recv blocks until a message, a lag notice or closure is available, or ctx
// is done.
//
// Parameters:
//   - ctx: Context for cancellation
//
// Returns:
//   - Same results as TryRecv, never ErrEmpty; or ctx.Err()
func (s *Subscription) Recv(ctx context.Context) (Message, error) {
	for {
		msg, err := s.TryRecv()
		if !errors.Is(err, ErrEmpty) {
			return msg, err
		}

		select {
		case <-ctx.Done():
			return Message{}, ctx.Err()
		case <-s.ready:
		}
	}
}

// Close unsubscribes from the bus and discards queued messages. Safe to
// call more than once.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = nil
	s.skipped = 0
	s.closed = true
	s.signal()
}

func (s *Subscription) push(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if len(s.queue) >= s.bus.capacity {
		s.queue[0] = Message{}
		s.queue = s.queue[1:]
		s.skipped++
	}

	s.queue = append(s.queue, msg)
	s.signal()
}

func (s *Subscription) markClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.signal()
}

// signal performs a non-blocking wake-up; caller must hold s.mu or own s
// exclusively.
func (s *Subscription) signal() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}
