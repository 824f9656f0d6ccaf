// Package broadcast implements the reload signal channel: one publisher, any
// number of subscribers, each with its own bounded buffer.
//
// Publish never blocks. A subscriber whose buffer is full misses that signal
// but stays subscribed and receives later ones.
package broadcast

import "sync"

// DefaultCapacity is the per-subscriber buffer size.
const DefaultCapacity = 100

// Signal is a payload-free reload notification.
type Signal struct{}

// Channel fans signals out to its subscribers.
type Channel struct {
	mu       sync.Mutex
	subs     map[*Subscription]struct{}
	capacity int
	closed   bool
}

// Subscription is one receiver's view of a Channel.
type Subscription struct {
	ch     chan Signal
	parent *Channel
	once   sync.Once
}

// New creates a channel with the given per-subscriber capacity
// (DefaultCapacity when capacity <= 0).
func New(capacity int) *Channel {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Channel{
		subs:     make(map[*Subscription]struct{}),
		capacity: capacity,
	}
}

// Capacity returns the per-subscriber buffer size.
func (c *Channel) Capacity() int {
	return c.capacity
}

// Subscribe registers a new receiver. Subscribing to a closed channel returns
// a subscription whose C is already closed.
func (c *Channel) Subscribe() *Subscription {
	sub := &Subscription{
		ch:     make(chan Signal, c.capacity),
		parent: c,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		sub.once.Do(func() { close(sub.ch) })
		return sub
	}
	c.subs[sub] = struct{}{}
	return sub
}

// Publish offers one signal to every subscriber and returns how many
// accepted it.
func (c *Channel) Publish() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	delivered := 0
	for sub := range c.subs {
		select {
		case sub.ch <- Signal{}:
			delivered++
		default:
		}
	}
	return delivered
}

// Subscribers returns the number of live subscriptions.
func (c *Channel) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Close closes every subscription. Later Publish calls deliver nothing.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for sub := range c.subs {
		sub.once.Do(func() { close(sub.ch) })
		delete(c.subs, sub)
	}
}

// C returns the receive side of the subscription. It is closed when the
// subscription or its channel is closed.
func (s *Subscription) C() <-chan Signal {
	return s.ch
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.parent.mu.Lock()
	delete(s.parent.subs, s)
	s.parent.mu.Unlock()
	s.once.Do(func() { close(s.ch) })
}
