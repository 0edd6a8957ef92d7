package crdt

import "sync/atomic"

// Clock is a Lamport clock.
//
// Every local op is stamped with Next(). Every remote op advances the clock
// through Observe() so that anything generated afterwards orders after what
// this replica has seen. This is what makes RGA sibling ordering causal.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	counter atomic.Uint64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming from a known counter.
func NewClockAt(start uint64) *Clock {
	c := &Clock{}
	c.counter.Store(start)
	return c
}

// Next returns the next counter value and advances the clock.
func (c *Clock) Next() uint64 {
	return c.counter.Add(1)
}

// Observe advances the clock to at least seen.
func (c *Clock) Observe(seen uint64) {
	for {
		cur := c.counter.Load()
		if seen <= cur {
			return
		}
		if c.counter.CompareAndSwap(cur, seen) {
			return
		}
	}
}

// Current returns the counter without advancing it.
func (c *Clock) Current() uint64 {
	return c.counter.Load()
}
