// Package visibility tracks how many feed entries are currently visible.
//
// Callers adjust the count incrementally whenever the delta is known and
// only fall back to Set after a bulk or ambiguous change, so nobody has to
// rescan the whole item store on each mutation.
package visibility

import (
	"sync"
	"time"
)

// Change is delivered to observers after every state-changing call.
type Change struct {
	Count int
	Time  time.Time
}

// Counter is a non-negative visible-entry count with change notification.
// Thread-safety: all methods are safe for concurrent use. Observers are
// called synchronously, outside the counter's lock, in registration order.
type Counter struct {
	mu        sync.Mutex
	count     int
	observers map[int]func(Change)
	order     []int
	nextID    int
	now       func() time.Time
}

// NewCounter creates a Counter starting at zero.
func NewCounter() *Counter {
	return &Counter{
		observers: make(map[int]func(Change)),
		now:       time.Now,
	}
}

// Subscribe registers fn for change events. The returned function removes it.
func (c *Counter) Subscribe(fn func(Change)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.observers[id] = fn
	c.order = append(c.order, id)

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.observers, id)
		for i, v := range c.order {
			if v == id {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
	}
}

// Count returns the current value.
func (c *Counter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Increment adds n. n <= 0 is a no-op and does not notify.
func (c *Counter) Increment(n int) {
	if n <= 0 {
		return
	}
	c.apply(func(cur int) int { return cur + n })
}

// Decrement subtracts n, clamping at zero. n <= 0 is a no-op.
// Decrementing an already-zero count does not notify.
func (c *Counter) Decrement(n int) {
	if n <= 0 {
		return
	}
	c.apply(func(cur int) int {
		if n >= cur {
			return 0
		}
		return cur - n
	})
}

// Set replaces the count. Negative values are clamped to zero.
// Setting the current value does not notify.
func (c *Counter) Set(n int) {
	if n < 0 {
		n = 0
	}
	c.apply(func(int) int { return n })
}

// Reset sets the count to zero.
func (c *Counter) Reset() {
	c.Set(0)
}

// apply computes the next value and notifies observers if it changed.
func (c *Counter) apply(next func(cur int) int) {
	c.mu.Lock()
	prev := c.count
	c.count = next(prev)
	if c.count == prev {
		c.mu.Unlock()
		return
	}
	ch := Change{Count: c.count, Time: c.now()}
	fns := make([]func(Change), 0, len(c.order))
	for _, id := range c.order {
		fns = append(fns, c.observers[id])
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(ch)
	}
}
