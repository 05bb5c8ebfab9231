package otel

import (
	"maps"
	"sync"
)

// DefaultRingSize is the default ring buffer capacity.
const DefaultRingSize = 1024

// RingBuffer keeps the most recent journal events in memory for the debug
// pane. Safe for concurrent use.
type RingBuffer struct {
	mu   sync.Mutex
	buf  []Event
	next int  // slot the next Push writes
	full bool // buf has wrapped at least once
}

// NewRingBuffer creates a ring buffer holding size events.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &RingBuffer{buf: make([]Event, size)}
}

// Push adds an event, overwriting the oldest when full. Extra is copied so
// the caller may reuse its map.
func (r *RingBuffer) Push(e Event) {
	if e.Extra != nil {
		e.Extra = maps.Clone(e.Extra)
	}
	r.mu.Lock()
	r.buf[r.next] = e
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
	r.mu.Unlock()
}

// lenLocked returns the number of buffered events.
func (r *RingBuffer) lenLocked() int {
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// at returns the i-th buffered event, oldest first.
func (r *RingBuffer) at(i int) Event {
	if !r.full {
		return r.buf[i]
	}
	return r.buf[(r.next+i)%len(r.buf)]
}

// Snapshot returns every buffered event, oldest first.
func (r *RingBuffer) Snapshot() []Event {
	return r.Filter(0, nil)
}

// Last returns the n most recent events, oldest first.
func (r *RingBuffer) Last(n int) []Event {
	if n <= 0 {
		return nil
	}
	return r.Filter(n, nil)
}

// Filter returns up to n of the most recent events accepted by match,
// oldest first. n <= 0 means no limit and a nil match accepts everything.
func (r *RingBuffer) Filter(n int, match func(Event) bool) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := r.lenLocked()
	if count == 0 {
		return nil
	}
	var out []Event
	for i := count - 1; i >= 0; i-- {
		if n > 0 && len(out) == n {
			break
		}
		e := r.at(i)
		if match == nil || match(e) {
			out = append(out, e)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Problems returns up to n of the most recent warn and error events.
func (r *RingBuffer) Problems(n int) []Event {
	if n <= 0 {
		return nil
	}
	return r.Filter(n, func(e Event) bool {
		return e.Level.rank() >= LevelWarn.rank()
	})
}

// Len returns the number of buffered events.
func (r *RingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lenLocked()
}

// Cap returns the buffer capacity.
func (r *RingBuffer) Cap() int {
	return len(r.buf)
}

// Stats counts buffered events by kind.
func (r *RingBuffer) Stats() map[EventKind]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[EventKind]int)
	for i := range r.lenLocked() {
		counts[r.at(i).Kind]++
	}
	return counts
}
