// Package items provides the in-memory authoritative item store.
//
// # Ordering
//
// Arrival order is the recency signal. A new ASIN goes to the front of the
// "most recent first" order; updating an existing ASIN never moves it.
// Source timestamps are not used for ordering because they can be
// retroactive or inconsistent between the live channel and catch-up fetches.
//
// # Thread Safety
//
// Store is safe for concurrent use. Individual operations are atomic;
// read-modify-write sequences across calls need external synchronisation
// (the monitor holds its own lock around each ingested event).
package items

import (
	"container/list"
	"sync"

	"github.com/abelbrown/vinewatch/internal/model"
)

// DefaultCapacity is the retained-item bound used when none is configured.
const DefaultCapacity = 2000

// Entry is one retained item plus its render state.
type Entry struct {
	Item    model.Item
	Visible bool   // rendered and not hidden by the current view filter
	Seq     uint64 // arrival sequence, increasing
}

// Evicted describes an entry removed by capacity eviction.
type Evicted struct {
	ASIN    string
	Visible bool
}

// Removal reports the outcome of a bulk removal.
type Removal struct {
	Removed        []string
	VisibleRemoved int
}

// Store maps ASIN to item record and keeps arrival order.
type Store struct {
	mu       sync.RWMutex
	entries  map[string]*list.Element // ASIN -> element holding *Entry
	order    *list.List               // front = oldest arrival
	capacity int
	seq      uint64
	visible  int
}

// New creates a Store bounded at capacity. capacity <= 0 uses DefaultCapacity.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		capacity: capacity,
	}
}

// Capacity returns the configured retention bound.
func (s *Store) Capacity() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.capacity
}

// SetCapacity changes the retention bound. Call Evict afterwards to apply it.
func (s *Store) SetCapacity(capacity int) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capacity = capacity
}

// Upsert inserts it if its ASIN is absent, otherwise merges it over the
// existing record (see Merge). Returns the stored record and whether this
// was an insert. New entries start hidden; callers decide visibility.
func (s *Store) Upsert(it model.Item) (model.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.entries[it.ASIN]; ok {
		e := el.Value.(*Entry)
		e.Item = Merge(e.Item, it)
		return e.Item.Clone(), false
	}

	s.seq++
	e := &Entry{Item: it.Clone(), Seq: s.seq}
	s.entries[it.ASIN] = s.order.PushBack(e)
	return e.Item.Clone(), true
}

// Get returns a copy of the entry for asin.
func (s *Store) Get(asin string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	el, ok := s.entries[asin]
	if !ok {
		return Entry{}, false
	}
	e := *el.Value.(*Entry)
	e.Item = e.Item.Clone()
	return e, true
}

// Has reports whether asin is retained.
func (s *Store) Has(asin string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[asin]
	return ok
}

// MarkUnavailable annotates an existing record. Returns false if asin is
// absent. The entry stays in the store and keeps its visibility.
func (s *Store) MarkUnavailable(asin string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.entries[asin]
	if !ok {
		return false
	}
	el.Value.(*Entry).Item.Unavailable = true
	return true
}

// SetVisible records the render visibility of asin. Returns true if the
// flag changed.
func (s *Store) SetVisible(asin string, visible bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.entries[asin]
	if !ok {
		return false
	}
	e := el.Value.(*Entry)
	if e.Visible == visible {
		return false
	}
	e.Visible = visible
	if visible {
		s.visible++
	} else {
		s.visible--
	}
	return true
}

// IsVisible reports the render visibility of asin.
func (s *Store) IsVisible(asin string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	el, ok := s.entries[asin]
	return ok && el.Value.(*Entry).Visible
}

// Remove deletes asin. Returns whether it existed and whether it was visible.
func (s *Store) Remove(asin string) (removed, wasVisible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.entries[asin]
	if !ok {
		return false, false
	}
	return true, s.removeElement(el)
}

// RemoveMany removes the listed ASINs (keep=false) or every ASIN not listed
// (keep=true). The report separates visible removals from hidden ones so the
// caller can reconcile the visible count without a rescan.
func (s *Store) RemoveMany(asins map[string]struct{}, keep bool) Removal {
	s.mu.Lock()
	defer s.mu.Unlock()

	var r Removal
	for el := s.order.Front(); el != nil; {
		next := el.Next()
		asin := el.Value.(*Entry).Item.ASIN
		_, listed := asins[asin]
		if listed != keep {
			if s.removeElement(el) {
				r.VisibleRemoved++
			}
			r.Removed = append(r.Removed, asin)
		}
		el = next
	}
	return r
}

// EvictOldestBeyond removes oldest-arrived entries until at most max remain.
func (s *Store) EvictOldestBeyond(max int) []Evicted {
	if max < 0 {
		max = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Evicted
	for s.order.Len() > max {
		el := s.order.Front()
		asin := el.Value.(*Entry).Item.ASIN
		out = append(out, Evicted{ASIN: asin, Visible: s.removeElement(el)})
	}
	return out
}

// Evict applies the configured capacity.
func (s *Store) Evict() []Evicted {
	return s.EvictOldestBeyond(s.Capacity())
}

// Len returns the number of retained entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.order.Len()
}

// VisibleLen returns how many retained entries are flagged visible.
func (s *Store) VisibleLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.visible
}

// Recent returns copies of all entries, most recent arrival first.
func (s *Store) Recent() []Entry {
	out := make([]Entry, 0, s.Len())
	s.Each(func(e Entry) bool {
		out = append(out, e)
		return true
	})
	return out
}

// Each calls fn for every entry, most recent arrival first, until fn
// returns false. fn must not call back into the Store.
func (s *Store) Each(fn func(Entry) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for el := s.order.Back(); el != nil; el = el.Prev() {
		e := *el.Value.(*Entry)
		e.Item = e.Item.Clone()
		if !fn(e) {
			return
		}
	}
}

// removeElement unlinks el. Caller must hold s.mu. Returns whether the
// removed entry was visible.
func (s *Store) removeElement(el *list.Element) bool {
	e := el.Value.(*Entry)
	s.order.Remove(el)
	delete(s.entries, e.Item.ASIN)
	if e.Visible {
		s.visible--
	}
	return e.Visible
}
