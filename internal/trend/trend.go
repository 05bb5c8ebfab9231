// Package trend tracks which title words are arriving most often, over a
// sliding time window, using a decaying top-k sketch.
package trend

import (
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/keilerkonzept/topk/sliding"
)

const (
	DefaultK      = 10
	DefaultWindow = time.Hour
	DefaultTick   = time.Minute
)

// minWordLen skips short tokens such as sizes and articles.
const minWordLen = 3

var stopWords = map[string]bool{
	"and": true, "the": true, "for": true, "with": true, "pack": true,
	"set": true, "pcs": true, "inch": true, "new": true, "from": true,
	"compatible": true, "black": true, "white": true,
}

// Word is one trending word with its estimated count in the window.
type Word struct {
	Word  string
	Count uint64
}

// Tracker is safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	sketch *sliding.Sketch
	tick   time.Duration
	last   time.Time
	now    func() time.Time
}

// New creates a tracker keeping k words over window, advanced in steps of
// tick.
func New(k int, window, tick time.Duration) *Tracker {
	if k <= 0 {
		k = DefaultK
	}
	if tick <= 0 {
		tick = DefaultTick
	}
	if window < tick {
		window = tick
	}
	return &Tracker{
		sketch: sliding.New(k, int(window/tick)),
		tick:   tick,
		now:    time.Now,
	}
}

// advanceLocked moves the window forward by the ticks elapsed since the
// last call.
func (t *Tracker) advanceLocked() {
	now := t.now().Truncate(t.tick)
	if t.last.IsZero() {
		t.last = now
		return
	}
	if n := int(now.Sub(t.last) / t.tick); n > 0 {
		t.sketch.Ticks(n)
		t.last = now
	}
}

// Observe counts the words of one item title.
func (t *Tracker) Observe(title string) {
	words := Words(title)
	if len(words) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.advanceLocked()
	for _, w := range words {
		t.sketch.Incr(w)
	}
}

// Top returns up to n words, most frequent first.
func (t *Tracker) Top(n int) []Word {
	if t == nil || n <= 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.advanceLocked()

	var out []Word
	for _, it := range t.sketch.SortedSlice() {
		if len(out) == n {
			break
		}
		if it.Count == 0 {
			continue
		}
		out = append(out, Word{Word: it.Item, Count: uint64(it.Count)})
	}
	return out
}

// Words splits a title into distinct lower-case words worth counting.
func Words(title string) []string {
	fields := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		if len([]rune(f)) < minWordLen || stopWords[f] || seen[f] || isNumber(f) {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

func isNumber(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
