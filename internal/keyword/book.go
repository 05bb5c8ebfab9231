package keyword

import (
	"slices"
	"sync"

	"github.com/abelbrown/vinewatch/internal/model"
)

// Book holds the compiled rule set for each rule kind.
// Thread-safety: all methods are safe for concurrent use.
type Book struct {
	mu   sync.RWMutex
	raw  map[model.RuleKind][]model.Rule
	sets map[model.RuleKind]*Set
	rev  uint64
}

// Snapshot is an immutable view of a Book at one revision.
type Snapshot struct {
	Hide      *Set
	Highlight *Set
	Blur      *Set
	Rev       uint64
}

// NewBook creates an empty Book.
func NewBook() *Book {
	return &Book{
		raw:  make(map[model.RuleKind][]model.Rule),
		sets: make(map[model.RuleKind]*Set),
	}
}

// Update replaces the rule list of kind. The set is recompiled only if the
// list differs from the current one. Returns true if a recompile happened.
func (b *Book) Update(kind model.RuleKind, rules []model.Rule) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cur, ok := b.raw[kind]; ok && slices.Equal(cur, rules) {
		return false
	}

	cp := slices.Clone(rules)
	b.raw[kind] = cp
	b.sets[kind] = Compile(cp)
	b.rev++
	return true
}

// Rules returns a copy of the raw rule list of kind.
func (b *Book) Rules(kind model.RuleKind) []model.Rule {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.raw[kind])
}

// Snapshot returns the current compiled sets.
func (b *Book) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Snapshot{
		Hide:      b.sets[model.RuleHide],
		Highlight: b.sets[model.RuleHighlight],
		Blur:      b.sets[model.RuleBlur],
		Rev:       b.rev,
	}
}

// Rev returns the current revision. It increases on every recompile.
func (b *Book) Rev() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.rev
}
