package main

import (
	"sync/atomic"

	"github.com/abelbrown/vinewatch/internal/keyword"
	"github.com/abelbrown/vinewatch/internal/logging"
	"github.com/abelbrown/vinewatch/internal/model"
	"github.com/abelbrown/vinewatch/internal/pipeline"
	"github.com/abelbrown/vinewatch/internal/store"
)

// settingsSource is the part of *store.Store the sync reads.
type settingsSource interface {
	Rules(kind model.RuleKind) ([]model.Rule, error)
	Bool(key string, def bool) bool
	Int(key string, def int) int
}

// settingsSync mirrors the settings table into the rule book, the pipeline
// toggles and the feed capacity.
type settingsSync struct {
	src      settingsSource
	book     *keyword.Book
	capacity int // used when the setting is absent
	toggles  atomic.Pointer[pipeline.Settings]

	onRules    func()
	onCapacity func(int)
}

func newSettingsSync(src settingsSource, book *keyword.Book, capacity int) *settingsSync {
	s := &settingsSync{src: src, book: book, capacity: capacity}
	s.toggles.Store(&pipeline.Settings{})
	return s
}

// Settings is the pipeline's toggle source.
func (s *settingsSync) Settings() pipeline.Settings {
	return *s.toggles.Load()
}

// Reload reads every setting. A rule list that fails to decode keeps the
// previous compiled set.
func (s *settingsSync) Reload() {
	changed := false
	for _, kind := range model.RuleKinds {
		rules, err := s.src.Rules(kind)
		if err != nil {
			logging.Warn("rule list unreadable, keeping previous", "kind", kind, "error", err)
			continue
		}
		if s.book.Update(kind, rules) {
			changed = true
		}
	}

	s.toggles.Store(&pipeline.Settings{
		HighlightPush:  s.src.Bool(store.KeyHighlightPush, true),
		LastChancePush: s.src.Bool(store.KeyLastChancePush, false),
	})

	if s.onCapacity != nil {
		s.onCapacity(s.src.Int(store.KeyCapacity, s.capacity))
	}
	if changed && s.onRules != nil {
		logging.Info("rules changed, reapplying", "rev", s.book.Rev())
		s.onRules()
	}
}
