package main

import (
	"errors"
	"testing"

	"github.com/abelbrown/vinewatch/internal/keyword"
	"github.com/abelbrown/vinewatch/internal/model"
	"github.com/abelbrown/vinewatch/internal/store"
)

type fakeSettings struct {
	rules map[model.RuleKind][]model.Rule
	bools map[string]bool
	ints  map[string]int
	bad   model.RuleKind
}

func (f *fakeSettings) Rules(kind model.RuleKind) ([]model.Rule, error) {
	if kind == f.bad {
		return nil, errors.New("decode failed")
	}
	return f.rules[kind], nil
}

func (f *fakeSettings) Bool(key string, def bool) bool {
	if v, ok := f.bools[key]; ok {
		return v
	}
	return def
}

func (f *fakeSettings) Int(key string, def int) int {
	if v, ok := f.ints[key]; ok {
		return v
	}
	return def
}

func TestSettingsSyncReload(t *testing.T) {
	src := &fakeSettings{
		rules: map[model.RuleKind][]model.Rule{
			model.RuleHighlight: {{Contains: "lamp"}},
		},
		bools: map[string]bool{store.KeyLastChancePush: true},
		ints:  map[string]int{},
	}
	book := keyword.NewBook()
	s := newSettingsSync(src, book, 2000)

	reapplied, capacity := 0, 0
	s.onRules = func() { reapplied++ }
	s.onCapacity = func(n int) { capacity = n }

	s.Reload()
	if reapplied != 1 {
		t.Errorf("first load should reapply once, got %d", reapplied)
	}
	if capacity != 2000 {
		t.Errorf("capacity = %d, want config default 2000", capacity)
	}
	got := s.Settings()
	if !got.HighlightPush || !got.LastChancePush {
		t.Errorf("toggles = %+v", got)
	}
	if len(book.Rules(model.RuleHighlight)) != 1 {
		t.Error("highlight rules not loaded")
	}

	// Unchanged settings do not reapply.
	s.Reload()
	if reapplied != 1 {
		t.Errorf("reapplied = %d after identical reload", reapplied)
	}

	src.ints[store.KeyCapacity] = 50
	src.bools[store.KeyHighlightPush] = false
	src.rules[model.RuleHide] = []model.Rule{{Contains: "cable"}}
	s.Reload()
	if reapplied != 2 || capacity != 50 || s.Settings().HighlightPush {
		t.Errorf("reapplied=%d capacity=%d toggles=%+v", reapplied, capacity, s.Settings())
	}
}

func TestSettingsSyncKeepsRulesOnDecodeError(t *testing.T) {
	src := &fakeSettings{rules: map[model.RuleKind][]model.Rule{
		model.RuleBlur: {{Contains: "spoiler"}},
	}}
	book := keyword.NewBook()
	s := newSettingsSync(src, book, 10)
	s.Reload()

	src.bad = model.RuleBlur
	s.Reload()
	if got := book.Rules(model.RuleBlur); len(got) != 1 {
		t.Errorf("blur rules = %v, want previous list kept", got)
	}
}
