package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/abelbrown/vinewatch/internal/model"
)

// Well-known setting keys.
const (
	KeyHighlightPush  = "push.highlight"
	KeyLastChancePush = "push.last_chance"
	KeyCapacity       = "feed.capacity"
)

// RulesKey returns the setting key holding the rule list of kind.
func RulesKey(kind model.RuleKind) string {
	return "rules." + string(kind)
}

// Rules returns the rule list of kind. A missing key is an empty list.
func (s *Store) Rules(kind model.RuleKind) ([]model.Rule, error) {
	raw, err := s.Get(RulesKey(kind))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rules []model.Rule
	if err := json.Unmarshal([]byte(raw), &rules); err != nil {
		return nil, fmt.Errorf("decode %s rules: %w", kind, err)
	}
	return rules, nil
}

// SetRules replaces the rule list of kind.
func (s *Store) SetRules(kind model.RuleKind, rules []model.Rule) error {
	if rules == nil {
		rules = []model.Rule{}
	}
	data, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("encode %s rules: %w", kind, err)
	}
	return s.Set(RulesKey(kind), string(data))
}

// Bool returns the boolean at key, or def if it is missing or unparsable.
func (s *Store) Bool(key string, def bool) bool {
	raw, err := s.Get(key)
	if err != nil {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

// SetBool writes a boolean.
func (s *Store) SetBool(key string, v bool) error {
	return s.Set(key, strconv.FormatBool(v))
}

// Int returns the integer at key, or def if it is missing or unparsable.
func (s *Store) Int(key string, def int) int {
	raw, err := s.Get(key)
	if err != nil {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
