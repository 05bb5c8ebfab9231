package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Bound is an optional ETV limit on a rule.
// Settings store it as either a JSON string or a number; "" means unbounded.
type Bound struct {
	Value float64
	Set   bool
}

// BoundOf returns a set Bound.
func BoundOf(v float64) Bound {
	return Bound{Value: v, Set: true}
}

// UnmarshalJSON accepts "", "12.5", 12.5 and null.
func (b *Bound) UnmarshalJSON(data []byte) error {
	*b = Bound{}
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		str = strings.TrimSpace(str)
		if str == "" {
			return nil
		}
		s = str
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid etv bound %q: %w", s, err)
	}
	*b = BoundOf(v)
	return nil
}

// MarshalJSON writes "" for an unset bound and a number otherwise.
func (b Bound) MarshalJSON() ([]byte, error) {
	if !b.Set {
		return []byte(`""`), nil
	}
	return json.Marshal(b.Value)
}

// String formats the bound for display.
func (b Bound) String() string {
	if !b.Set {
		return ""
	}
	return strconv.FormatFloat(b.Value, 'f', -1, 64)
}

// Rule is one user-defined keyword rule.
//
// Contains and Without are matched case-insensitively anywhere in the title.
// A keyword that is a valid regular expression is used as one, so "3.5mm"
// also matches "305mm"; an invalid pattern, or one that matches the empty
// string, is matched literally.
type Rule struct {
	Contains string `json:"contains"`
	Without  string `json:"without"`
	ETVMin   Bound  `json:"etv_min"`
	ETVMax   Bound  `json:"etv_max"`
}

// HasETV reports whether the rule constrains ETV at all.
func (r Rule) HasETV() bool {
	return r.ETVMin.Set || r.ETVMax.Set
}

// RuleKind selects which rule set a rule belongs to.
type RuleKind string

const (
	RuleHide      RuleKind = "hide"
	RuleHighlight RuleKind = "highlight"
	RuleBlur      RuleKind = "blur"
)

// RuleKinds lists every kind in evaluation order.
var RuleKinds = []RuleKind{RuleHide, RuleHighlight, RuleBlur}
