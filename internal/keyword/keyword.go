// Package keyword classifies item titles against user-defined rule sets.
//
// A rule list is compiled once into a Set. Sets are immutable; a Book holds
// the current set for each rule kind and swaps in a freshly compiled one
// whenever the underlying list changes.
package keyword

import (
	"regexp"
	"strings"

	"github.com/abelbrown/vinewatch/internal/model"
)

// compiledRule pairs a rule with its compiled patterns.
type compiledRule struct {
	rule     model.Rule
	contains *regexp.Regexp
	without  *regexp.Regexp // nil when the rule has no exclusion
}

// Set is a compiled, read-only rule list. Safe for concurrent use.
type Set struct {
	rules []compiledRule
}

// Compile builds a Set from rules. Rules with an empty contains keyword
// can never match and are skipped.
func Compile(rules []model.Rule) *Set {
	s := &Set{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		if strings.TrimSpace(r.Contains) == "" {
			continue
		}
		cr := compiledRule{
			rule:     r,
			contains: compileKeyword(r.Contains),
		}
		if strings.TrimSpace(r.Without) != "" {
			cr.without = compileKeyword(r.Without)
		}
		s.rules = append(s.rules, cr)
	}
	return s
}

// compileKeyword returns a case-insensitive matcher for kw.
// Keywords that parse as regular expressions are used as such, everything
// else (e.g. "C++") is matched literally. A pattern that matches the empty
// string ("a*", "x?") would match every title, so it is taken literally too.
func compileKeyword(kw string) *regexp.Regexp {
	kw = strings.TrimSpace(kw)
	if re, err := regexp.Compile("(?i)" + kw); err == nil && !re.MatchString("") {
		return re
	}
	return regexp.MustCompile("(?i)" + regexp.QuoteMeta(kw))
}

// Len returns the number of usable rules.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

// Match returns the first rule, in list order, that matches title and the
// item's ETV range.
//
// A rule with an ETV bound never matches an item whose ETV is unknown
// (etvMin or etvMax nil). Rules without bounds ignore ETV entirely.
func (s *Set) Match(title string, etvMin, etvMax *float64) (model.Rule, bool) {
	if s == nil || title == "" {
		return model.Rule{}, false
	}
	for _, cr := range s.rules {
		if !cr.contains.MatchString(title) {
			continue
		}
		if cr.without != nil && cr.without.MatchString(title) {
			continue
		}
		if cr.rule.HasETV() && !etvOverlaps(cr.rule, etvMin, etvMax) {
			continue
		}
		return cr.rule, true
	}
	return model.Rule{}, false
}

// MatchTitle matches on title alone, skipping every rule that carries an
// ETV bound. Used where ETV is not part of the decision (blur).
func (s *Set) MatchTitle(title string) (model.Rule, bool) {
	return s.Match(title, nil, nil)
}

// etvOverlaps reports whether the item range [min, max] overlaps the rule's
// configured range. Unset rule bounds are open ended.
func etvOverlaps(r model.Rule, etvMin, etvMax *float64) bool {
	if etvMin == nil || etvMax == nil {
		return false
	}
	if r.ETVMin.Set && *etvMax < r.ETVMin.Value {
		return false
	}
	if r.ETVMax.Set && *etvMin > r.ETVMax.Value {
		return false
	}
	return true
}
