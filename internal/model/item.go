// Package model provides the data types shared by the notification monitor.
//
// Item is the unified record that flows from the live channel and the
// catch-up fetcher through the filter pipeline into the item store.
package model

import "strings"

// Queue identifies the source category of a feed item.
type Queue string

const (
	QueuePotluck    Queue = "potluck"     // recommended for you
	QueueLastChance Queue = "last_chance" // available for all
	QueueEncore     Queue = "encore"      // additional items
)

// Known returns true if q is one of the fixed queue categories.
func (q Queue) Known() bool {
	switch q {
	case QueuePotluck, QueueLastChance, QueueEncore:
		return true
	}
	return false
}

// Match is the result of a keyword classification.
// The zero value means "no match"; otherwise Keyword holds the matched rule's
// contains pattern.
type Match struct {
	Keyword string `json:"keyword,omitempty"`
}

// Matched reports whether a keyword matched.
func (m Match) Matched() bool {
	return m.Keyword != ""
}

// MatchOf builds a Match for the given keyword.
func MatchOf(keyword string) Match {
	return Match{Keyword: keyword}
}

// Variant is one child listing of a parent ASIN.
type Variant struct {
	ASIN       string            `json:"asin"`
	Title      string            `json:"title,omitempty"`
	Dimensions map[string]string `json:"dimensions,omitempty"`
}

// Item represents one product listing event.
type Item struct {
	ASIN           string   `json:"asin"`
	Title          string   `json:"title,omitempty"`
	Queue          Queue    `json:"queue,omitempty"`
	IsParentASIN   bool     `json:"is_parent_asin,omitempty"`
	IsPreRelease   bool     `json:"is_pre_release,omitempty"`
	EnrollmentGUID string   `json:"enrollment_guid,omitempty"`
	ETVMin         *float64 `json:"etv_min,omitempty"`
	ETVMax         *float64 `json:"etv_max,omitempty"`
	Date           string   `json:"date,omitempty"`      // source date string, UTC
	Timestamp      int64    `json:"timestamp,omitempty"` // Unix seconds, derived from Date
	ImageURL       string   `json:"img_url,omitempty"`
	Unavailable    bool     `json:"unavailable,omitempty"`

	Variants []Variant `json:"variants,omitempty"`

	// Locally computed annotations. Recomputed on every pipeline pass.
	HighlightMatch Match  `json:"highlight_match,omitempty"`
	HideMatch      Match  `json:"hide_match,omitempty"`
	BlurMatch      Match  `json:"blur_match,omitempty"`
	SearchPhrase   string `json:"search,omitempty"`
}

// HasTitle reports whether the title is known.
func (it *Item) HasTitle() bool {
	return strings.TrimSpace(it.Title) != ""
}

// HasETV reports whether both ETV bounds are known.
func (it *Item) HasETV() bool {
	return it.ETVMin != nil && it.ETVMax != nil
}

// Clone returns a copy that shares no mutable state with it.
func (it Item) Clone() Item {
	if it.ETVMin != nil {
		v := *it.ETVMin
		it.ETVMin = &v
	}
	if it.ETVMax != nil {
		v := *it.ETVMax
		it.ETVMax = &v
	}
	if it.Variants != nil {
		vs := make([]Variant, len(it.Variants))
		copy(vs, it.Variants)
		it.Variants = vs
	}
	return it
}

// Projection returns the minimal payload carried by a push notification.
func (it *Item) Projection() Projection {
	return Projection{
		ASIN:           it.ASIN,
		Queue:          it.Queue,
		IsParentASIN:   it.IsParentASIN,
		IsPreRelease:   it.IsPreRelease,
		EnrollmentGUID: it.EnrollmentGUID,
		Title:          it.Title,
		ImageURL:       it.ImageURL,
		SearchPhrase:   it.SearchPhrase,
	}
}

// Projection is the item subset handed to the OS notifier.
type Projection struct {
	ASIN           string `json:"asin"`
	Queue          Queue  `json:"queue"`
	IsParentASIN   bool   `json:"is_parent_asin"`
	IsPreRelease   bool   `json:"is_pre_release"`
	EnrollmentGUID string `json:"enrollment_guid"`
	Title          string `json:"title"`
	ImageURL       string `json:"img_url"`
	SearchPhrase   string `json:"search"`
}

// Float returns a pointer to v. Convenience for building items in code.
func Float(v float64) *float64 {
	return &v
}
