package items

import "github.com/abelbrown/vinewatch/internal/model"

// Merge overlays next on prev.
//
// Fields present in next win; absent fields (empty strings, nil ETV, nil
// variants, zero timestamp) keep prev's value. Unavailable, IsParentASIN and
// IsPreRelease are sticky: once true they stay true, so a stale catch-up
// snapshot cannot resurrect an item the server already withdrew.
// Annotations are taken from next as-is; callers recompute them on the
// merged record before storing it.
func Merge(prev, next model.Item) model.Item {
	out := prev.Clone()
	next = next.Clone()

	if next.Title != "" {
		out.Title = next.Title
	}
	if next.Queue != "" {
		out.Queue = next.Queue
	}
	if next.EnrollmentGUID != "" {
		out.EnrollmentGUID = next.EnrollmentGUID
	}
	if next.ETVMin != nil {
		out.ETVMin = next.ETVMin
	}
	if next.ETVMax != nil {
		out.ETVMax = next.ETVMax
	}
	if next.Date != "" {
		out.Date = next.Date
	}
	if next.Timestamp != 0 {
		out.Timestamp = next.Timestamp
	}
	if next.ImageURL != "" {
		out.ImageURL = next.ImageURL
	}
	if next.Variants != nil {
		out.Variants = next.Variants
	}
	out.IsParentASIN = prev.IsParentASIN || next.IsParentASIN
	out.IsPreRelease = prev.IsPreRelease || next.IsPreRelease
	out.Unavailable = prev.Unavailable || next.Unavailable

	out.HighlightMatch = next.HighlightMatch
	out.HideMatch = next.HideMatch
	out.BlurMatch = next.BlurMatch
	if next.SearchPhrase != "" {
		out.SearchPhrase = next.SearchPhrase
	}
	return out
}
