package pipeline

import "regexp"

// searchPrefix keeps up to 40 plain characters that are followed by
// whitespace, which drops the trailing partial word.
var searchPrefix = regexp.MustCompile(`^([a-zA-Z0-9\s',]{0,40})\s+.*$`)

// SearchPhrase derives the short search string used for outbound search
// links. Titles that don't start with plain characters are returned as-is.
func SearchPhrase(title string) string {
	m := searchPrefix.FindStringSubmatch(title)
	if m == nil {
		return title
	}
	return m[1]
}
