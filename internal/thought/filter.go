package thought

import (
	"regexp"
	"strings"
	"unicode"
)

// LinkPlaceholder replaces URLs inside a candidate thought.
const LinkPlaceholder = "<LINK>"

// Default filter thresholds.
const (
	DefaultMinLetters = 10
	DefaultMinWords   = 3
)

var (
	parenLinkRe = regexp.MustCompile(`\(http\S+`)
	bareLinkRe  = regexp.MustCompile(`http\S+`)
)

// Filter holds the thresholds a candidate must meet to become a thought.
type Filter struct {
	MinLetters int
	MinWords   int
}

// DefaultFilter returns the standard thresholds.
func DefaultFilter() Filter {
	return Filter{MinLetters: DefaultMinLetters, MinWords: DefaultMinWords}
}

// CleanThought collapses URLs to LinkPlaceholder and strips a leading list
// bullet. A candidate that is mostly a link (fewer than two words remain once
// the link is removed) becomes the empty string.
func CleanThought(candidate string) string {
	t := parenLinkRe.ReplaceAllString(candidate, LinkPlaceholder)
	t = bareLinkRe.ReplaceAllString(t, LinkPlaceholder)
	t = strings.TrimSpace(t)
	t = strings.TrimPrefix(t, "- ")

	if strings.Contains(t, LinkPlaceholder) {
		linkless := strings.ReplaceAll(t, LinkPlaceholder, "")
		if len(strings.Fields(lettersAndSpaces(linkless))) < 2 {
			return ""
		}
	}
	return strings.TrimSpace(t)
}

// Keep reports whether a cleaned candidate carries enough letters and words.
func (f Filter) Keep(candidate string) bool {
	if candidate == "" {
		return false
	}
	letters := 0
	for _, r := range candidate {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if letters < f.MinLetters {
		return false
	}
	return len(strings.Fields(lettersAndSpaces(candidate))) >= f.MinWords
}

// FilterThought applies the default thresholds.
func FilterThought(candidate string) bool {
	return DefaultFilter().Keep(candidate)
}

func lettersAndSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || r == ' ' {
			return r
		}
		return -1
	}, s)
}
