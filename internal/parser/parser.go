// Package parser strips Markdown artifacts from notes and extracts inline hashtags.
package parser

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	linkMarkupRe = regexp.MustCompile(`\[.*\]`)
	tagLineRe    = regexp.MustCompile(`#.*(?:\n|$)`)
	ruleRe       = regexp.MustCompile(`---`)
	tagRe        = regexp.MustCompile(`#([\p{L}\p{N}_]+)`)
)

// Clean removes bracketed link markup, everything from a '#' to the end of
// its line (hashtags and headers), horizontal rules and emphasis markers.
func Clean(raw string) string {
	s := linkMarkupRe.ReplaceAllString(raw, "")
	s = tagLineRe.ReplaceAllString(s, "")
	s = ruleRe.ReplaceAllString(s, " ")
	return strings.ReplaceAll(s, "*", "")
}

// ExtractTags returns the hashtags found in raw text, in order of first
// appearance and without duplicates. A tag must start at a word boundary and
// be followed by whitespace or the end of the text.
func ExtractTags(raw string) []string {
	matches := tagRe.FindAllStringSubmatchIndex(raw, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		start, end := m[0], m[1]
		if start > 0 {
			prev, _ := utf8.DecodeLastRuneInString(raw[:start])
			if isWordRune(prev) {
				continue
			}
		}
		if end < len(raw) {
			next, _ := utf8.DecodeRuneInString(raw[end:])
			if !unicode.IsSpace(next) {
				continue
			}
		}
		tag := raw[m[2]:m[3]]
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
