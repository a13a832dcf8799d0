package thought

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	lineSepRe      = regexp.MustCompile(`[\n\t]`)
	paragraphSepRe = regexp.MustCompile(`\n\n`)
)

// abbreviations never end a sentence; compared lower-cased without the dot.
var abbreviations = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "prof": {}, "st": {}, "vs": {}, "etc": {}, "e.g": {}, "i.e": {},
	"т.е": {}, "т.д": {}, "т.п": {}, "т.к": {}, "др": {}, "им": {}, "см": {}, "стр": {}, "г": {}, "гг": {}, "ул": {},
}

// Sentences splits text on line and tab boundaries, then on sentence
// boundaries inside each line. Empty pieces are dropped.
func Sentences(text string) []string {
	var out []string
	for _, line := range lineSepRe.Split(text, -1) {
		for _, s := range splitLine(line) {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// Paragraphs splits text on blank-line boundaries. Empty pieces are dropped.
func Paragraphs(text string) []string {
	var out []string
	for _, p := range paragraphSepRe.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitLine cuts a single line after terminal punctuation that is followed by
// whitespace and a word that does not start in lower case.
func splitLine(line string) []string {
	var out []string
	start := 0
	i := 0
	for i < len(line) {
		r, size := utf8.DecodeRuneInString(line[i:])
		if !isTerminal(r) {
			i += size
			continue
		}
		end := i + size
		for end < len(line) {
			next, n := utf8.DecodeRuneInString(line[end:])
			if !isTerminal(next) && !isCloser(next) {
				break
			}
			end += n
		}
		if end >= len(line) {
			break
		}
		ws, n := utf8.DecodeRuneInString(line[end:])
		if !unicode.IsSpace(ws) {
			i = end
			continue
		}
		after := strings.TrimLeftFunc(line[end+n:], unicode.IsSpace)
		first, _ := utf8.DecodeRuneInString(after)
		if after == "" || unicode.IsLower(first) || (r == '.' && isAbbreviation(line[start:i])) {
			i = end
			continue
		}
		out = append(out, line[start:end])
		start = end
		i = end
	}
	if start < len(line) {
		out = append(out, line[start:])
	}
	return out
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '…'
}

func isCloser(r rune) bool {
	return r == '"' || r == '\'' || r == ')' || r == '»' || r == '”'
}

// isAbbreviation reports whether the text before a dot ends with a known
// abbreviation or a single-letter initial.
func isAbbreviation(before string) bool {
	fields := strings.Fields(before)
	if len(fields) == 0 {
		return false
	}
	last := strings.ToLower(strings.TrimLeftFunc(fields[len(fields)-1], func(r rune) bool {
		return !unicode.IsLetter(r)
	}))
	if utf8.RuneCountInString(last) == 1 {
		return true
	}
	_, ok := abbreviations[last]
	return ok
}
