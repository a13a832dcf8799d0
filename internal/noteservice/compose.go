package noteservice

import (
	"strings"
)

// VoiceTag marks every note that came from a voice message.
const VoiceTag = "voice"

// RandomTag is added when a note carries no tag besides VoiceTag.
const RandomTag = "random"

// FirstWordTriggers map a leading keyword of the dictated text to a tag.
// The keyword itself is dropped from the note.
var FirstWordTriggers = map[string]string{
	"idea":    "ideas",
	"идея":    "ideas",
	"project": "project",
	"проект":  "project",
	"life":    "life",
	"жизнь":   "life",
	"diary":   "diary",
	"дневник": "diary",
}

// Compose renders a voice note: a hashtag line, then the text between two
// horizontal rules.
func Compose(text string, tags []string) string {
	text = strings.TrimSpace(text)
	hashtags := []string{"#" + VoiceTag}
	seen := map[string]struct{}{VoiceTag: {}}
	add := func(tag string) {
		tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
		if tag == "" {
			return
		}
		if _, dup := seen[tag]; dup {
			return
		}
		seen[tag] = struct{}{}
		hashtags = append(hashtags, "#"+tag)
	}
	for _, t := range tags {
		add(t)
	}

	first, rest, found := strings.Cut(text, " ")
	if tag, ok := FirstWordTriggers[strings.ToLower(strings.TrimRight(first, ",.:;!"))]; ok && found {
		add(tag)
		text = strings.TrimSpace(rest)
	}

	if len(hashtags) == 1 {
		hashtags = append(hashtags, "#"+RandomTag)
	}
	return strings.Join(hashtags, " ") + "\n\n---\n" + text + "\n\n---"
}
