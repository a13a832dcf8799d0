package parser

import (
	"reflect"
	"strings"
	"testing"
)

func TestClean_StripsMarkdownArtifacts(t *testing.T) {
	input := "#voice #ideas\n\n---\nСделать **важный** шаг [[link]] сегодня.\n\n---"
	got := Clean(input)

	for _, bad := range []string{"#", "*", "[[", "---"} {
		if strings.Contains(got, bad) {
			t.Errorf("cleaned text still contains %q: %q", bad, got)
		}
	}
	if !strings.Contains(got, "Сделать важный шаг  сегодня.") {
		t.Errorf("prose lost: %q", got)
	}
}

func TestClean_HeaderLineRemoved(t *testing.T) {
	got := Clean("# Title\nbody line\n")
	if got != "body line\n" {
		t.Errorf("got %q, want %q", got, "body line\n")
	}
}

func TestClean_TrailingTagWithoutNewline(t *testing.T) {
	got := Clean("Я люблю читать книги по вечерам. #reading")
	if got != "Я люблю читать книги по вечерам. " {
		t.Errorf("got %q", got)
	}
}

func TestExtractTags(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"header line", "#voice #ideas\n\n---\ntext", []string{"voice", "ideas"}},
		{"end of text", "Сегодня был отличный день на пляже. #life", []string{"life"}},
		{"cyrillic tag", "#дневник запись", []string{"дневник"}},
		{"duplicates", "#a x #b y #a\n", []string{"a", "b"}},
		{"glued to word", "foo#bar baz", nil},
		{"header is not a tag", "# Heading\n", nil},
		{"punctuation terminator", "#tag, more", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ExtractTags(tc.in)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("ExtractTags(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}
