package thought

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/notemind/internal/models"
)

type stubSummarizer struct {
	answer string
	err    error
	calls  int
}

func (s *stubSummarizer) Summarize(context.Context, string) (string, error) {
	s.calls++
	return s.answer, s.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func texts(ts []models.Thought) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Text
	}
	return out
}

func TestCleanThought(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"- http://example.com", ""},
		{"http://example.com", ""},
		{"см. (https://example.com/x)", ""},
		{"- Прочитать статью https://example.com/post про индексы", "Прочитать статью <LINK> про индексы"},
		{"- купить хлеб и молоко", "купить хлеб и молоко"},
		{"  plain sentence here  ", "plain sentence here"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CleanThought(tc.in), "CleanThought(%q)", tc.in)
	}
}

func TestFilterThought(t *testing.T) {
	assert.False(t, FilterThought(""))
	assert.False(t, FilterThought("Привет мир"), "two words")
	assert.False(t, FilterThought("a b c d"), "too few letters")
	assert.False(t, FilterThought("123 456 789 000 111"), "no letters")
	assert.True(t, FilterThought("Я люблю читать книги"))

	strict := Filter{MinLetters: 30, MinWords: 10}
	assert.False(t, strict.Keep("Я люблю читать книги по вечерам."))
}

func TestSentences(t *testing.T) {
	text := "Первое предложение. Второе предложение! А это т.е. не конец.\tТаб отдельно\nСтрока с числом 3.14 внутри. Dr. Smith came late."
	got := Sentences(text)
	want := []string{
		"Первое предложение.",
		"Второе предложение!",
		"А это т.е. не конец.",
		"Таб отдельно",
		"Строка с числом 3.14 внутри.",
		"Dr. Smith came late.",
	}
	assert.Equal(t, want, got)
}

func TestSentences_LowercaseContinues(t *testing.T) {
	got := Sentences("Это ... продолжение мысли. Новая мысль")
	assert.Equal(t, []string{"Это ... продолжение мысли.", "Новая мысль"}, got)
}

func TestParagraphs(t *testing.T) {
	got := Paragraphs("one\ntwo\n\n\n\nthree\n\n  ")
	assert.Equal(t, []string{"one\ntwo", "three"}, got)
}

func TestExtract_SentenceAndParagraphDeduplicated(t *testing.T) {
	e := NewExtractor(WithLogger(quietLogger()))
	cleaned := "Я люблю читать книги по вечерам. "
	got := e.Extract(context.Background(), cleaned)
	require.Len(t, got, 1)
	assert.Equal(t, "Я люблю читать книги по вечерам.", got[0].Text)
	assert.Equal(t, models.GranularitySentence, got[0].Granularity)
}

func TestExtract_MultiSentenceParagraph(t *testing.T) {
	e := NewExtractor(WithLogger(quietLogger()))
	cleaned := "Утром я бегал в парке. Потом долго завтракал с друзьями.\n\n- http://example.com"
	got := e.Extract(context.Background(), cleaned)
	assert.Equal(t, []string{
		"Утром я бегал в парке.",
		"Потом долго завтракал с друзьями.",
		"Утром я бегал в парке. Потом долго завтракал с друзьями.",
	}, texts(got))
	assert.Equal(t, models.GranularityParagraph, got[2].Granularity)
}

func TestExtract_Summary(t *testing.T) {
	s := &stubSummarizer{answer: "Here is the summary:\nThe author enjoys reading books. Evenings are for quiet reading. ok"}
	e := NewExtractor(
		WithGranularities(models.GranularitySummary),
		WithSummarizer(s),
		WithLogger(quietLogger()),
	)
	got := e.Extract(context.Background(), "some cleaned text")
	assert.Equal(t, []string{"The author enjoys reading books", "Evenings are for quiet reading"}, texts(got))
	assert.Equal(t, 1, s.calls)
}

func TestExtract_SummaryFailureIsNotFatal(t *testing.T) {
	s := &stubSummarizer{err: errors.New("model offline")}
	e := NewExtractor(
		WithGranularities(models.GranularitySentence, models.GranularitySummary),
		WithSummarizer(s),
		WithLogger(quietLogger()),
	)
	got := e.Extract(context.Background(), "Сегодня был отличный день на пляже.")
	assert.Equal(t, []string{"Сегодня был отличный день на пляже."}, texts(got))
}

func TestExtract_SummaryWithoutSummarizerIsSkipped(t *testing.T) {
	e := NewExtractor(WithGranularities(models.GranularitySummary), WithLogger(quietLogger()))
	assert.Empty(t, e.Extract(context.Background(), "Сегодня был отличный день на пляже."))
}
