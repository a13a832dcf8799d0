package search

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/notemind/internal/apperr"
	"github.com/starford/notemind/internal/embedding"
	"github.com/starford/notemind/internal/models"
	"github.com/starford/notemind/internal/thought"
)

func newEngine() embedding.Engine {
	return embedding.NewPooled("", embedding.NewTokenizer(0), embedding.NewHashEncoder(0), 0)
}

func newService(opts ...Option) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(newEngine(), thought.NewExtractor(thought.WithLogger(logger)), opts...)
}

// publish embeds the given thoughts and swaps them in as the current snapshot.
func publish(t *testing.T, s *Service, thoughts []models.Thought) {
	t.Helper()
	texts := make([]string, len(thoughts))
	for i, th := range thoughts {
		texts[i] = th.Text
	}
	vecs, err := s.engine.Embed(context.Background(), texts)
	require.NoError(t, err)
	for i := range thoughts {
		thoughts[i].Embedding = vecs[i]
	}
	snap, err := NewSnapshot("test", s.engine.Name(), 0, s.engine.Dimensions(), thoughts)
	require.NoError(t, err)
	s.Swap(snap)
}

func th(text, doc string, tags ...string) models.Thought {
	if tags == nil {
		tags = []string{}
	}
	return models.Thought{Text: text, DocumentName: doc, DocumentPath: doc + ".md", Granularity: models.GranularitySentence, Tags: tags}
}

func TestNearest_ReadingBeatsBeach(t *testing.T) {
	s := newService()
	publish(t, s, []models.Thought{
		th("Сегодня был отличный день на пляже.", "beach", "life"),
		th("Я люблю читать книги по вечерам.", "reading", "reading"),
	})

	got, err := s.Nearest(context.Background(), "Что почитать вечером?", 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Я люблю читать книги по вечерам.", got[0].ThoughtText)
	assert.Equal(t, "reading", got[0].DocumentName)
	assert.Equal(t, 1, got[0].Row)
	assert.LessOrEqual(t, got[0].Distance, got[1].Distance)
}

func TestNearest_EmptyInput(t *testing.T) {
	s := newService()
	_, err := s.Nearest(context.Background(), "   \n", 5)
	assert.ErrorIs(t, err, apperr.ErrEmptyQuery)
}

func TestNearest_EmptyIndex(t *testing.T) {
	s := newService()
	got, err := s.Nearest(context.Background(), "любой запрос", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)

	publish(t, s, nil)
	got, err = s.Nearest(context.Background(), "любой запрос", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNearest_MultiSentenceQueryMergesSorted(t *testing.T) {
	s := newService()
	publish(t, s, []models.Thought{
		th("Я люблю читать книги по вечерам.", "reading"),
		th("Сегодня был отличный день на пляже.", "beach"),
		th("Купить молоко и свежий хлеб утром.", "shopping"),
	})

	got, err := s.Nearest(context.Background(), "Хочу почитать новые книги. Завтра снова пойду на пляж.", 2)
	require.NoError(t, err)
	// two sentences and the paragraph, two hits each
	assert.Len(t, got, 6)
	assert.True(t, sort.SliceIsSorted(got, func(i, j int) bool { return got[i].Distance < got[j].Distance }))
}

func TestNearest_FallsBackToWholeText(t *testing.T) {
	s := newService()
	publish(t, s, []models.Thought{th("Я люблю читать книги по вечерам.", "reading")})

	assert.Equal(t, []string{"книги"}, s.Units(context.Background(), "книги"))
	got, err := s.Nearest(context.Background(), "книги", 3)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestNearestPage(t *testing.T) {
	s := newService()
	var thoughts []models.Thought
	for _, text := range []string{
		"Первая заметка про утреннюю пробежку в парке.",
		"Вторая заметка про вечернее чтение книг.",
		"Третья заметка про поездку к морю летом.",
		"Четвертая заметка про новый рецепт пирога.",
		"Пятая заметка про ремонт велосипеда дома.",
		"Шестая заметка про концерт в субботу вечером.",
		"Седьмая заметка про изучение языка Go.",
	} {
		thoughts = append(thoughts, th(text, "n"))
	}
	publish(t, s, thoughts)

	ctx := context.Background()
	query := "Заметка про чтение книг вечером"
	all, err := s.Nearest(ctx, query, 10)
	require.NoError(t, err)

	first, total, err := s.NearestPage(ctx, query, 10, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, len(all), total)
	assert.Equal(t, all[:5], first)

	next, _, err := s.NearestPage(ctx, query, 10, 5, 5)
	require.NoError(t, err)
	assert.Equal(t, all[5:min(10, len(all))], next)

	past, _, err := s.NearestPage(ctx, query, 10, 1000, 5)
	require.NoError(t, err)
	assert.Empty(t, past)
}

func TestSuggestTags_DropsStopTagsAndRanks(t *testing.T) {
	s := newService(WithNeighbours(10))
	publish(t, s, []models.Thought{
		th("Я люблю читать книги по вечерам.", "a", "voice", "reading", "books"),
		th("Я люблю читать журналы по вечерам.", "b", "voice", "reading", ""),
		th("Я люблю читать стихи по утрам.", "c", "voice", "poetry", "books", "reading"),
		th("Я люблю читать газеты в метро.", "d", "voice", "news"),
		th("Я люблю читать письма от друзей.", "e", "voice", "friends"),
	})

	got, err := s.SuggestTags(context.Background(), "Я люблю читать по вечерам.")
	require.NoError(t, err)
	assert.NotContains(t, got, "voice")
	assert.NotContains(t, got, "")
	assert.LessOrEqual(t, len(got), DefaultTagLimit)
	require.NotEmpty(t, got)
	assert.Equal(t, "reading", got[0])
	assert.Equal(t, "books", got[1])
}

func TestSuggestTags_TieKeepsFirstSeen(t *testing.T) {
	s := newService(WithTagLimit(2), WithStopTags([]string{"voice"}))
	publish(t, s, []models.Thought{
		th("Заметка о прогулке по старому городу.", "a", "walk", "city"),
	})
	got, err := s.SuggestTags(context.Background(), "Прогулка по старому городу вечером.")
	require.NoError(t, err)
	// one sentence unit and the same paragraph is deduplicated, so each tag appears once
	assert.Equal(t, []string{"walk", "city"}, got)
}

func TestSuggestTags_EmptyIndex(t *testing.T) {
	s := newService()
	got, err := s.SuggestTags(context.Background(), "что-нибудь")
	require.NoError(t, err)
	assert.Equal(t, []string{}, got)
}

func TestNearest_ConcurrentSwap(t *testing.T) {
	s := newService()
	a := []models.Thought{th("Я люблю читать книги по вечерам.", "a")}
	b := []models.Thought{
		th("Сегодня был отличный день на пляже.", "b"),
		th("Завтра поеду на дачу к родителям.", "b"),
	}
	publish(t, s, a)
	snapA := s.Snapshot()
	publish(t, s, b)
	snapB := s.Snapshot()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if j%2 == 0 {
					s.Swap(snapA)
				} else {
					s.Swap(snapB)
				}
			}
		}()
		go func() {
			defer wg.Done()
			got, err := s.Nearest(context.Background(), "Я люблю читать книги", 5)
			assert.NoError(t, err)
			docs := map[string]bool{}
			for _, n := range got {
				docs[n.DocumentName] = true
			}
			assert.False(t, docs["a"] && docs["b"], "mixed snapshots in one result")
		}()
	}
	wg.Wait()
}

func TestSnapshot_Info(t *testing.T) {
	var nilSnap *Snapshot
	assert.Equal(t, Info{}, nilSnap.Info())

	s := newService()
	publish(t, s, []models.Thought{th("Я люблю читать книги по вечерам.", "a")})
	info := s.Snapshot().Info()
	assert.Equal(t, 1, info.Thoughts)
	assert.Equal(t, embedding.DefaultDimensions, info.Dimensions)
}
