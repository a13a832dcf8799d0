package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/notemind/internal/apperr"
)

func sqDist(a, b []float32) float64 {
	var s float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		s += d * d
	}
	return s
}

func TestTokenizer_Pieces(t *testing.T) {
	tok := NewTokenizer(0)
	assert.Equal(t, []string{"_я_", "_чт", "что", "то_"}, tok.Pieces("Я, что?"))
	assert.Empty(t, tok.Pieces("  ... "))
}

func TestTokenizer_EncodePadsAndTruncates(t *testing.T) {
	tok := NewTokenizer(4)
	enc := tok.Encode([]string{"ab", "abcdef"})

	require.Len(t, enc.IDs, 2)
	assert.Equal(t, []int{1, 1, 0, 0}, enc.Mask[0])
	assert.Equal(t, PadID, enc.IDs[0][3])
	assert.Equal(t, []int{1, 1, 1, 1}, enc.Mask[1])
	assert.Len(t, enc.IDs[1], 4)
}

func TestMeanPool_IgnoresMaskedPositions(t *testing.T) {
	hidden := [][][]float32{{{1, 2}, {3, 4}, {100, 100}}}
	mask := [][]int{{1, 1, 0}}
	got, err := MeanPool(hidden, mask)
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{2, 3}}, got)

	got, err = MeanPool([][][]float32{{{5, 5}}}, [][]int{{0}})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 0}}, got)

	_, err = MeanPool(hidden, nil)
	assert.Error(t, err)
}

func TestPooled_PaddingLengthDoesNotMatter(t *testing.T) {
	short := NewPooled("", NewTokenizer(16), NewHashEncoder(32), 4)
	long := NewPooled("", NewTokenizer(64), NewHashEncoder(32), 4)

	a, err := short.Embed(context.Background(), []string{"Я люблю читать"})
	require.NoError(t, err)
	b, err := long.Embed(context.Background(), []string{"Я люблю читать"})
	require.NoError(t, err)
	assert.InDeltaSlice(t, a[0], b[0], 1e-6)
}

func TestPooled_DeterministicAndBatched(t *testing.T) {
	e := NewPooled("", NewTokenizer(0), NewHashEncoder(0), 2)
	texts := []string{"one two three", "four five", "six", "seven eight nine ten", "eleven"}

	first, err := e.Embed(context.Background(), texts)
	require.NoError(t, err)
	second, err := e.Embed(context.Background(), texts)
	require.NoError(t, err)

	require.Len(t, first, len(texts))
	assert.Equal(t, first, second)
	for _, v := range first {
		assert.Len(t, v, DefaultDimensions)
	}
	single, err := e.Embed(context.Background(), texts[3:4])
	require.NoError(t, err)
	assert.Equal(t, first[3], single[0])
	assert.Equal(t, "hash-trigram-384-128", e.Name())
}

func TestPooled_SharedWordsAreCloser(t *testing.T) {
	e := NewPooled("", NewTokenizer(0), NewHashEncoder(0), 0)
	vecs, err := e.Embed(context.Background(), []string{
		"Что почитать вечером?",
		"Я люблю читать книги по вечерам.",
		"Сегодня был отличный день на пляже.",
	})
	require.NoError(t, err)
	assert.Less(t, sqDist(vecs[0], vecs[1]), sqDist(vecs[0], vecs[2]))
}

type fixedEncoder struct{ dims, got int }

func (f fixedEncoder) Dimensions() int { return f.dims }

func (f fixedEncoder) Encode(_ context.Context, ids [][]uint64) ([][][]float32, error) {
	out := make([][][]float32, len(ids))
	for i, seq := range ids {
		out[i] = make([][]float32, len(seq))
		for j := range seq {
			out[i][j] = make([]float32, f.got)
		}
	}
	return out, nil
}

func TestPooled_DimensionMismatch(t *testing.T) {
	e := NewPooled("broken", NewTokenizer(4), fixedEncoder{dims: 8, got: 4}, 0)
	_, err := e.Embed(context.Background(), []string{"text"})
	assert.ErrorIs(t, err, apperr.ErrDimensionMismatch)
}

type countingEngine struct {
	Engine
	calls atomic.Int32
	texts atomic.Int32
}

func (c *countingEngine) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	c.texts.Add(int32(len(texts)))
	return c.Engine.Embed(ctx, texts)
}

func TestCached(t *testing.T) {
	inner := &countingEngine{Engine: NewPooled("", NewTokenizer(0), NewHashEncoder(16), 0)}
	c, err := NewCached(inner, 8)
	require.NoError(t, err)

	a, err := c.Embed(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	b, err := c.Embed(context.Background(), []string{"beta", "gamma", "alpha"})
	require.NoError(t, err)

	assert.Equal(t, int32(2), inner.calls.Load())
	assert.Equal(t, int32(3), inner.texts.Load())
	assert.Equal(t, a[0], b[2])
	assert.Equal(t, a[1], b[0])
	assert.Equal(t, 16, c.Dimensions())
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(context.Background(), Config{Provider: "nope"}, nil)
	assert.Error(t, err)

	e, err := New(context.Background(), Config{Provider: ProviderHash, Dimensions: 64, MaxLength: 32}, nil)
	require.NoError(t, err)
	assert.Equal(t, 64, e.Dimensions())
}

func openAIServer(t *testing.T, failFirst int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		if int(n) <= failFirst {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
			return
		}
		var body struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		type item struct {
			Object    string    `json:"object"`
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		}
		data := make([]item, len(body.Input))
		// reverse order to check that results are re-sorted by index
		for i := range body.Input {
			j := len(body.Input) - 1 - i
			data[i] = item{Object: "embedding", Index: j, Embedding: []float64{float64(j), float64(len(body.Input[j]))}}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  "test-embed",
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestOpenAIEngine_Embed(t *testing.T) {
	srv, hits := openAIServer(t, 0)
	e := NewOpenAIEngine(Config{BaseURL: srv.URL + "/", APIKey: "test", Model: "test-embed", BatchSize: 2, Timeout: 5 * time.Second}, quiet())

	assert.Equal(t, 0, e.Dimensions())
	vecs, err := e.Embed(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1}, {1, 2}, {0, 3}}, vecs)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, 2, e.Dimensions())
	assert.Equal(t, "openai:test-embed", e.Name())
}

func TestOpenAIEngine_RetriesRateLimit(t *testing.T) {
	srv, hits := openAIServer(t, 1)
	e := NewOpenAIEngine(Config{BaseURL: srv.URL + "/", APIKey: "test", Timeout: 5 * time.Second}, quiet())

	vecs, err := e.Embed(context.Background(), []string{"hello"})
	require.NoError(t, err)
	assert.Len(t, vecs, 1)
	assert.Equal(t, int32(2), hits.Load())
}

func TestOpenAIEngine_FailsClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
	}))
	defer srv.Close()

	e := NewOpenAIEngine(Config{BaseURL: srv.URL + "/", APIKey: "test", Timeout: time.Second}, quiet())
	_, err := e.Embed(context.Background(), []string{"hello"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, apperr.ErrDimensionMismatch))
}

func TestOpenAIEngine_DimensionChange(t *testing.T) {
	srv, _ := openAIServer(t, 0)
	e := NewOpenAIEngine(Config{BaseURL: srv.URL + "/", APIKey: "test", Dimensions: 3, Timeout: time.Second}, quiet())
	_, err := e.Embed(context.Background(), []string{"hello"})
	assert.ErrorIs(t, err, apperr.ErrDimensionMismatch)
}
