package llm

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// chatServer answers chat completions with answer, after failFirst 429s.
func chatServer(t *testing.T, answer string, failFirst int32) (*httptest.Server, *atomic.Int32, *atomic.Value) {
	t.Helper()
	var hits atomic.Int32
	var prompt atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if n <= failFirst {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
			return
		}
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) > 0 {
			prompt.Store(req.Messages[0].Content)
		}
		resp := map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "test",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": answer},
			}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits, &prompt
}

func TestSummarize(t *testing.T) {
	srv, hits, prompt := chatServer(t, "  Reading books in the evening.  ", 0)
	s := NewSummarizer(Config{BaseURL: srv.URL + "/", APIKey: "test", Timeout: 5 * time.Second}, quiet())

	got, err := s.Summarize(context.Background(), "I love reading books in the evening.")
	require.NoError(t, err)
	assert.Equal(t, "Reading books in the evening.", got)
	assert.Equal(t, int32(1), hits.Load())
	assert.Contains(t, prompt.Load().(string), "I love reading books in the evening.")
}

func TestSummarize_RetriesRateLimit(t *testing.T) {
	srv, hits, _ := chatServer(t, "ok", 1)
	s := NewSummarizer(Config{BaseURL: srv.URL + "/", APIKey: "test", Timeout: 5 * time.Second}, quiet())

	got, err := s.Summarize(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, int32(2), hits.Load())
}

func TestSummarize_FailsOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
	}))
	defer srv.Close()

	s := NewSummarizer(Config{BaseURL: srv.URL + "/", APIKey: "test", Timeout: time.Second}, quiet())
	_, err := s.Summarize(context.Background(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm: summarize")
}

func TestSummarize_TruncatesInput(t *testing.T) {
	srv, _, prompt := chatServer(t, "ok", 0)
	s := NewSummarizer(Config{BaseURL: srv.URL + "/", APIKey: "test", MaxChars: 5, Timeout: time.Second}, quiet())

	_, err := s.Summarize(context.Background(), "абвгдежзик")
	require.NoError(t, err)
	p := prompt.Load().(string)
	assert.True(t, strings.Contains(p, "абвгд"))
	assert.False(t, strings.Contains(p, "абвгде"))
}
