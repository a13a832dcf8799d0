// Package llm talks to a chat-completion model for note summaries.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Defaults for the summarizer.
const (
	DefaultModel    = "gpt-4o-mini"
	DefaultTimeout  = 60 * time.Second
	DefaultMaxChars = 20000
)

const summaryPrompt = `Summarize the following text in 2-3 sentences, formulate it very concisely. Text: %s Output only the concise summary, 2-3 sentences.`

// Config tunes a Summarizer.
type Config struct {
	Model    string
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	MaxChars int
}

// Summarizer asks a chat-completion model for a short digest of a note.
// It satisfies thought.Summarizer.
type Summarizer struct {
	client   openai.Client
	model    string
	timeout  time.Duration
	maxChars int
	logger   *slog.Logger
}

// NewSummarizer creates a Summarizer. BaseURL may point at any
// OpenAI-compatible server.
func NewSummarizer(cfg Config, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	opts := []option.RequestOption{
		option.WithMaxRetries(0),
		option.WithRequestTimeout(timeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Summarizer{
		client:   openai.NewClient(opts...),
		model:    model,
		timeout:  timeout,
		maxChars: maxChars,
		logger:   logger,
	}
}

// Summarize returns the model answer for text, trimmed. Rate-limited calls
// are retried with exponential backoff until the timeout budget runs out.
func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(fmt.Sprintf(summaryPrompt, s.truncate(text))),
		},
		Model:       openai.ChatModel(s.model),
		Temperature: openai.Float(0),
	}

	var answer string
	operation := func() error {
		resp, err := s.client.Chat.Completions.New(ctx, params)
		if err != nil {
			if isRateLimit(err) {
				s.logger.Warn("llm: rate limited, retrying", slog.String("model", s.model))
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(errors.New("empty completion"))
		}
		answer = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 2 * s.timeout
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", fmt.Errorf("llm: summarize: %w", err)
	}
	return answer, nil
}

// truncate cuts text to maxChars runes.
func (s *Summarizer) truncate(text string) string {
	if utf8.RuneCountInString(text) <= s.maxChars {
		return text
	}
	s.logger.Debug("llm: truncating input", slog.Int("max_chars", s.maxChars))
	return string([]rune(text)[:s.maxChars])
}

func isRateLimit(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}
