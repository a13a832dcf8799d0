// Package thought segments cleaned notes into atomic, searchable thoughts.
package thought

import (
	"context"
	"log/slog"
	"strings"

	"github.com/starford/notemind/internal/models"
)

// Summarizer condenses a note into two or three sentences.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// DefaultGranularities are used when none are configured.
var DefaultGranularities = []models.Granularity{models.GranularitySentence, models.GranularityParagraph}

// Extractor produces candidate thoughts from cleaned document text.
type Extractor struct {
	granularities []models.Granularity
	filter        Filter
	summarizer    Summarizer
	logger        *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithGranularities selects which levels are extracted.
func WithGranularities(g ...models.Granularity) Option {
	return func(e *Extractor) {
		if len(g) > 0 {
			e.granularities = g
		}
	}
}

// WithFilter overrides the letter and word thresholds.
func WithFilter(f Filter) Option {
	return func(e *Extractor) { e.filter = f }
}

// WithSummarizer enables summary granularity through s.
func WithSummarizer(s Summarizer) Option {
	return func(e *Extractor) { e.summarizer = s }
}

// WithLogger sets the logger used for summarizer failures.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

// NewExtractor creates an Extractor with sentence and paragraph granularity
// and the default filter unless overridden.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		granularities: DefaultGranularities,
		filter:        DefaultFilter(),
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the thoughts of cleaned text in granularity order. Text
// that already appeared at an earlier granularity is kept only once.
// Only Text and Granularity are set on the returned thoughts.
func (e *Extractor) Extract(ctx context.Context, cleaned string) []models.Thought {
	seen := make(map[string]struct{})
	var out []models.Thought
	for _, g := range e.granularities {
		for _, c := range e.candidates(ctx, g, cleaned) {
			c = CleanThought(c)
			if !e.filter.Keep(c) {
				continue
			}
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, models.Thought{Text: c, Granularity: g})
		}
	}
	return out
}

func (e *Extractor) candidates(ctx context.Context, g models.Granularity, cleaned string) []string {
	switch g {
	case models.GranularitySentence:
		return Sentences(cleaned)
	case models.GranularityParagraph:
		return Paragraphs(cleaned)
	case models.GranularitySummary:
		return e.summary(ctx, cleaned)
	default:
		return nil
	}
}

// summary asks the summarizer for a short digest. Any failure means "no
// summary" and never affects the other granularities.
func (e *Extractor) summary(ctx context.Context, cleaned string) []string {
	if e.summarizer == nil || strings.TrimSpace(cleaned) == "" {
		return nil
	}
	ans, err := e.summarizer.Summarize(ctx, cleaned)
	if err != nil {
		e.logger.Warn("thought: summarizer failed", slog.String("error", err.Error()))
		return nil
	}
	ans = strings.TrimSpace(ans)
	if i := strings.LastIndex(ans, "\n"); i >= 0 {
		ans = ans[i+1:]
	}
	var out []string
	for _, part := range strings.Split(ans, ".") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
