package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/starford/notemind/internal/apperr"
	"github.com/starford/notemind/internal/embedding"
	"github.com/starford/notemind/internal/models"
	"github.com/starford/notemind/internal/parser"
	"github.com/starford/notemind/internal/thought"
)

// Suggestion defaults.
const (
	DefaultNeighbours = 10
	DefaultTagLimit   = 4
)

// DefaultStopTags are never suggested.
var DefaultStopTags = []string{"", "voice"}

// Service runs queries against the current Snapshot. Every call loads the
// snapshot once and uses it throughout, so a concurrent swap is never
// observed halfway.
type Service struct {
	engine     embedding.Engine
	extractor  *thought.Extractor
	neighbours int
	tagLimit   int
	stop       map[string]struct{}

	current atomic.Pointer[Snapshot]
}

// Option configures a Service.
type Option func(*Service)

// WithNeighbours sets how many neighbours SuggestTags inspects.
func WithNeighbours(k int) Option {
	return func(s *Service) {
		if k > 0 {
			s.neighbours = k
		}
	}
}

// WithTagLimit sets the maximum number of suggested tags.
func WithTagLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.tagLimit = n
		}
	}
}

// WithStopTags replaces the stop set.
func WithStopTags(tags []string) Option {
	return func(s *Service) {
		s.stop = toSet(tags)
	}
}

// NewService creates a Service. The extractor splits queries into units;
// it should not carry a summarizer.
func NewService(engine embedding.Engine, extractor *thought.Extractor, opts ...Option) *Service {
	s := &Service{
		engine:     engine,
		extractor:  extractor,
		neighbours: DefaultNeighbours,
		tagLimit:   DefaultTagLimit,
		stop:       toSet(DefaultStopTags),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Swap publishes snap to subsequent queries.
func (s *Service) Swap(snap *Snapshot) {
	s.current.Store(snap)
}

// Snapshot returns the currently published snapshot, possibly nil.
func (s *Service) Snapshot() *Snapshot {
	return s.current.Load()
}

// Units splits a query the way documents are split. When nothing survives
// extraction the whole cleaned text is the only unit.
func (s *Service) Units(ctx context.Context, text string) []string {
	cleaned := parser.Clean(text)
	var units []string
	for _, t := range s.extractor.Extract(ctx, cleaned) {
		units = append(units, t.Text)
	}
	if len(units) > 0 {
		return units
	}
	if whole := strings.TrimSpace(cleaned); whole != "" {
		return []string{whole}
	}
	return []string{strings.TrimSpace(text)}
}

// Nearest returns the k nearest thoughts of every query unit, merged and
// sorted by ascending distance. A thought matched by several units appears
// once per unit. An empty index yields an empty list.
func (s *Service) Nearest(ctx context.Context, text string, k int) ([]models.Neighbor, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperr.ErrEmptyQuery
	}
	snap := s.current.Load()
	if snap.Len() == 0 || k <= 0 {
		return []models.Neighbor{}, nil
	}

	units := s.Units(ctx, text)
	vecs, err := s.engine.Embed(ctx, units)
	if err != nil {
		return nil, fmt.Errorf("search: embed query: %w", err)
	}
	results, err := snap.index.Search(vecs, k)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	out := make([]models.Neighbor, 0, len(units)*k)
	for _, hits := range results {
		for _, h := range hits {
			out = append(out, snap.neighbor(h))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Row < out[j].Row
	})
	return out, nil
}

// NearestPage returns Nearest(text, k)[offset:offset+limit], clamped.
func (s *Service) NearestPage(ctx context.Context, text string, k, offset, limit int) ([]models.Neighbor, int, error) {
	all, err := s.Nearest(ctx, text, k)
	if err != nil {
		return nil, 0, err
	}
	total := len(all)
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

// SuggestTags ranks the tags of the nearest thoughts by frequency, first
// seen wins ties, and returns at most the configured limit. Stop tags are
// never returned.
func (s *Service) SuggestTags(ctx context.Context, text string) ([]string, error) {
	neighbours, err := s.Nearest(ctx, text, s.neighbours)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	var order []string
	for _, n := range neighbours {
		for _, tag := range n.Tags {
			if _, stop := s.stop[tag]; stop {
				continue
			}
			if _, seen := counts[tag]; !seen {
				order = append(order, tag)
			}
			counts[tag]++
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > s.tagLimit {
		order = order[:s.tagLimit]
	}
	if order == nil {
		order = []string{}
	}
	return order, nil
}

func toSet(tags []string) map[string]struct{} {
	m := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		m[t] = struct{}{}
	}
	return m
}
