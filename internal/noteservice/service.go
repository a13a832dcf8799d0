// Package noteservice reads and writes notes in the corpus and queues a
// re-index pass after every change.
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/starford/notemind/internal/apperr"
	"github.com/starford/notemind/internal/checksum"
	"github.com/starford/notemind/internal/parser"
	"github.com/starford/notemind/internal/storage"
)

// NoteNameLayout names voice notes after the time they were saved.
const NoteNameLayout = "2006-01-02 15-04-05"

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	Checksum  string    `json:"checksum"`
	Tags      []string  `json:"tags"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NoteListItem is a lightweight item in a list response.
type NoteListItem struct {
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	Tags      []string  `json:"tags"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Trigger queues a re-index pass without waiting for it.
type Trigger interface {
	Trigger() bool
}

// NotifyFunc observes note changes; kind is "created", "updated" or "deleted".
type NotifyFunc func(kind, path string)

// Service coordinates corpus writes and re-index triggers.
type Service struct {
	store   storage.Provider
	trigger Trigger
	notify  NotifyFunc
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier registers fn for every note change.
func WithNotifier(fn NotifyFunc) Option {
	return func(s *Service) { s.notify = fn }
}

// NewService creates a new note service. trigger may be nil.
func NewService(store storage.Provider, trigger Trigger, opts ...Option) *Service {
	s := &Service{store: store, trigger: trigger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SaveVoiceNote composes text and tags into a note named after the current
// time and writes it to the corpus root.
func (s *Service) SaveVoiceNote(ctx context.Context, text string, tags []string) (*NoteDetail, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperr.ErrEmptyQuery
	}
	p := s.now().Format(NoteNameLayout) + ".md"
	return s.CreateNote(ctx, p, []byte(Compose(text, tags)))
}

// GetNote reads a note from storage.
func (s *Service) GetNote(_ context.Context, p string) (*NoteDetail, error) {
	data, err := s.store.Read(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return buildNoteDetail(p, data, time.Time{}), nil
}

// CreateNote writes a new note and queues a pass.
func (s *Service) CreateNote(_ context.Context, p string, content []byte) (*NoteDetail, error) {
	if !s.store.IsNote(p) {
		return nil, fmt.Errorf("noteservice: %s: %w", p, apperr.ErrInvalidPath)
	}
	if _, err := s.store.Read(p); err == nil {
		return nil, apperr.ErrAlreadyExists
	}
	if err := s.store.Write(p, content); err != nil {
		return nil, err
	}
	s.changed("created", p)
	return buildNoteDetail(p, content, s.now()), nil
}

// UpdateNote writes updated content with optimistic concurrency.
func (s *Service) UpdateNote(_ context.Context, p string, content []byte, ifMatch string) (*NoteDetail, error) {
	existing, err := s.store.Read(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	if ifMatch != "" && ifMatch != checksum.Sum(existing) {
		return nil, apperr.ErrConflict
	}
	if err := s.store.Write(p, content); err != nil {
		return nil, err
	}
	s.changed("updated", p)
	return buildNoteDetail(p, content, s.now()), nil
}

// DeleteNote removes a note from the corpus. Its thoughts leave the index
// with the next pass.
func (s *Service) DeleteNote(_ context.Context, p string) error {
	if err := s.store.Delete(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.ErrNotFound
		}
		return err
	}
	s.changed("deleted", p)
	return nil
}

// ListNotes returns notes newest first, optionally only those carrying tag.
func (s *Service) ListNotes(_ context.Context, limit, offset int, tag string) ([]NoteListItem, int, error) {
	metas, err := s.store.List("")
	if err != nil {
		return nil, 0, err
	}
	items := make([]NoteListItem, 0, len(metas))
	for _, m := range metas {
		data, err := s.store.Read(m.Path)
		if err != nil {
			continue
		}
		tags := nonNilSlice(parser.ExtractTags(string(data)))
		if tag != "" && !contains(tags, tag) {
			continue
		}
		items = append(items, NoteListItem{
			Path:      m.Path,
			Name:      noteName(m.Path),
			Size:      m.Size,
			Tags:      tags,
			UpdatedAt: m.UpdatedAt,
		})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].UpdatedAt.After(items[j].UpdatedAt) })

	total := len(items)
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items, total, nil
}

func (s *Service) changed(kind, p string) {
	if s.notify != nil {
		s.notify(kind, p)
	}
	if s.trigger != nil {
		s.trigger.Trigger()
	}
}

func buildNoteDetail(p string, data []byte, updated time.Time) *NoteDetail {
	return &NoteDetail{
		Path:      p,
		Name:      noteName(p),
		Content:   string(data),
		Checksum:  checksum.Sum(data),
		Tags:      nonNilSlice(parser.ExtractTags(string(data))),
		UpdatedAt: updated,
	}
}

func noteName(p string) string {
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}

func contains(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
