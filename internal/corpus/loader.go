// Package corpus turns the note files under the corpus root into Documents.
package corpus

import (
	"context"
	"log/slog"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/starford/notemind/internal/checksum"
	"github.com/starford/notemind/internal/models"
	"github.com/starford/notemind/internal/parser"
	"github.com/starford/notemind/internal/storage"
)

// DefaultMinLength is the minimum note length in characters.
const DefaultMinLength = 40

// Loader scans a storage.Provider into Documents.
type Loader struct {
	store     storage.Provider
	minLength int
	logger    *slog.Logger
}

// NewLoader creates a Loader. A non-positive minLength disables the filter.
func NewLoader(store storage.Provider, minLength int, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{store: store, minLength: minLength, logger: logger}
}

// Scan reads every note under the root. Files that cannot be read are
// logged, skipped and reported in Unreadable; files shorter than the
// minimum length are dropped before cleaning. Documents are ordered by path.
func (l *Loader) Scan(ctx context.Context) (*models.Scan, error) {
	metas, err := l.store.List("")
	if err != nil {
		return nil, err
	}

	res := &models.Scan{Documents: make([]models.Document, 0, len(metas))}
	for _, m := range metas {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := l.store.Read(m.Path)
		if err != nil {
			l.logger.Warn("corpus: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			res.Unreadable = append(res.Unreadable, m.Path)
			continue
		}
		if !utf8.Valid(data) {
			l.logger.Warn("corpus: not valid UTF-8", slog.String("path", m.Path))
			continue
		}
		raw := string(data)
		if utf8.RuneCountInString(raw) < l.minLength {
			l.logger.Debug("corpus: too short", slog.String("path", m.Path), slog.Int("length", utf8.RuneCountInString(raw)))
			continue
		}
		res.Documents = append(res.Documents, NewDocument(m.Path, raw))
	}
	return res, nil
}

// NewDocument builds a Document from its corpus path and raw text.
func NewDocument(p, raw string) models.Document {
	base := path.Base(p)
	return models.Document{
		Name:        strings.TrimSuffix(base, path.Ext(base)),
		Path:        p,
		RawText:     raw,
		CleanedText: parser.Clean(raw),
		Tags:        nonNil(parser.ExtractTags(raw)),
		Checksum:    checksum.Text(raw),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
