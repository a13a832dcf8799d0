package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/starford/notemind/internal/apperr"
	"github.com/starford/notemind/internal/checksum"
	"github.com/starford/notemind/internal/embedding"
	"github.com/starford/notemind/internal/models"
	"github.com/starford/notemind/internal/search"
)

// Stats summarizes one synchronization pass.
type Stats struct {
	PassID    string `json:"pass_id"`
	Cold      bool   `json:"cold"`
	Added     int    `json:"added"`
	Changed   int    `json:"changed"`
	Deleted   int    `json:"deleted"`
	Unchanged int    `json:"unchanged"`
	Thoughts  int    `json:"thoughts"`
	Embedded  int    `json:"embedded"`
	Reused    int    `json:"reused"`
	// Unreadable counts notes that could not be read; those indexed
	// before are carried over unchanged.
	Unreadable int           `json:"unreadable"`
	Duration   time.Duration `json:"duration"`
}

// Synchronizer reconciles the corpus with the persisted index. Passes must
// not overlap; Scheduler serializes them.
type Synchronizer struct {
	store     Store
	scanner   Scanner
	extractor Extractor
	engine    embedding.Engine
	publisher Publisher
	logger    *slog.Logger
}

// NewSynchronizer wires a Synchronizer. publisher may be nil.
func NewSynchronizer(store Store, scanner Scanner, extractor Extractor, engine embedding.Engine, publisher Publisher, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{
		store:     store,
		scanner:   scanner,
		extractor: extractor,
		engine:    engine,
		publisher: publisher,
		logger:    logger,
	}
}

// Restore publishes the persisted state without scanning the corpus. It
// reports false when there is no usable state.
func (s *Synchronizer) Restore(ctx context.Context) (bool, error) {
	prev, err := s.store.Load(ctx)
	if errors.Is(err, apperr.ErrCorruptState) {
		s.logger.Warn("sync: persisted state unusable", slog.String("error", err.Error()))
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if prev == nil {
		return false, nil
	}
	if err := s.checkEncoder(prev); err != nil {
		return false, err
	}
	if err := s.publish("restore", prev); err != nil {
		return false, err
	}
	s.logger.Info("sync: restored", slog.Int("documents", len(prev.Documents)), slog.Int("thoughts", prev.Rows()))
	return true, nil
}

// Sync runs one pass. Added and changed documents are extracted and
// embedded; thoughts of unchanged documents keep their rows and vectors;
// thoughts of changed and deleted documents are dropped. full discards the
// persisted state and re-embeds everything.
func (s *Synchronizer) Sync(ctx context.Context, full bool) (*Stats, error) {
	start := time.Now()
	stats := &Stats{PassID: uuid.NewString()}
	log := s.logger.With(slog.String("pass", stats.PassID))

	var prev *State
	if !full {
		var err error
		prev, err = s.store.Load(ctx)
		switch {
		case errors.Is(err, apperr.ErrCorruptState):
			log.Warn("sync: persisted state corrupt, rebuilding", slog.String("error", err.Error()))
			prev = nil
		case err != nil:
			return nil, fmt.Errorf("index: sync: %w", err)
		}
		if prev != nil {
			if err := s.checkEncoder(prev); err != nil {
				return nil, err
			}
		}
	}
	stats.Cold = prev == nil

	scan, err := s.scanner.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("index: sync: scan: %w", err)
	}
	docs := scan.Documents

	before := make(map[string]models.Document)
	if prev != nil {
		for _, d := range prev.Documents {
			before[d.Path] = d
		}
	}
	// A note that failed to read keeps its previous document and thoughts
	// until a pass can read it again.
	var carried int
	for _, p := range scan.Unreadable {
		if d, ok := before[p]; ok {
			docs = append(docs, d)
			carried++
		}
	}
	if carried > 0 {
		sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	}
	stats.Unreadable = len(scan.Unreadable)
	now := make(map[string]struct{}, len(docs))
	var dirty []models.Document
	for _, d := range docs {
		now[d.Path] = struct{}{}
		old, ok := before[d.Path]
		switch {
		case !ok:
			stats.Added++
			dirty = append(dirty, d)
		case old.RawText != d.RawText:
			stats.Changed++
			dirty = append(dirty, d)
		default:
			stats.Unchanged++
		}
	}
	for p := range before {
		if _, ok := now[p]; !ok {
			stats.Deleted++
		}
	}

	// Survivors keep their relative row order; vectors of every prior row
	// are reusable by exact text since the encoder is unchanged.
	var thoughts []models.Thought
	reuse := make(map[string][]float32)
	dims := s.engine.Dimensions()
	if prev != nil {
		if prev.Rows() > 0 {
			dims = prev.Dimensions
		}
		dirtySet := make(map[string]struct{}, len(dirty))
		for _, d := range dirty {
			dirtySet[d.Path] = struct{}{}
		}
		for _, t := range prev.Thoughts {
			reuse[checksum.Text(t.Text)] = t.Embedding
			if _, present := now[t.DocumentPath]; !present {
				continue
			}
			if _, changed := dirtySet[t.DocumentPath]; changed {
				continue
			}
			thoughts = append(thoughts, t)
		}
	}

	var fresh []models.Thought
	for _, d := range dirty {
		for _, t := range s.extractor.Extract(ctx, d.CleanedText) {
			t.DocumentName = d.Name
			t.DocumentPath = d.Path
			t.Tags = d.Tags
			fresh = append(fresh, t)
		}
	}

	var pending []string
	pendingIdx := make(map[string]int)
	for i := range fresh {
		key := checksum.Text(fresh[i].Text)
		if v, ok := reuse[key]; ok {
			fresh[i].Embedding = v
			stats.Reused++
			continue
		}
		if _, queued := pendingIdx[key]; !queued {
			pendingIdx[key] = len(pending)
			pending = append(pending, fresh[i].Text)
		}
	}
	if len(pending) > 0 {
		vecs, err := s.engine.Embed(ctx, pending)
		if err != nil {
			return nil, fmt.Errorf("index: sync: %w", err)
		}
		if len(vecs) != len(pending) {
			return nil, fmt.Errorf("index: sync: encoder returned %d vectors for %d texts", len(vecs), len(pending))
		}
		for i := range fresh {
			if fresh[i].Embedding == nil {
				fresh[i].Embedding = vecs[pendingIdx[checksum.Text(fresh[i].Text)]]
			}
		}
		stats.Embedded = len(pending)
		if dims == 0 {
			dims = len(vecs[0])
		}
	}
	thoughts = append(thoughts, fresh...)
	stats.Thoughts = len(thoughts)

	next := &State{
		Model:      s.engine.Name(),
		Dimensions: dims,
		Documents:  docs,
		Thoughts:   thoughts,
	}
	snap, err := s.snapshot(stats.PassID, next)
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, next); err != nil {
		return nil, err
	}
	if s.publisher != nil {
		s.publisher.Swap(snap)
	}

	stats.Duration = time.Since(start)
	log.Info("sync: pass complete",
		slog.Bool("cold", stats.Cold),
		slog.Int("added", stats.Added),
		slog.Int("changed", stats.Changed),
		slog.Int("deleted", stats.Deleted),
		slog.Int("unchanged", stats.Unchanged),
		slog.Int("thoughts", stats.Thoughts),
		slog.Int("embedded", stats.Embedded),
		slog.Int("reused", stats.Reused),
		slog.Int("unreadable", stats.Unreadable),
		slog.Duration("duration", stats.Duration),
	)
	return stats, nil
}

// checkEncoder refuses to mix vectors from a different encoder into the
// persisted rows.
func (s *Synchronizer) checkEncoder(prev *State) error {
	if prev.Rows() == 0 {
		return nil
	}
	if d := s.engine.Dimensions(); d > 0 && d != prev.Dimensions {
		return fmt.Errorf("index: persisted vectors have %d dimensions, encoder %s has %d; run a full rebuild: %w",
			prev.Dimensions, s.engine.Name(), d, apperr.ErrDimensionMismatch)
	}
	if prev.Model != s.engine.Name() {
		return fmt.Errorf("index: persisted vectors come from %q, encoder is %q; run a full rebuild: %w",
			prev.Model, s.engine.Name(), apperr.ErrDimensionMismatch)
	}
	return nil
}

// snapshot builds the index before anything is persisted, so a vector of
// the wrong size fails the pass without touching the store.
func (s *Synchronizer) snapshot(passID string, st *State) (*search.Snapshot, error) {
	snap, err := search.NewSnapshot(passID, st.Model, len(st.Documents), st.Dimensions, st.Thoughts)
	if err != nil {
		return nil, fmt.Errorf("index: sync: %w", err)
	}
	return snap, nil
}

func (s *Synchronizer) publish(passID string, st *State) error {
	snap, err := s.snapshot(passID, st)
	if err != nil {
		return err
	}
	if s.publisher != nil {
		s.publisher.Swap(snap)
	}
	return nil
}
