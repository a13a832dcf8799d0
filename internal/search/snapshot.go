// Package search answers nearest-thought and tag-suggestion queries against
// the published index snapshot.
package search

import (
	"fmt"

	"github.com/starford/notemind/internal/models"
	"github.com/starford/notemind/internal/vectorindex"
)

// Snapshot is an immutable view of one committed index: the thought rows
// and the vector index built over them. Row i of the index is thoughts[i].
type Snapshot struct {
	passID   string
	model    string
	docs     int
	thoughts []models.Thought
	index    *vectorindex.Flat
}

// NewSnapshot builds a Snapshot from thoughts carrying embeddings of size
// dims. The thoughts slice must not be modified afterwards.
func NewSnapshot(passID, model string, docs, dims int, thoughts []models.Thought) (*Snapshot, error) {
	idx := vectorindex.NewFlat(dims)
	vecs := make([][]float32, len(thoughts))
	for i, t := range thoughts {
		vecs[i] = t.Embedding
	}
	if err := idx.Add(vecs...); err != nil {
		return nil, fmt.Errorf("search: snapshot: %w", err)
	}
	return &Snapshot{passID: passID, model: model, docs: docs, thoughts: thoughts, index: idx}, nil
}

// Len returns the number of rows.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.thoughts)
}

// Info describes a snapshot for status reporting.
type Info struct {
	PassID     string `json:"pass_id"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	Documents  int    `json:"documents"`
	Thoughts   int    `json:"thoughts"`
}

// Info returns the snapshot summary. A nil snapshot reports zero rows.
func (s *Snapshot) Info() Info {
	if s == nil {
		return Info{}
	}
	return Info{
		PassID:     s.passID,
		Model:      s.model,
		Dimensions: s.index.Dim(),
		Documents:  s.docs,
		Thoughts:   len(s.thoughts),
	}
}

func (s *Snapshot) neighbor(h vectorindex.Hit) models.Neighbor {
	t := s.thoughts[h.Row]
	return models.Neighbor{
		ThoughtText:  t.Text,
		Distance:     h.Distance,
		DocumentName: t.DocumentName,
		DocumentPath: t.DocumentPath,
		Granularity:  t.Granularity,
		Tags:         t.Tags,
		Row:          h.Row,
	}
}
