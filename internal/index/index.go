package index

import (
	"context"

	"github.com/starford/notemind/internal/models"
	"github.com/starford/notemind/internal/search"
)

// Store persists index state between passes.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with fakes.
type Store interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, st *State) error
}

// Scanner lists the current corpus.
type Scanner interface {
	Scan(ctx context.Context) (*models.Scan, error)
}

// Extractor splits cleaned document text into thoughts.
type Extractor interface {
	Extract(ctx context.Context, cleaned string) []models.Thought
}

// Publisher receives every committed snapshot.
type Publisher interface {
	Swap(snap *search.Snapshot)
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)
