// Package testutil provides shared test helpers for setting up corpora,
// databases and a fully wired index.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/notemind/internal/corpus"
	"github.com/starford/notemind/internal/embedding"
	"github.com/starford/notemind/internal/index"
	"github.com/starford/notemind/internal/search"
	"github.com/starford/notemind/internal/storage"
	"github.com/starford/notemind/internal/thought"
)

// QuietLogger discards everything.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "notemind-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestCorpus creates a temporary corpus directory holding files (relative
// slash paths to contents) and a storage.Provider over it.
func TestCorpus(t *testing.T, files map[string]string) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		WriteNote(t, dir, name, content)
	}
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// WriteNote writes one file below dir, creating parent directories.
func WriteNote(t *testing.T, dir, name, content string) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// Stack is a fully wired index over a temporary corpus using the local
// encoder.
type Stack struct {
	Dir       string
	Store     *storage.FS
	DB        *index.DB
	Engine    embedding.Engine
	Search    *search.Service
	Sync      *index.Synchronizer
	Scheduler *index.Scheduler
}

// NewStack builds a Stack over files. Periodic passes are disabled.
func NewStack(t *testing.T, files map[string]string) *Stack {
	t.Helper()
	logger := QuietLogger()
	dir, store := TestCorpus(t, files)
	db := TestDB(t)
	engine := embedding.NewPooled("", embedding.NewTokenizer(0), embedding.NewHashEncoder(0), 0)
	svc := search.NewService(engine, thought.NewExtractor(thought.WithLogger(logger)))
	syncer := index.NewSynchronizer(db, corpus.NewLoader(store, corpus.DefaultMinLength, logger),
		thought.NewExtractor(thought.WithLogger(logger)), engine, svc, logger)
	sched, err := index.NewScheduler(syncer, logger, index.WithInterval(0))
	if err != nil {
		t.Fatal(err)
	}
	return &Stack{
		Dir:       dir,
		Store:     store,
		DB:        db,
		Engine:    engine,
		Search:    svc,
		Sync:      syncer,
		Scheduler: sched,
	}
}
