// Package storage defines the corpus file-system abstraction.
package storage

import "github.com/starford/notemind/internal/models"

// Provider is the interface for corpus file operations.
// All paths are slash-separated and relative to the corpus root.
type Provider interface {
	// List returns metadata for every note file under dir.
	List(dir string) ([]models.FileMetadata, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Root returns the absolute corpus root.
	Root() string
	// IsNote reports whether name carries a recognised note extension.
	IsNote(name string) bool
}
