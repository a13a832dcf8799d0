package api

import (
	"github.com/starford/notemind/internal/index"
	"github.com/starford/notemind/internal/models"
	"github.com/starford/notemind/internal/noteservice"
)

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Path    string `json:"path" example:"notes/hello.md" validate:"required"`
	Content string `json:"content" example:"Hello world #greeting" validate:"required"`
}

// UpdateNoteRequest is the request body for updating a note.
type UpdateNoteRequest struct {
	Content string `json:"content" example:"Updated content" validate:"required"`
}

// VoiceNoteRequest is the request body for saving a transcribed voice note.
type VoiceNoteRequest struct {
	Text string   `json:"text" example:"Идея сделать бота для заметок" validate:"required"`
	Tags []string `json:"tags" example:"books,evening"`
}

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// NoteListItem is a lightweight item in a list response (aliased from the domain layer).
type NoteListItem = noteservice.NoteListItem

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []NoteListItem `json:"notes" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// NearestResponse wraps one page of nearest thoughts.
type NearestResponse struct {
	Results []models.Neighbor `json:"results" validate:"required"`
	Total   int               `json:"total" example:"10" validate:"required"`
	Offset  int               `json:"offset" example:"0"`
}

// SuggestTagsResponse wraps suggested tags.
type SuggestTagsResponse struct {
	Tags []string `json:"tags" example:"reading,books" validate:"required"`
}

// ReindexResponse reports how a re-index request was handled.
type ReindexResponse struct {
	Queued bool         `json:"queued"`
	Stats  *index.Stats `json:"stats,omitempty"`
}
