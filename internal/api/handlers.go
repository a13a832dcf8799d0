package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/notemind/internal/apperr"
	"github.com/starford/notemind/internal/index"
	"github.com/starford/notemind/internal/models"
	"github.com/starford/notemind/internal/noteservice"
	"github.com/starford/notemind/internal/search"
)

// Query defaults.
const (
	DefaultK     = 5
	DefaultLimit = 5
	MaxK         = 100
)

// NoteService is the note storage surface used by the handlers.
type NoteService interface {
	SaveVoiceNote(ctx context.Context, text string, tags []string) (*noteservice.NoteDetail, error)
	GetNote(ctx context.Context, path string) (*noteservice.NoteDetail, error)
	CreateNote(ctx context.Context, path string, content []byte) (*noteservice.NoteDetail, error)
	UpdateNote(ctx context.Context, path string, content []byte, ifMatch string) (*noteservice.NoteDetail, error)
	DeleteNote(ctx context.Context, path string) error
	ListNotes(ctx context.Context, limit, offset int, tag string) ([]noteservice.NoteListItem, int, error)
}

// Searcher answers semantic queries.
type Searcher interface {
	NearestPage(ctx context.Context, text string, k, offset, limit int) ([]models.Neighbor, int, error)
	SuggestTags(ctx context.Context, text string) ([]string, error)
	Snapshot() *search.Snapshot
}

// Reindexer runs or queues synchronization passes.
type Reindexer interface {
	Reindex(ctx context.Context, full bool) (*index.Stats, error)
	Trigger() bool
}

// Handler holds API route handlers.
type Handler struct {
	notes     NoteService
	searcher  Searcher
	reindexer Reindexer
}

// NewHandler creates a new Handler.
func NewHandler(notes NoteService, searcher Searcher, reindexer Reindexer) *Handler {
	return &Handler{notes: notes, searcher: searcher, reindexer: reindexer}
}

// notePath extracts the note path from the URL (everything after /api/notes/).
// Supports encoded slashes from OpenAPI clients (e.g. topics%2Fnote.md).
func notePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return v
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List notes with optional pagination and tag filter
//	@Tags			notes
//	@Produce		json
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Param			tag		query		string	false	"Filter by tag"
//	@Success		200		{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	items, total, err := h.notes.ListNotes(r.Context(), queryInt(r, "limit", 0), queryInt(r, "offset", 0), r.URL.Query().Get("tag"))
	if err != nil {
		slog.Error("list notes failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: items, Total: total})
}

// GetNote handles GET /api/notes/*.
//
//	@Summary		Get a single note by path
//	@Tags			notes
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	NoteDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	note, err := h.notes.GetNote(r.Context(), path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get note failed", slog.String("path", path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Create a new note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNoteRequest	true	"Note to create"
//	@Success		201		{object}	NoteDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req CreateNoteRequest
	if err := decodeJSON(w, r, 10<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" || req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path and content are required"))
		return
	}
	note, err := h.notes.CreateNote(r.Context(), req.Path, []byte(req.Content))
	h.writeCreated(w, req.Path, note, err)
}

// SaveVoiceNote handles POST /api/notes/voice.
//
//	@Summary		Save a transcribed voice message as a tagged note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		VoiceNoteRequest	true	"Transcribed text and chosen tags"
//	@Success		201		{object}	NoteDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/voice [post]
func (h *Handler) SaveVoiceNote(w http.ResponseWriter, r *http.Request) {
	var req VoiceNoteRequest
	if err := decodeJSON(w, r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	note, err := h.notes.SaveVoiceNote(r.Context(), req.Text, req.Tags)
	if errors.Is(err, apperr.ErrEmptyQuery) {
		writeJSON(w, http.StatusBadRequest, errorBody("text is required"))
		return
	}
	h.writeCreated(w, "voice", note, err)
}

func (h *Handler) writeCreated(w http.ResponseWriter, path string, note *NoteDetail, err error) {
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrAlreadyExists):
			writeJSON(w, http.StatusConflict, errorBody("note already exists"))
		case errors.Is(err, apperr.ErrInvalidPath):
			writeJSON(w, http.StatusBadRequest, errorBody("path must name a note file"))
		default:
			slog.Error("create note failed", slog.String("path", path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// UpdateNote handles PUT /api/notes/*.
//
//	@Summary		Update a note with optimistic concurrency
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			path	path		string				true	"Note path"
//	@Param			If-Match	header	string				false	"SHA-256 checksum for optimistic concurrency"
//	@Param			body	body		UpdateNoteRequest	true	"Updated content"
//	@Success		200		{object}	NoteDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [put]
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}

	var req UpdateNoteRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
		return
	}

	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	note, err := h.notes.UpdateNote(r.Context(), path, []byte(req.Content), ifMatch)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		case errors.Is(err, apperr.ErrConflict):
			writeJSON(w, http.StatusConflict, errorBody("checksum mismatch"))
		default:
			slog.Error("update note failed", slog.String("path", path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// DeleteNote handles DELETE /api/notes/*.
//
//	@Summary		Delete a note
//	@Tags			notes
//	@Param			path	path	string	true	"Note path"
//	@Success		204		"Note deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.notes.DeleteNote(r.Context(), path); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
			return
		}
		slog.Error("delete note failed", slog.String("path", path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Nearest handles GET /api/nearest.
//
//	@Summary		Nearest thoughts for a text, paginated
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Query text"
//	@Param			k		query		int		false	"Neighbours per query sentence"
//	@Param			offset	query		int		false	"Page offset"
//	@Param			limit	query		int		false	"Page size"
//	@Success		200		{object}	NearestResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/nearest [get]
func (h *Handler) Nearest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	k := min(max(queryInt(r, "k", DefaultK), 1), MaxK)
	offset := max(queryInt(r, "offset", 0), 0)
	limit := queryInt(r, "limit", DefaultLimit)

	results, total, err := h.searcher.NearestPage(r.Context(), q, k, offset, limit)
	if err != nil {
		slog.Error("nearest failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, NearestResponse{Results: results, Total: total, Offset: offset})
}

// SuggestTags handles GET /api/suggest-tags.
//
//	@Summary		Suggest tags for a text from its nearest thoughts
//	@Tags			search
//	@Produce		json
//	@Param			q	query		string	true	"Text of the note being composed"
//	@Success		200	{object}	SuggestTagsResponse
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/suggest-tags [get]
func (h *Handler) SuggestTags(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	tags, err := h.searcher.SuggestTags(r.Context(), q)
	if err != nil {
		slog.Error("suggest tags failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, SuggestTagsResponse{Tags: tags})
}

// IndexInfo handles GET /api/index.
//
//	@Summary		Describe the published index snapshot
//	@Tags			index
//	@Produce		json
//	@Success		200	{object}	search.Info
//	@Security		BearerAuth
//	@Router			/index [get]
func (h *Handler) IndexInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.searcher.Snapshot().Info())
}

// Reindex handles POST /api/reindex.
//
//	@Summary		Run or queue a synchronization pass
//	@Tags			index
//	@Produce		json
//	@Param			wait	query		bool	false	"Run the pass and wait for it"
//	@Param			full	query		bool	false	"Discard persisted state and re-embed everything (implies wait)"
//	@Success		200		{object}	ReindexResponse
//	@Success		202		{object}	ReindexResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/reindex [post]
func (h *Handler) Reindex(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	full, _ := strconv.ParseBool(q.Get("full"))
	wait, _ := strconv.ParseBool(q.Get("wait"))

	if !wait && !full {
		writeJSON(w, http.StatusAccepted, ReindexResponse{Queued: h.reindexer.Trigger()})
		return
	}
	stats, err := h.reindexer.Reindex(r.Context(), full)
	if err != nil {
		if errors.Is(err, apperr.ErrDimensionMismatch) {
			writeJSON(w, http.StatusConflict, errorBody(err.Error()))
			return
		}
		slog.Error("reindex failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, ReindexResponse{Stats: stats})
}
