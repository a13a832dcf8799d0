// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes notemind tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/notemind/internal/apperr"
	"github.com/starford/notemind/internal/index"
	"github.com/starford/notemind/internal/models"
	"github.com/starford/notemind/internal/noteservice"
)

const contractURI = "notemind://note-format"

// Notes is the note storage surface used by the tools.
type Notes interface {
	SaveVoiceNote(ctx context.Context, text string, tags []string) (*noteservice.NoteDetail, error)
	GetNote(ctx context.Context, path string) (*noteservice.NoteDetail, error)
	ListNotes(ctx context.Context, limit, offset int, tag string) ([]noteservice.NoteListItem, int, error)
}

// Searcher answers semantic queries.
type Searcher interface {
	NearestPage(ctx context.Context, text string, k, offset, limit int) ([]models.Neighbor, int, error)
	SuggestTags(ctx context.Context, text string) ([]string, error)
}

// Reindexer runs synchronization passes.
type Reindexer interface {
	Reindex(ctx context.Context, full bool) (*index.Stats, error)
}

// Server wraps the MCP server with notemind tools.
type Server struct {
	mcp       *server.MCPServer
	notes     Notes
	searcher  Searcher
	reindexer Reindexer
}

// New creates a new MCP server with all notemind tools registered.
func New(notes Notes, searcher Searcher, reindexer Reindexer) *Server {
	s := &Server{notes: notes, searcher: searcher, reindexer: reindexer}

	s.mcp = server.NewMCPServer(
		"notemind",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("nearest_thoughts",
		mcp.WithDescription("Find the thoughts (sentences and paragraphs of saved notes) closest in meaning to a text. "+
			"Results are ordered by distance, closest first; page through them with offset."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Text to find related thoughts for")),
		mcp.WithNumber("k", mcp.Description("Neighbours per sentence of the text (default 5)")),
		mcp.WithNumber("offset", mcp.Description("Skip this many results (default 0)")),
		mcp.WithNumber("limit", mcp.Description("Page size (default 5)")),
	), s.nearestThoughts)

	s.mcp.AddTool(mcp.NewTool("suggest_tags",
		mcp.WithDescription("Suggest up to four tags for a text, ranked by how often they appear on related notes."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Text of the note being composed")),
	), s.suggestTags)

	s.mcp.AddTool(mcp.NewTool("save_note",
		mcp.WithDescription("Save a transcribed voice message as a new tagged note and queue re-indexing. "+
			"Read the format via get_note_contract or the "+contractURI+" resource."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Transcribed text")),
		mcp.WithString("tags", mcp.Description("Comma-separated tags without '#'")),
	), s.saveNote)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the full content of a note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note (e.g. folder/note.md)")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List note paths, newest first, optionally only those with a tag."),
		mcp.WithString("tag", mcp.Description("Optional tag filter without '#'")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("reindex",
		mcp.WithDescription("Synchronize the thought index with the notes on disk and report what changed."),
		mcp.WithBoolean("full", mcp.Description("Discard the persisted index and re-embed every note")),
	), s.reindex)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns the note format and how tags and thoughts are derived from it."),
	), s.getNoteContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Note Format",
			mcp.WithResourceDescription("How notes are written and indexed."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) nearestThoughts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	k := req.GetInt("k", 5)
	offset := req.GetInt("offset", 0)
	limit := req.GetInt("limit", 5)

	results, total, err := s.searcher.NearestPage(ctx, text, k, offset, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"results": results, "total": total, "offset": offset})
}

func (s *Server) suggestTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tags, err := s.searcher.SuggestTags(ctx, text)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(tags) == 0 {
		return mcp.NewToolResultText("no suggestions"), nil
	}
	return mcp.NewToolResultText(strings.Join(tags, "\n")), nil
}

func (s *Server) saveNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var tags []string
	for _, t := range strings.Split(req.GetString("tags", ""), ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}

	note, err := s.notes.SaveVoiceNote(ctx, text, tags)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", note.Path)), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.notes.GetNote(ctx, path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(note.Content), nil
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, _, err := s.notes.ListNotes(ctx, 0, 0, req.GetString("tag", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("no notes found"), nil
	}
	paths := make([]string, len(items))
	for i, it := range items {
		paths[i] = it.Path
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) reindex(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.reindexer.Reindex(ctx, req.GetBool("full", false))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(stats)
}

func (s *Server) getNoteContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}
