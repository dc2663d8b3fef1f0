// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the note store for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/beyondguo/webnote/internal/models"
	"github.com/beyondguo/webnote/internal/notestore"
	"github.com/beyondguo/webnote/internal/urlutil"
)

// Server wraps the MCP server with note tools.
type Server struct {
	mcp *server.MCPServer
	svc *notestore.Service
}

// New creates a new MCP server with all note tools registered.
func New(svc *notestore.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"WebNote",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("save_note",
		mcp.WithDescription("Save a note attached to a web page URL."),
		mcp.WithString("url", mcp.Required(), mcp.Description("URL of the page the note belongs to")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Highlighted page text the note refers to")),
		mcp.WithString("note", mcp.Description("Optional annotation for the highlighted text")),
		mcp.WithString("tags", mcp.Description("Optional space-separated tags (with or without leading #)")),
	), s.saveNote)

	s.mcp.AddTool(mcp.NewTool("get_notes",
		mcp.WithDescription("Get all notes saved for a specific page URL."),
		mcp.WithString("url", mcp.Required(), mcp.Description("URL of the page")),
	), s.getNotes)

	s.mcp.AddTool(mcp.NewTool("list_pages",
		mcp.WithDescription("List every page that has saved notes, with note counts."),
	), s.listPages)

	s.mcp.AddTool(mcp.NewTool("get_all_tags",
		mcp.WithDescription("List all tags across every saved note, with usage counts."),
	), s.getAllTags)

	s.mcp.AddTool(mcp.NewTool("read_page_markdown",
		mcp.WithDescription("Read the stored Markdown snapshot of a captured page."),
		mcp.WithString("url", mcp.Required(), mcp.Description("URL of the captured page")),
	), s.readPageMarkdown)

	// Resource: full Markdown export of every page's notes.
	s.mcp.AddResource(
		mcp.NewResource("webnote://export", "Notes Export",
			mcp.WithResourceDescription("All saved notes rendered as a single Markdown document."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readExportResource,
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

func (s *Server) saveNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	note := models.Note{Text: text}
	if annotation, aerr := req.RequireString("note"); aerr == nil {
		note.Note = annotation
	}
	if tags, terr := req.RequireString("tags"); terr == nil {
		note.Tags = urlutil.ParseTags(tags)
	}

	res, err := s.svc.SaveNote(ctx, models.PageInfo{URL: url}, note)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("saved note %s (file: %s)", res.Note.ID, res.FS)), nil
}

func (s *Server) getNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.svc.LoadNotes(ctx, url)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if rec == nil {
		return mcp.NewToolResultText("no notes for this url"), nil
	}
	out, _ := json.MarshalIndent(rec, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listPages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pages, err := s.svc.LoadAllNotes(ctx, false)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(pages) == 0 {
		return mcp.NewToolResultText("no saved notes"), nil
	}
	var lines []string
	for _, p := range pages {
		title := p.PageTitle
		if p.CustomTitle != "" {
			title = p.CustomTitle
		}
		lines = append(lines, fmt.Sprintf("%s | %s | %d notes", p.URL, title, len(p.Notes)))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) getAllTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tags, err := s.svc.GetAllTags(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(tags) == 0 {
		return mcp.NewToolResultText("no tags"), nil
	}
	var lines []string
	for _, t := range tags {
		lines = append(lines, fmt.Sprintf("#%s (%d)", t.Tag, t.Count))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) readPageMarkdown(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	md, err := s.svc.LoadPageMarkdown(ctx, url)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("no snapshot for: %s", url)), nil
	}
	return mcp.NewToolResultText(md), nil
}

func (s *Server) readExportResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	pages, err := s.svc.LoadAllNotes(ctx, false)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "webnote://export",
			MIMEType: "text/markdown",
			Text:     notestore.ExportAll(pages),
		},
	}, nil
}
