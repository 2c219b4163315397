package mcp

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/notes-rag/internal/rag"
	"github.com/bull/notes-rag/internal/storage"
)

// Pipeline is the part of *rag.Pipeline the tools use.
type Pipeline interface {
	Ingest(ctx context.Context, req rag.IngestRequest) (*storage.Item, error)
	Query(ctx context.Context, question string, topK int) (*rag.Answer, error)
	Stats(ctx context.Context) (*rag.Stats, error)
}

// Server wraps the MCP server with dependencies.
type Server struct {
	server    *mcp.Server
	stateless bool
}

// Config holds server dependencies.
type Config struct {
	Pipeline Pipeline
	Store    storage.Store
	// MaxRequestBytes caps note content. 0 disables the check.
	MaxRequestBytes int
	Version         string
	// Stateless serves every HTTP request without an MCP session. The tools
	// never call back into the client, so either mode works.
	Stateless bool
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	version := cfg.Version
	if version == "" {
		version = "v0.1.0"
	}
	impl := &mcp.Implementation{
		Name:    "notes-rag",
		Version: version,
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "save_note",
		Description: "Save a text note so it can be searched and used to answer later questions.",
	}, makeSaveNoteHandler(cfg.Pipeline, cfg.MaxRequestBytes))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "save_url",
		Description: "Fetch a web page (or a GitHub file) and save its readable text.",
	}, makeSaveURLHandler(cfg.Pipeline))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question from saved notes and pages. Returns the answer with numbered sources and a confidence score.",
	}, makeAskHandler(cfg.Pipeline))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_items",
		Description: "List saved notes and pages, newest first. Returns ids, titles and short previews.",
	}, makeListHandler(cfg.Store))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_item",
		Description: "Retrieve a saved note or page by id, including its full text.",
	}, makeGetHandler(cfg.Store))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "index_status",
		Description: "Report how many items and chunks are saved, how many are embedded, and which search mode is active.",
	}, makeStatusHandler(cfg.Pipeline))

	return &Server{server: server, stateless: cfg.Stateless}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}

// HTTPHandler serves the tools over Streamable HTTP. The API router mounts
// it for every method on /mcp next to the REST routes.
func (s *Server) HTTPHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, &mcp.StreamableHTTPOptions{Stateless: s.stateless})
}
