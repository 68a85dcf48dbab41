// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the document store for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/wolog/internal/search"
	"github.com/starford/wolog/internal/store"
)

// Server wraps the MCP server with document tools.
type Server struct {
	mcp    *server.MCPServer
	store  store.Store
	engine *search.Engine
}

// New creates an MCP server with all tools registered.
func New(st store.Store, engine *search.Engine) *Server {
	s := &Server{store: st, engine: engine}

	s.mcp = server.NewMCPServer(
		"Wolog",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_posts",
		mcp.WithDescription("Search the document metadata index. The query string uses the "+
			"same URL parameters as the site's /search endpoint: search_path, exclude_path, "+
			"tag, post_type, created_after, created_before, updated_after, updated_before, "+
			"title_filter, sort_type, limit, ignore_hidden."),
		mcp.WithString("query", mcp.Description("URL query string, e.g. tag=go&sort_type=CreateDesc&limit=10")),
	), s.searchPosts)

	s.mcp.AddTool(mcp.NewTool("read_post",
		mcp.WithDescription("Read the stored metadata and document tree of a post."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Logical post path (e.g. topics/page)")),
	), s.readPost)

	s.mcp.AddTool(mcp.NewTool("tag_counts",
		mcp.WithDescription("List all tags with the number of visible posts carrying each."),
	), s.tagCounts)

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

func (s *Server) searchPosts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw := req.GetString("query", "")
	values, err := url.ParseQuery(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	q, err := search.ParseQuery(values)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.engine.Search(ctx, q)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readPost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.store.Get(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	out, _ := json.MarshalIndent(map[string]any{
		"path": rec.Path,
		"meta": rec.Meta,
		"doc":  rec.Doc,
	}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) tagCounts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tags, err := s.store.TagCounts(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(tags, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}
