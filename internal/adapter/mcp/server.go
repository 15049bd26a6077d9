// Package mcp exposes the memory engine over the Model Context Protocol so
// external assistants can store and recall interaction records as tools.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/switchboardhq/switchboard/internal/domain/memory"
)

// MemoryAPI is the slice of the memory service the MCP tools depend on.
type MemoryAPI interface {
	Store(ctx context.Context, req *memory.StoreRequest) (*memory.Record, error)
	Recall(ctx context.Context, req *memory.RecallRequest) (*memory.RecallResult, error)
	Stats(ctx context.Context, agentID, userID string) (*memory.Stats, error)
}

// ServerConfig configures the MCP transport.
type ServerConfig struct {
	Addr    string
	Name    string
	Version string
	APIKey  string // empty disables auth
}

// ServerDeps holds the tool dependencies. Nil deps degrade to tool errors,
// never panics, so a partially wired server still answers initialize.
type ServerDeps struct {
	Memory MemoryAPI
}

// Server serves Switchboard memory tools over streamable HTTP.
type Server struct {
	cfg       ServerConfig
	deps      ServerDeps
	mcpServer *mcpserver.MCPServer
	srv       *http.Server
}

// NewServer creates an MCP server with all tools and resources registered.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version,
			mcpserver.WithToolCapabilities(true),
			mcpserver.WithResourceCapabilities(false, true),
		),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer exposes the underlying server for tests and custom transports.
func (s *Server) MCPServer() *mcpserver.MCPServer { return s.mcpServer }

// Start serves MCP over streamable HTTP on the configured address. Startup
// errors after bind are logged, not returned.
func (s *Server) Start() error {
	handler := AuthMiddleware(s.cfg.APIKey, mcpserver.NewStreamableHTTPServer(s.mcpServer))
	s.srv = &http.Server{Addr: s.cfg.Addr, Handler: handler}

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mcp server stopped", "error", err)
		}
	}()

	slog.Info("mcp server listening", "addr", s.cfg.Addr)
	return nil
}

// Stop shuts the transport down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// toolResultJSON wraps an already-marshaled JSON payload as a tool result.
func toolResultJSON(text string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(text)
}
