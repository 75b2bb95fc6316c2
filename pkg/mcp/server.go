package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

const instructions = `Report definition tools for SQL Server Reporting Services.
Use detect_parameters to list the @parameters of a T-SQL query,
discover_schema to see the fields a query returns and
generate_rdl to write an .rdl file for it.`

// Server is the MCP endpoint of the report service. Tool calls are audited
// and a panicking tool handler is turned into an error result.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer creates the MCP server. Tools are registered separately through
// MCP() or RegisterTool.
func NewServer(name, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	audit := NewAuditLogger(logger)

	return &Server{
		mcp: server.NewMCPServer(
			name,
			version,
			server.WithToolCapabilities(true),
			server.WithInstructions(instructions),
			server.WithRecovery(),
			server.WithHooks(audit.Hooks()),
		),
		logger: logger.Named("mcp"),
	}
}

// MCP returns the underlying MCPServer for tool registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// NewStreamableHTTPServer returns a stateless HTTP transport for this server.
// Routing to /mcp is left to the caller's mux.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(s.mcp, server.WithStateLess(true))
}

// RegisterTool adds a tool and logs its name at debug level.
func (s *Server) RegisterTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcp.AddTool(tool, handler)
	s.logger.Debug("Registered MCP tool", zap.String("tool", tool.Name))
}
