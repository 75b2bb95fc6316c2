package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// HealthToolDeps describes what the health tool reports.
type HealthToolDeps struct {
	Version string

	// Configured backends. A false value means the matching operations run
	// in their fallback mode (demo catalog, rule-based parsing, no publish).
	SQLServer bool
	LLM       bool
	SSRS      bool
}

type healthBackends struct {
	SQLServer bool `json:"sql_server"`
	LLM       bool `json:"llm"`
	SSRS      bool `json:"ssrs"`
}

type healthResult struct {
	Status   string         `json:"status"`
	Version  string         `json:"version"`
	Backends healthBackends `json:"backends"`
}

// RegisterHealthTool adds the health tool to the MCP server.
func RegisterHealthTool(s *server.MCPServer, deps HealthToolDeps) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns report service status, version and which backends (SQL Server, LLM, report server) are configured"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	result := healthResult{
		Status:  "ok",
		Version: deps.Version,
		Backends: healthBackends{
			SQLServer: deps.SQLServer,
			LLM:       deps.LLM,
			SSRS:      deps.SSRS,
		},
	}
	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(result)
	})
}
