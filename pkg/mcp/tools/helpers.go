package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// requireQuery returns the "sql" argument. A missing argument is a protocol
// error; a blank one is reported to the caller as invalid_parameters.
func requireQuery(req mcp.CallToolRequest) (string, *mcp.CallToolResult, error) {
	query, err := req.RequireString("sql")
	if err != nil {
		return "", nil, err
	}
	if strings.TrimSpace(query) == "" {
		return "", NewErrorResult("invalid_parameters", "parameter 'sql' cannot be empty"), nil
	}
	return query, nil, nil
}

// optionalArg returns a trimmed string argument, or "" when absent.
func optionalArg(req mcp.CallToolRequest, name string) string {
	return strings.TrimSpace(req.GetString(name, ""))
}

// jsonResult marshals v as the text content of a tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
