package tools

import (
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/ekaya-reports/pkg/apperrors"
)

// ErrorResponse represents a structured error in tool results.
// It is returned as a tool result rather than a protocol error so the
// calling agent sees the code and message and can correct its input.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use this for errors the caller can act on (bad SQL, wrong output path).
// System failures should still be returned as Go errors.
//
// Example:
//
//	if sql == "" {
//	    return NewErrorResult("invalid_parameters", "parameter 'sql' cannot be empty"), nil
//	}
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// NewReportErrorResult converts a report pipeline error into a structured
// tool result. It returns nil for errors that are not the caller's to fix.
func NewReportErrorResult(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		return NewErrorResult("validation_error", apperrors.Summarize(err))
	case errors.Is(err, apperrors.ErrDiscoveryFailed):
		var de *apperrors.DiscoveryError
		if errors.As(err, &de) {
			return NewErrorResultWithDetails("discovery_failed", "schema discovery failed",
				map[string]any{"tiers_attempted": de.Tiers()})
		}
		return NewErrorResult("discovery_failed", apperrors.Summarize(err))
	case errors.Is(err, apperrors.ErrWriteFailed):
		return NewErrorResult("write_failed", apperrors.Summarize(err))
	}
	return nil
}
