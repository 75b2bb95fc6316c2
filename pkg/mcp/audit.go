package mcp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

const (
	// maxSQLSize caps SQL text copied into an audit entry.
	maxSQLSize = 10240

	maxPreviewSize  = 200
	truncatedMarker = "...[truncated]"
)

// AuditLogger writes one entry per MCP tool call: the tool, its sanitized
// arguments, a hash of the SQL it was given, the outcome and the duration.
type AuditLogger struct {
	logger  *zap.Logger
	started sync.Map // request ID -> time.Time
}

// NewAuditLogger creates an AuditLogger. A nil logger discards entries.
func NewAuditLogger(logger *zap.Logger) *AuditLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditLogger{logger: logger.Named("mcp-audit")}
}

// Hooks returns the mcp-go hooks that feed the audit log.
func (a *AuditLogger) Hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(func(_ context.Context, id any, _ *mcplib.CallToolRequest) {
		a.started.Store(id, time.Now())
	})
	hooks.AddAfterCallTool(func(_ context.Context, id any, req *mcplib.CallToolRequest, result *mcplib.CallToolResult) {
		fields := append(a.callFields(id, req), zap.Any("result", summarizeResult(result)))
		if result != nil && result.IsError {
			a.logger.Warn("MCP tool call returned error result", fields...)
			return
		}
		a.logger.Info("MCP tool call", fields...)
	})
	hooks.AddOnError(func(_ context.Context, id any, method mcplib.MCPMethod, message any, err error) {
		req, ok := message.(*mcplib.CallToolRequest)
		if method != mcplib.MethodToolsCall || !ok {
			return
		}
		a.logger.Error("MCP tool call failed", append(a.callFields(id, req), zap.Error(err))...)
	})
	return hooks
}

func (a *AuditLogger) callFields(id any, req *mcplib.CallToolRequest) []zap.Field {
	start := time.Now()
	if v, ok := a.started.LoadAndDelete(id); ok {
		start = v.(time.Time)
	}

	fields := []zap.Field{
		zap.String("tool", req.Params.Name),
		zap.Any("params", sanitizeParams(req.Params.Arguments)),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	}
	if args, ok := req.Params.Arguments.(map[string]any); ok {
		if query, ok := args["sql"].(string); ok {
			// The same query sent twice hashes the same, even when truncated above.
			fields = append(fields, zap.String("sql_hash", hashSensitiveValue(query)))
		}
	}
	return fields
}

// sqlLiteralPattern matches T-SQL string literals, including N'...' and
// doubled quotes.
var sqlLiteralPattern = regexp.MustCompile(`'(?:[^']|'')*'`)

var sensitiveKeyParts = []string{"password", "secret", "token", "api_key", "apikey", "credential"}

// sanitizeParams returns a copy of the tool arguments safe to log. SQL text
// is truncated and its string literals masked, values under secret-looking
// keys are replaced by a hash prefix, nested objects are handled the same way.
func sanitizeParams(args any) map[string]any {
	params, ok := args.(map[string]any)
	if !ok || len(params) == 0 {
		return nil
	}

	out := make(map[string]any, len(params))
	for key, value := range params {
		lower := strings.ToLower(key)
		switch v := value.(type) {
		case map[string]any:
			out[key] = sanitizeParams(v)
		case string:
			if hasAnyPart(lower, sensitiveKeyParts) {
				out[key] = hashSensitiveValue(v)
				continue
			}
			v = truncate(v, maxSQLSize)
			if isSQLKey(lower) {
				v = sqlLiteralPattern.ReplaceAllString(v, "'***'")
			}
			out[key] = v
		default:
			if hasAnyPart(lower, sensitiveKeyParts) {
				out[key] = hashSensitiveValue(fmt.Sprint(v))
				continue
			}
			out[key] = value
		}
	}
	return out
}

func isSQLKey(lowerKey string) bool {
	return lowerKey == "sql" || lowerKey == "query" ||
		strings.HasSuffix(lowerKey, "_sql") || strings.HasSuffix(lowerKey, "_query")
}

func hasAnyPart(s string, parts []string) bool {
	for _, p := range parts {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + truncatedMarker
}

// hashSensitiveValue returns "sha256:" and the first 8 bytes of the digest.
func hashSensitiveValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return "sha256:" + hex.EncodeToString(sum[:8])
}

// summarizeResult records whether the call failed, how much content it
// returned and a short preview. For report tool results it also lifts the
// discovery tier and the saved path out of the JSON payload.
func summarizeResult(result *mcplib.CallToolResult) map[string]any {
	if result == nil {
		return nil
	}

	summary := map[string]any{"is_error": result.IsError}
	if len(result.Content) == 0 {
		return summary
	}
	summary["content_count"] = len(result.Content)

	for _, c := range result.Content {
		text, ok := c.(mcplib.TextContent)
		if !ok {
			continue
		}
		summary["preview"] = truncate(text.Text, maxPreviewSize)

		var payload struct {
			Tier      string `json:"tier"`
			SavedPath string `json:"saved_path"`
			Code      string `json:"code"`
		}
		if json.Unmarshal([]byte(text.Text), &payload) == nil {
			for key, value := range map[string]string{"tier": payload.Tier, "saved_path": payload.SavedPath, "code": payload.Code} {
				if value != "" {
					summary[key] = value
				}
			}
		}
		break
	}
	return summary
}
