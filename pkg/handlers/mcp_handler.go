package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reports/pkg/mcp"
	"github.com/ekaya-inc/ekaya-reports/pkg/middleware"
)

// maxMCPBodyBytes bounds a single JSON-RPC request. Tool arguments carry one
// T-SQL statement, so anything larger is rejected before it is parsed.
const maxMCPBodyBytes = 1 << 20

// MCPHandler serves the MCP tools over streamable HTTP at /mcp.
type MCPHandler struct {
	transport http.Handler
	logger    *zap.Logger
}

// NewMCPHandler wraps the server's stateless HTTP transport.
func NewMCPHandler(mcpServer *mcp.Server, logger *zap.Logger) *MCPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MCPHandler{
		transport: mcpServer.NewStreamableHTTPServer(),
		logger:    logger,
	}
}

// RegisterRoutes mounts the endpoint. Requests pass the method check, then
// the body limit, then the JSON-RPC logger.
func (h *MCPHandler) RegisterRoutes(mux *http.ServeMux) {
	logged := middleware.MCPRequestLogger(h.logger)(h.transport)
	mux.Handle("/mcp", postOnly(limitBody(logged, maxMCPBodyBytes)))
}

func postOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func limitBody(next http.Handler, n int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, n)
		next.ServeHTTP(w, r)
	})
}
