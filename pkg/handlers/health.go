package handlers

import (
	"net/http"
	"os"
	"runtime"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reports/pkg/config"
)

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string          `json:"status"`
	Version     string          `json:"version"`
	Service     string          `json:"service"`
	GoVersion   string          `json:"go_version"`
	Hostname    string          `json:"hostname"`
	Environment string          `json:"environment"`
	Backends    BackendsSummary `json:"backends"`
}

// BackendsSummary reports which external systems are configured.
type BackendsSummary struct {
	SQLServer bool   `json:"sqlserver"`
	LLM       bool   `json:"llm"`
	LLMModel  string `json:"llm_model,omitempty"`
	// LLMCircuit is the provider circuit breaker state: closed, open or half-open.
	LLMCircuit string `json:"llm_circuit,omitempty"`
	SSRS       bool   `json:"ssrs"`
}

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg        *config.Config
	llmCircuit func() string
	logger     *zap.Logger
}

// NewHealthHandler creates a new HealthHandler with the given configuration.
func NewHealthHandler(cfg *config.Config, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{cfg: cfg, logger: logger}
}

// WithLLMCircuit makes /ping report the LLM circuit breaker state.
func (h *HealthHandler) WithLLMCircuit(state func() string) *HealthHandler {
	h.llmCircuit = state
	return h
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health handles GET /healthz requests.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := WriteJSON(w, http.StatusOK, map[string]bool{"ok": true}); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}

// Ping handles GET /ping requests.
// Returns detailed service information including version and configured backends.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "failed to get hostname"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	llmConfigured := h.cfg.LLM.IsConfigured()
	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "ekaya-reports",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
		Backends: BackendsSummary{
			SQLServer: h.cfg.SQLServer.IsConfigured(),
			LLM:       llmConfigured,
			SSRS:      h.cfg.SSRS.IsConfigured(),
		},
	}
	if llmConfigured {
		response.Backends.LLMModel = h.cfg.LLM.Model()
	}
	if h.llmCircuit != nil {
		response.Backends.LLMCircuit = h.llmCircuit()
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
