package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reports/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-reports/pkg/logging"
	"github.com/ekaya-inc/ekaya-reports/pkg/middleware"
	"github.com/ekaya-inc/ekaya-reports/pkg/models"
	"github.com/ekaya-inc/ekaya-reports/pkg/services"
)

// DatabaseItem is one entry of the customerDatabases response.
type DatabaseItem struct {
	Name string `json:"name"`
}

// DatabasesResponse is the response of GET /report/customerDatabases.
type DatabasesResponse struct {
	Databases []DatabaseItem `json:"databases"`
}

// InferRequest accepts both the short and the long field names used by
// existing clients.
type InferRequest struct {
	DB           string `json:"db"`
	DatabaseName string `json:"databaseName"`
	Text         string `json:"text"`
	Request      string `json:"request"`
	Title        string `json:"title"`
}

func (r *InferRequest) database() string {
	return firstNonEmpty(r.DB, r.DatabaseName)
}

func (r *InferRequest) text() string {
	return firstNonEmpty(r.Text, r.Request)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// ReportServices groups the services behind the /report routes.
type ReportServices struct {
	Catalog   services.CatalogService
	Intent    services.IntentService
	SQL       services.SQLGenerationService
	Preview   services.PreviewService
	Publish   services.PublishService
	Generator services.ReportGenerationService
}

// ReportHandler serves the report builder API.
type ReportHandler struct {
	svc    ReportServices
	logger *zap.Logger
}

// NewReportHandler creates a ReportHandler.
func NewReportHandler(svc ReportServices, logger *zap.Logger) *ReportHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportHandler{svc: svc, logger: logger.Named("report-api")}
}

// RegisterRoutes registers the /report routes on the given mux.
func (h *ReportHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /report/customerDatabases", h.CustomerDatabases)
	mux.HandleFunc("POST /report/inferFromNaturalLanguage", h.InferFromNaturalLanguage)
	mux.HandleFunc("POST /report/generateSQL", h.GenerateSQL)
	mux.HandleFunc("POST /report/preview", h.Preview)
	mux.HandleFunc("POST /report/publishReport", h.PublishReport)
	mux.HandleFunc("POST /report/ssrs-generate", h.SSRSGenerate)
}

// CustomerDatabases handles GET /report/customerDatabases.
func (h *ReportHandler) CustomerDatabases(w http.ResponseWriter, r *http.Request) {
	const action = "customerDatabases"
	h.logAPICall(r, action, "request", nil)

	names, err := h.svc.Catalog.ListDatabases(r.Context())
	if err != nil {
		h.writeServiceError(w, r, action, err)
		return
	}

	response := DatabasesResponse{Databases: make([]DatabaseItem, len(names))}
	for i, name := range names {
		response.Databases[i] = DatabaseItem{Name: name}
	}
	h.writeResponse(w, r, action, response)
}

// InferFromNaturalLanguage handles POST /report/inferFromNaturalLanguage.
func (h *ReportHandler) InferFromNaturalLanguage(w http.ResponseWriter, r *http.Request) {
	const action = "inferFromNaturalLanguage"

	var req InferRequest
	if !h.decode(w, r, action, &req) {
		return
	}

	database, text := req.database(), req.text()
	if database == "" || text == "" {
		h.writeError(w, r, action, http.StatusBadRequest, "invalid_request", "db and text are required")
		return
	}

	result, err := h.svc.Intent.Infer(r.Context(), database, text, strings.TrimSpace(req.Title))
	if err != nil {
		h.writeServiceError(w, r, action, err)
		return
	}
	h.writeResponse(w, r, action, result)
}

// GenerateSQL handles POST /report/generateSQL.
func (h *ReportHandler) GenerateSQL(w http.ResponseWriter, r *http.Request) {
	const action = "generateSQL"

	var req services.GenerateSQLRequest
	if !h.decode(w, r, action, &req) {
		return
	}

	result, err := h.svc.SQL.GenerateSQL(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, r, action, err)
		return
	}
	h.writeResponse(w, r, action, result)
}

// Preview handles POST /report/preview.
func (h *ReportHandler) Preview(w http.ResponseWriter, r *http.Request) {
	const action = "preview"

	var req services.PreviewRequest
	if !h.decode(w, r, action, &req) {
		return
	}

	result, err := h.svc.Preview.Preview(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, r, action, err)
		return
	}
	h.writeResponse(w, r, action, result)
}

// PublishReport handles POST /report/publishReport.
func (h *ReportHandler) PublishReport(w http.ResponseWriter, r *http.Request) {
	const action = "publishReport"

	var req models.PublishRequest
	if !h.decode(w, r, action, &req) {
		return
	}

	result, err := h.svc.Publish.Publish(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, r, action, err)
		return
	}
	h.writeResponse(w, r, action, result)
}

// SSRSGenerate handles POST /report/ssrs-generate.
func (h *ReportHandler) SSRSGenerate(w http.ResponseWriter, r *http.Request) {
	const action = "ssrs-generate"

	var req services.GenerateRDLRequest
	if !h.decode(w, r, action, &req) {
		return
	}

	result, err := h.svc.Generator.Generate(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, r, action, err)
		return
	}
	h.writeResponse(w, r, action, result)
}

// decode reads the JSON body into v, answering 400 invalid_request when the
// body is malformed.
func (h *ReportHandler) decode(w http.ResponseWriter, r *http.Request, action string, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, r, action, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return false
	}
	h.logAPICall(r, action, "request", v)
	return true
}

func (h *ReportHandler) logAPICall(r *http.Request, action, direction string, payload any) {
	h.logger.Info("api_call",
		zap.String("action", action),
		zap.String("direction", direction),
		zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
		zap.String("payload", logging.SanitizePayload(payload)))
}

func (h *ReportHandler) writeResponse(w http.ResponseWriter, r *http.Request, action string, data any) {
	h.logAPICall(r, action, "response", data)
	if err := WriteJSON(w, http.StatusOK, data); err != nil {
		h.logger.Error("Failed to write response", zap.String("action", action), zap.Error(err))
	}
}

func (h *ReportHandler) writeServiceError(w http.ResponseWriter, r *http.Request, action string, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Report request failed", zap.String("action", action), zap.String("error", logging.SanitizeError(err)))
	} else {
		h.logger.Warn("Report request rejected", zap.String("action", action), zap.String("error", logging.SanitizeError(err)))
	}
	h.writeError(w, r, action, status, code, apperrors.Summarize(err))
}

func (h *ReportHandler) writeError(w http.ResponseWriter, r *http.Request, action string, status int, code, message string) {
	h.logAPICall(r, action, "response", errorBody{Error: errorDetail{Message: message, Code: code}})
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
