package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ekaya-inc/ekaya-reports/pkg/apperrors"
)

// errorBody is the uniform error envelope of every route.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(errorBody{Error: errorDetail{Message: message, Code: errorCode}})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// errorStatus maps a service error to its HTTP status and error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperrors.ErrInvalidMapping):
		return http.StatusBadRequest, "invalid_mapping"
	case errors.Is(err, apperrors.ErrPreview):
		return http.StatusBadRequest, "preview_error"
	case errors.Is(err, apperrors.ErrDiscoveryFailed):
		return http.StatusUnprocessableEntity, "discovery_failed"
	case errors.Is(err, apperrors.ErrCatalog):
		return http.StatusBadGateway, "catalog_error"
	case errors.Is(err, apperrors.ErrPublish):
		return http.StatusBadGateway, "ssrs_upload_failed"
	case errors.Is(err, apperrors.ErrWriteFailed):
		return http.StatusInternalServerError, "write_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
