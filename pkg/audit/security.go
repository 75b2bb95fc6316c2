// Package audit writes security events in a structured form for SIEM
// consumption.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reports/pkg/middleware"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventSQLInjectionAttempt is logged when libinjection flags a parameter value.
	EventSQLInjectionAttempt SecurityEventType = "sql_injection_attempt"
	// EventPreviewExecution is logged for each preview query run against a customer database.
	EventPreviewExecution SecurityEventType = "preview_execution"
)

// SecurityEvent is the JSON document attached to every security log entry.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	RequestID string            `json:"request_id,omitempty"`
	Database  string            `json:"database"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"` // info, warning, critical
}

// SQLInjectionDetails contains specifics of a detected SQL injection attempt.
type SQLInjectionDetails struct {
	ParamName   string `json:"param_name"`
	ParamValue  string `json:"param_value"`
	Fingerprint string `json:"fingerprint"`
}

// SecurityAuditor logs security events under the "security_audit" logger name.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates a SecurityAuditor. A nil logger discards events.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SecurityAuditor{logger: logger.Named("security_audit")}
}

// LogInjectionAttempt records a rejected parameter value at ERROR level with
// critical severity. The request ID comes from ctx when the request passed
// through middleware.RequestLogger.
func (a *SecurityAuditor) LogInjectionAttempt(ctx context.Context, database string, details SQLInjectionDetails) {
	event := a.event(ctx, EventSQLInjectionAttempt, database, details, "critical")

	a.logger.Error("SQL injection attempt detected",
		zap.String("event_json", marshalEvent(event)),
		zap.String("request_id", event.RequestID),
		zap.String("database", database),
		zap.String("param_name", details.ParamName),
		zap.String("fingerprint", details.Fingerprint),
		zap.String("severity", event.Severity),
	)
}

// LogPreviewExecution records a preview query run. Only the row cap and the
// parameter names are kept; values may hold customer data.
func (a *SecurityAuditor) LogPreviewExecution(ctx context.Context, database string, paramNames []string, limit int) {
	details := map[string]any{
		"param_names": paramNames,
		"limit":       limit,
	}
	event := a.event(ctx, EventPreviewExecution, database, details, "info")

	a.logger.Info("Preview executed",
		zap.String("event_json", marshalEvent(event)),
		zap.String("request_id", event.RequestID),
		zap.String("database", database),
		zap.Strings("param_names", paramNames),
		zap.Int("limit", limit),
		zap.String("severity", event.Severity),
	)
}

func (a *SecurityAuditor) event(ctx context.Context, eventType SecurityEventType, database string, details any, severity string) SecurityEvent {
	return SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		RequestID: middleware.RequestIDFromContext(ctx),
		Database:  database,
		Details:   details,
		Severity:  severity,
	}
}

// marshalEvent serializes known types; the error cannot occur.
func marshalEvent(event SecurityEvent) string {
	data, _ := json.Marshal(event)
	return string(data)
}
