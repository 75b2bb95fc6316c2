package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reports/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-reports/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-reports/pkg/audit"
	sqlutil "github.com/ekaya-inc/ekaya-reports/pkg/sql"
)

const (
	DefaultPreviewLimit = 100

	previewUnavailableMessage = "Preview unavailable in this environment"
)

// PreviewRequest is the body of POST /report/preview.
type PreviewRequest struct {
	DB     string         `json:"db"`
	SQL    string         `json:"sql"`
	Params map[string]any `json:"params"`
	Limit  int            `json:"limit"`
}

// PreviewResult holds the rows of a bounded query run.
type PreviewResult struct {
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}

// PreviewService runs generated SQL against the customer database with a row cap.
type PreviewService interface {
	Preview(ctx context.Context, req *PreviewRequest) (*PreviewResult, error)
}

type previewService struct {
	sessions datasource.SessionFactory
	auditor  *audit.SecurityAuditor
	logger   *zap.Logger
}

// NewPreviewService creates a preview service.
func NewPreviewService(sessions datasource.SessionFactory, logger *zap.Logger) PreviewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sessions == nil {
		sessions = datasource.UnavailableFactory{}
	}
	return &previewService{
		sessions: sessions,
		auditor:  audit.NewSecurityAuditor(logger),
		logger:   logger.Named("preview"),
	}
}

// ClampPreviewLimit applies the default and the 1..MaxPreviewLimit range.
func ClampPreviewLimit(limit int) int {
	if limit == 0 {
		return DefaultPreviewLimit
	}
	return max(1, min(limit, datasource.MaxPreviewLimit))
}

func (s *previewService) Preview(ctx context.Context, req *PreviewRequest) (*PreviewResult, error) {
	limit := ClampPreviewLimit(req.Limit)

	if !s.sessions.Available() {
		return &PreviewResult{
			Rows:     []map[string]any{{"message": previewUnavailableMessage}},
			RowCount: 1,
		}, nil
	}
	if strings.TrimSpace(req.SQL) == "" {
		return nil, fmt.Errorf("%w: sql is required", apperrors.ErrPreview)
	}

	params := make(map[string]any, len(req.Params))
	names := make([]string, 0, len(req.Params))
	for k, v := range req.Params {
		name := strings.TrimPrefix(k, "@")
		params[name] = v
		names = append(names, name)
	}
	sort.Strings(names)

	// Values are bound as query parameters, so a match is recorded for the
	// security log and the query still runs.
	for _, hit := range sqlutil.CheckAllParameters(params) {
		s.auditor.LogInjectionAttempt(ctx, req.DB, audit.SQLInjectionDetails{
			ParamName:   hit.ParamName,
			ParamValue:  hit.ParamValue,
			Fingerprint: hit.Fingerprint,
		})
	}

	session, err := s.sessions.Open(ctx, req.DB)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrPreview, err)
	}
	defer session.Close()

	result, err := session.Preview(ctx, req.SQL, params, limit)
	if err != nil {
		s.logger.Error("Preview query failed", zap.String("database", req.DB), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", apperrors.ErrPreview, err)
	}

	s.auditor.LogPreviewExecution(ctx, req.DB, names, limit)

	rows := result.Rows
	if rows == nil {
		rows = []map[string]any{}
	}
	return &PreviewResult{Rows: rows, RowCount: len(rows)}, nil
}
