package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reports/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-reports/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-reports/pkg/metrics"
	"github.com/ekaya-inc/ekaya-reports/pkg/models"
	"github.com/ekaya-inc/ekaya-reports/pkg/rdl"
	sqlutil "github.com/ekaya-inc/ekaya-reports/pkg/sql"
)

// StatusSuccess is the status of a generated report.
const StatusSuccess = "success"

// GenerateRDLRequest is the input of the RDL generation pipeline.
type GenerateRDLRequest struct {
	SQL            string `json:"sql"`
	OutputPath     string `json:"output_path"`
	DatabaseName   string `json:"db_name"`
	ReportName     string `json:"report_name,omitempty"`
	DataSourceName string `json:"data_source_name,omitempty"`
	DataSetName    string `json:"data_set_name,omitempty"`
}

// GenerateRDLResult describes a report definition written to disk.
type GenerateRDLResult struct {
	Status     string               `json:"status"`
	SavedPath  string               `json:"saved_path"`
	ReportName string               `json:"report_name"`
	DataSource string               `json:"data_source"`
	DataSet    string               `json:"data_set"`
	Fields     []models.Field       `json:"fields"`
	Parameters []models.Parameter   `json:"parameters"`
	Notes      []string             `json:"notes"`
	Tier       models.DiscoveryTier `json:"tier"`
}

// ReportGenerationService turns a raw query into a report definition file.
type ReportGenerationService interface {
	// Generate validates the request, detects parameters, discovers the
	// result schema, renders the document and writes it atomically.
	Generate(ctx context.Context, req *GenerateRDLRequest) (*GenerateRDLResult, error)

	// Discover runs schema discovery for a query. An empty database, or a
	// server that is missing or unreachable, leaves only the heuristic tier.
	Discover(ctx context.Context, database, query string) (*models.SchemaResult, error)
}

// ReportGenerationConfig holds deployment defaults for generated reports.
type ReportGenerationConfig struct {
	// DataSourceReference is the shared data source path on the report server.
	DataSourceReference string
	// OutputDir resolves relative output paths. Empty means the working directory.
	OutputDir string
}

type reportGenerationService struct {
	sessions  datasource.SessionFactory
	discovery SchemaDiscoveryService
	builder   *rdl.Builder
	config    ReportGenerationConfig
	logger    *zap.Logger
}

// NewReportGenerationService creates the RDL generation pipeline. A nil
// sessions factory means no database server: discovery falls back to heuristics.
func NewReportGenerationService(
	sessions datasource.SessionFactory,
	discovery SchemaDiscoveryService,
	builder *rdl.Builder,
	cfg ReportGenerationConfig,
	logger *zap.Logger,
) ReportGenerationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sessions == nil {
		sessions = datasource.UnavailableFactory{}
	}
	if builder == nil {
		builder = rdl.NewBuilder()
	}
	return &reportGenerationService{
		sessions:  sessions,
		discovery: discovery,
		builder:   builder,
		config:    cfg,
		logger:    logger.Named("report-generation"),
	}
}

// ValidateGenerateRequest rejects requests that cannot produce a report.
func ValidateGenerateRequest(req *GenerateRDLRequest) error {
	if req == nil {
		return apperrors.Validation("request body is required")
	}
	if _, err := sqlutil.ValidateQueryText(req.SQL); err != nil {
		if errors.Is(err, sqlutil.ErrEmptyQuery) {
			return apperrors.Validation("SQL query cannot be empty")
		}
		return apperrors.Validation("%s", err.Error())
	}
	if !strings.HasSuffix(req.OutputPath, ".rdl") {
		return apperrors.Validation("output_path must end with .rdl")
	}
	if strings.TrimSpace(req.DatabaseName) == "" {
		return apperrors.Validation("db_name cannot be empty")
	}
	return nil
}

func (s *reportGenerationService) Generate(ctx context.Context, req *GenerateRDLRequest) (*GenerateRDLResult, error) {
	if err := ValidateGenerateRequest(req); err != nil {
		return nil, err
	}

	opts := rdl.Options{
		ReportName:          req.ReportName,
		DataSourceName:      req.DataSourceName,
		DataSetName:         req.DataSetName,
		DataSourceReference: s.config.DataSourceReference,
	}

	params := sqlutil.DetectParameters(req.SQL)
	s.logger.Info("Detected parameters",
		zap.String("database", req.DatabaseName),
		zap.Int("count", len(params)))

	schema, err := s.Discover(ctx, req.DatabaseName, req.SQL)
	if err != nil {
		metrics.ObserveRDLDocument(metrics.OutcomeFailure)
		return nil, err
	}

	doc := rdl.NewDocument(opts, req.SQL, params, schema.Fields)
	data, err := s.builder.Build(doc)
	if err != nil {
		metrics.ObserveRDLDocument(metrics.OutcomeFailure)
		return nil, err
	}

	path, err := s.resolveOutputPath(req.OutputPath)
	if err != nil {
		metrics.ObserveRDLDocument(metrics.OutcomeFailure)
		return nil, err
	}
	if err := rdl.WriteFile(path, data); err != nil {
		metrics.ObserveRDLDocument(metrics.OutcomeFailure)
		s.logger.Error("Failed to write report definition", zap.String("path", path), zap.Error(err))
		return nil, err
	}
	metrics.ObserveRDLDocument(metrics.OutcomeSuccess)

	s.logger.Info("Generated report definition",
		zap.String("path", path),
		zap.String("tier", string(schema.Tier)),
		zap.Int("fields", len(schema.Fields)),
		zap.Int("bytes", len(data)))

	return &GenerateRDLResult{
		Status:     StatusSuccess,
		SavedPath:  path,
		ReportName: doc.ReportName,
		DataSource: doc.DataSourceName,
		DataSet:    doc.DataSetName,
		Fields:     schema.Fields,
		Parameters: params,
		Notes:      schema.Notes,
		Tier:       schema.Tier,
	}, nil
}

func (s *reportGenerationService) Discover(ctx context.Context, database, query string) (*models.SchemaResult, error) {
	if !s.sessions.Available() || strings.TrimSpace(database) == "" {
		return s.discovery.Discover(ctx, nil, query)
	}

	session, err := s.sessions.Open(ctx, database)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		s.logger.Warn("Database unavailable for schema discovery",
			zap.String("database", database),
			zap.Error(err))
		return s.discovery.Discover(ctx, nil, query)
	}
	defer func() {
		if err := session.Close(); err != nil {
			s.logger.Warn("Failed to close session", zap.Error(err))
		}
	}()

	return s.discovery.Discover(ctx, session, query)
}

func (s *reportGenerationService) resolveOutputPath(path string) (string, error) {
	if !filepath.IsAbs(path) && s.config.OutputDir != "" {
		path = filepath.Join(s.config.OutputDir, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", apperrors.Validation("output_path %q: %v", path, err)
	}
	return abs, nil
}
