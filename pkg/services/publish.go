package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reports/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-reports/pkg/metrics"
	"github.com/ekaya-inc/ekaya-reports/pkg/models"
	"github.com/ekaya-inc/ekaya-reports/pkg/rdl"
	sqlutil "github.com/ekaya-inc/ekaya-reports/pkg/sql"
	"github.com/ekaya-inc/ekaya-reports/pkg/ssrs"
)

const (
	publishDataSourceName = "MainDataSource"
	publishDefaultDataSet = "Dataset"
	placeholderSQL        = "SELECT 1 AS Placeholder"
	placeholderColumn     = "Placeholder"
)

// ReportPublisher is the report server surface used by publishing.
// *ssrs.Client implements it.
type ReportPublisher interface {
	CreateCatalogItem(ctx context.Context, folder, name string, definition []byte) (*ssrs.CatalogItem, error)
	SetItemDataSources(ctx context.Context, itemPath, dataSourceName, reference string) error
	SetReportDataSources(ctx context.Context, id, itemPath string, refs []ssrs.DataSourceRef) bool
	SystemInfo(ctx context.Context) map[string]any
	RenderBase() string
}

var _ ReportPublisher = (*ssrs.Client)(nil)

// PublishResult is the response of publishReport.
type PublishResult struct {
	Path          string                 `json:"path"`
	RenderURLPDF  string                 `json:"render_url_pdf"`
	Server        map[string]any         `json:"server,omitempty"`
	DatasetFields []models.ColumnDef     `json:"dataset_fields"`
	Echo          *models.PublishRequest `json:"echo"`
}

// PublishConfig holds publishing defaults.
type PublishConfig struct {
	DefaultFolder string
}

// PublishService builds a report from column definitions and uploads it.
type PublishService interface {
	Publish(ctx context.Context, req *models.PublishRequest) (*PublishResult, error)
}

type publishService struct {
	publisher ReportPublisher
	builder   *rdl.Builder
	cfg       PublishConfig
	logger    *zap.Logger
}

// NewPublishService creates a publish service. A nil publisher makes every
// publish fail with apperrors.ErrNotConfigured.
func NewPublishService(publisher ReportPublisher, builder *rdl.Builder, cfg PublishConfig, logger *zap.Logger) PublishService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if builder == nil {
		builder = rdl.NewBuilder()
	}
	return &publishService{publisher: publisher, builder: builder, cfg: cfg, logger: logger.Named("publish")}
}

// ValidatePublishRequest checks the report target.
func ValidatePublishRequest(req *models.PublishRequest) error {
	if req == nil {
		return apperrors.Validation("request body is required")
	}
	if strings.TrimSpace(req.Report.Title) == "" {
		return apperrors.Validation("report.title is required")
	}
	if strings.TrimSpace(req.Report.SharedDataSourcePath) == "" {
		return apperrors.Validation("report.shared_data_source_path is required")
	}
	return nil
}

func (s *publishService) Publish(ctx context.Context, req *models.PublishRequest) (result *PublishResult, err error) {
	if err := ValidatePublishRequest(req); err != nil {
		return nil, err
	}
	defer func() {
		metrics.ObservePublish(metrics.Outcome(err))
	}()

	if s.publisher == nil {
		return nil, fmt.Errorf("%w: report server %w", apperrors.ErrPublish, apperrors.ErrNotConfigured)
	}

	folder := req.Report.Folder
	if folder == "" {
		folder = s.cfg.DefaultFolder
	}

	columns := includedColumns(req.Columns)
	query := BuildPublishSQL(columns, req.Filters, req.Sort)
	doc := publishDocument(req, columns, query)

	definition, err := s.builder.Build(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrPublish, err)
	}

	item, err := s.publisher.CreateCatalogItem(ctx, folder, req.Report.Title, definition)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrPublish, err)
	}
	if err := s.publisher.SetItemDataSources(ctx, item.Path, publishDataSourceName, req.Report.SharedDataSourcePath); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrPublish, err)
	}
	if !s.publisher.SetReportDataSources(ctx, item.ID, item.Path, []ssrs.DataSourceRef{{
		ID:           publishDataSourceName,
		Name:         publishDataSourceName,
		DataSourceID: req.Report.SharedDataSourcePath,
	}}) {
		s.logger.Debug("REST data source binding skipped", zap.String("path", item.Path))
	}

	renderParams := make([]ssrs.RenderParam, len(req.Parameters))
	for i, p := range req.Parameters {
		renderParams[i] = ssrs.RenderParam{Name: strings.TrimPrefix(p.Name, "@"), Value: defaultString(p.Default)}
	}

	s.logger.Info("Published report",
		zap.String("path", item.Path),
		zap.String("database", req.DB.Name),
		zap.Int("fields", len(doc.Fields)),
		zap.Int("parameters", len(doc.Parameters)))

	fields := req.Columns
	if fields == nil {
		fields = []models.ColumnDef{}
	}
	return &PublishResult{
		Path:          item.Path,
		RenderURLPDF:  ssrs.RenderURL(s.publisher.RenderBase(), item.Path, renderParams),
		Server:        s.publisher.SystemInfo(ctx),
		DatasetFields: fields,
		Echo:          req,
	}, nil
}

func includedColumns(columns []models.ColumnDef) []models.ColumnDef {
	included := make([]models.ColumnDef, 0, len(columns))
	for _, c := range columns {
		if c.Included() {
			included = append(included, c)
		}
	}
	return included
}

// BuildPublishSQL selects each column's source under its name, from the
// table of the first qualified source, with one predicate per filter.
func BuildPublishSQL(columns []models.ColumnDef, filters []models.FilterDef, sort []models.SortDef) string {
	var (
		selectParts []string
		table       string
	)
	for _, c := range columns {
		if c.Source == "" {
			continue
		}
		selectParts = append(selectParts, fmt.Sprintf("%s AS [%s]", c.Source, c.Name))
		if table == "" {
			if t, ok := tableOf(c.Source); ok {
				table = t
			}
		}
	}
	if len(selectParts) == 0 {
		return placeholderSQL
	}
	if table == "" {
		table = DefaultFromTable
	}

	lines := []string{"SELECT", "    " + strings.Join(selectParts, ", "), "FROM " + table}

	if len(filters) > 0 {
		clauses := make([]string, len(filters))
		for i, f := range filters {
			param := "@" + strings.TrimPrefix(f.Param, "@")
			if strings.EqualFold(f.Op, "in") {
				clauses[i] = fmt.Sprintf("%s IN (%s)", f.Field, param)
			} else {
				clauses[i] = fmt.Sprintf("%s %s %s", f.Field, f.Op, param)
			}
		}
		lines = append(lines, "WHERE "+strings.Join(clauses, " AND "))
	}
	if len(sort) > 0 {
		order := make([]string, len(sort))
		for i, item := range sort {
			dir := item.Dir
			if dir == "" {
				dir = "asc"
			}
			order[i] = item.Field + " " + strings.ToUpper(dir)
		}
		lines = append(lines, "ORDER BY "+strings.Join(order, ", "))
	}
	return strings.Join(lines, "\n")
}

func publishDocument(req *models.PublishRequest, columns []models.ColumnDef, query string) *rdl.Document {
	dataSet := strings.ReplaceAll(req.Report.Title, " ", "")
	if dataSet == "" {
		dataSet = publishDefaultDataSet
	} else {
		dataSet = sqlutil.SanitizeFieldName(dataSet)
	}

	doc := &rdl.Document{
		Options: rdl.Options{
			ReportName:          req.Report.Title,
			DataSourceName:      publishDataSourceName,
			DataSetName:         dataSet,
			DataSourceReference: req.Report.SharedDataSourcePath,
		},
		Query: query,
	}

	var sourced []models.ColumnDef
	for _, c := range columns {
		if c.Source != "" {
			sourced = append(sourced, c)
		}
	}
	if len(sourced) == 0 {
		doc.Fields = []rdl.Field{{
			Name:      placeholderColumn,
			DataField: placeholderColumn,
			Header:    placeholderColumn,
			Type:      models.RDLTypeInt32,
		}}
	} else {
		names := make([]string, len(sourced))
		for i, c := range sourced {
			names[i] = sqlutil.SanitizeFieldName(c.Name)
		}
		names = sqlutil.UniqueFieldNames(names)
		for i, c := range sourced {
			header := c.DisplayName
			if header == "" {
				header = c.Name
			}
			doc.Fields = append(doc.Fields, rdl.Field{
				Name:      names[i],
				DataField: c.Name,
				Header:    header,
				Type:      models.FieldTypeForParamType(c.RDLType),
			})
		}
	}

	for _, p := range req.Parameters {
		name := strings.TrimPrefix(p.Name, "@")
		dataType := p.RDLType
		if dataType == "" {
			dataType = models.ParamTypeString
		}
		prompt := p.Prompt
		if prompt == "" {
			prompt = name
		}
		doc.Parameters = append(doc.Parameters, rdl.Parameter{Name: name, DataType: dataType, Prompt: prompt})
	}
	return doc
}

func defaultString(v any) string {
	switch d := v.(type) {
	case nil:
		return ""
	case string:
		return d
	case []any:
		parts := make([]string, len(d))
		for i, item := range d {
			parts[i] = fmt.Sprint(item)
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(d)
	}
}
