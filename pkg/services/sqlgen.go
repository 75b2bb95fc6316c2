package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reports/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-reports/pkg/llm"
	"github.com/ekaya-inc/ekaya-reports/pkg/models"
	sqlutil "github.com/ekaya-inc/ekaya-reports/pkg/sql"
)

// DefaultFromTable is used when no mapped column names its table.
const DefaultFromTable = "dbo.FactSales"

// Time bucket expressions per grain; %[1]s is the time column.
var timeBuckets = map[string]string{
	models.GrainDay:     "CAST(%[1]s AS DATE)",
	models.GrainWeek:    "DATEADD(day, -DATEPART(weekday, %[1]s) + 1, CAST(%[1]s AS DATE))",
	models.GrainMonth:   "DATEFROMPARTS(YEAR(%[1]s), MONTH(%[1]s), 1)",
	models.GrainQuarter: "DATEFROMPARTS(YEAR(%[1]s), ((DATEPART(quarter, %[1]s)-1)*3)+1, 1)",
	models.GrainYear:    "DATEFROMPARTS(YEAR(%[1]s), 1, 1)",
}

const sqlSystemMessage = "You generate SQL Server SELECT statements for SSRS datasets. " +
	"Only reference columns provided in the mapping. " +
	"Always return JSON with keys 'sql' and 'params'. " +
	"If no measures are supplied, use COUNT(1) AS RowCount. " +
	"Parameters must include JSON objects with fields name, rdlType, and optionally value."

// GenerateSQLRequest is the body of POST /report/generateSQL.
type GenerateSQLRequest struct {
	DB      string            `json:"db"`
	Mapping []models.Mapping  `json:"mapping"`
	Spec    models.ReportSpec `json:"spec"`
}

// SQLParam is a query parameter of generated SQL. Name carries the @ prefix.
type SQLParam struct {
	Name    string `json:"name"`
	RDLType string `json:"rdlType"`
	Value   any    `json:"value,omitempty"`
}

// GenerateSQLResult is the response of generateSQL.
type GenerateSQLResult struct {
	SQL     string             `json:"sql"`
	Params  []SQLParam         `json:"params"`
	Columns []models.ColumnDef `json:"columns"`
}

// SQLGenerationService writes T-SQL for a report spec and its column mapping.
type SQLGenerationService interface {
	GenerateSQL(ctx context.Context, req *GenerateSQLRequest) (*GenerateSQLResult, error)
}

type sqlGenerationService struct {
	llmClient llm.LLMClient
	presets   *PresetCatalog
	logger    *zap.Logger
}

// NewSQLGenerationService creates a SQL generation service. A nil llmClient
// selects the deterministic builder.
func NewSQLGenerationService(llmClient llm.LLMClient, presets *PresetCatalog, logger *zap.Logger) SQLGenerationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &sqlGenerationService{llmClient: llmClient, presets: presets, logger: logger.Named("sqlgen")}
}

func (s *sqlGenerationService) GenerateSQL(ctx context.Context, req *GenerateSQLRequest) (*GenerateSQLResult, error) {
	if preset, ok := s.presets.ByID(req.Spec.StaticPresetID); ok {
		s.logger.Info("Returning static preset SQL", zap.String("preset", preset.ID()), zap.String("database", req.DB))
		return &GenerateSQLResult{
			SQL:     preset.SQL(),
			Params:  []SQLParam{},
			Columns: ColumnsForSQL(preset.SQL(), nil),
		}, nil
	}

	mapped := make([]models.Mapping, 0, len(req.Mapping))
	for _, m := range req.Mapping {
		if m.Column != "" {
			mapped = append(mapped, m)
		}
	}
	if len(mapped) == 0 {
		return nil, fmt.Errorf("%w: at least one mapped column is required", apperrors.ErrInvalidMapping)
	}

	var (
		sqlText string
		params  []SQLParam
	)
	if s.llmClient != nil {
		var err error
		sqlText, params, err = s.generateWithLLM(ctx, req.DB, &req.Spec, mapped)
		if err != nil {
			s.logger.Warn("LLM SQL generation failed, using builder", zap.Error(err))
			sqlText = ""
		}
	}
	if sqlText == "" {
		sqlText, params = BuildSQL(&req.Spec, mapped)
	}

	s.logger.Debug("Generated SQL",
		zap.String("database", req.DB),
		zap.Int("params", len(params)))

	return &GenerateSQLResult{
		SQL:     sqlText,
		Params:  params,
		Columns: ColumnsForSQL(sqlText, mapped),
	}, nil
}

type sqlGenerationRules struct {
	Dialect           string `json:"dialect"`
	AggregateMeasures bool   `json:"aggregate_measures"`
	GroupDimensions   bool   `json:"group_dimensions"`
}

type sqlGenerationPrompt struct {
	Database string             `json:"database"`
	Spec     *models.ReportSpec `json:"spec"`
	Mapping  []models.Mapping   `json:"mapping"`
	Rules    sqlGenerationRules `json:"rules"`
}

type sqlGenerationResponse struct {
	SQL    string           `json:"sql"`
	Params []map[string]any `json:"params"`
}

func (s *sqlGenerationService) generateWithLLM(ctx context.Context, database string, spec *models.ReportSpec, mapping []models.Mapping) (string, []SQLParam, error) {
	prompt, err := json.MarshalIndent(sqlGenerationPrompt{
		Database: database,
		Spec:     spec,
		Mapping:  mapping,
		Rules:    sqlGenerationRules{Dialect: "SQL Server", AggregateMeasures: true, GroupDimensions: true},
	}, "", "  ")
	if err != nil {
		return "", nil, fmt.Errorf("encode prompt: %w", err)
	}

	result, err := s.llmClient.GenerateResponse(llm.WithPurpose(ctx, llm.PurposeSQL), string(prompt), sqlSystemMessage, 0, true)
	if err != nil {
		return "", nil, err
	}

	resp, err := llm.ParseJSONResponse[sqlGenerationResponse](result.Content)
	if err != nil {
		return "", nil, fmt.Errorf("parse SQL response: %w", err)
	}
	sqlText := strings.TrimSpace(resp.SQL)
	if sqlText == "" {
		return "", nil, fmt.Errorf("response did not include SQL text")
	}
	return sqlText, normalizeLLMParams(resp.Params), nil
}

// normalizeLLMParams keeps entries with a name, prefixes names with @ and
// infers a missing rdlType from the field or parameter name.
func normalizeLLMParams(raw []map[string]any) []SQLParam {
	params := []SQLParam{}
	for _, p := range raw {
		name, _ := p["name"].(string)
		if name == "" {
			name, _ = p["param"].(string)
		}
		if name == "" {
			continue
		}
		name = "@" + strings.TrimLeft(name, "@")

		rdlType, _ := p["rdlType"].(string)
		if rdlType == "" {
			field, _ := p["field"].(string)
			if field == "" {
				field = name
			}
			rdlType = InferParamType(field)
		}
		params = append(params, SQLParam{Name: name, RDLType: rdlType, Value: p["value"]})
	}
	return params
}

// InferParamType guesses a report parameter type from a field name.
func InferParamType(fieldName string) string {
	lowered := strings.ToLower(fieldName)
	switch {
	case strings.Contains(lowered, "date"), strings.Contains(lowered, "time"):
		return models.ParamTypeDateTime
	case strings.Contains(lowered, "amount"), strings.Contains(lowered, "qty"),
		strings.Contains(lowered, "count"), strings.Contains(lowered, "total"):
		return models.ParamTypeFloat
	default:
		return models.ParamTypeString
	}
}

// BuildSQL writes a grouped aggregate query without an LLM: the time column
// bucketed by grain, grouped dimensions, summed measures (or a row count),
// one parameterized predicate per filter and the spec's sort order.
func BuildSQL(spec *models.ReportSpec, mapping []models.Mapping) (string, []SQLParam) {
	var (
		selectParts []string
		groupParts  []string
		timeColumn  string
		dims        []string
		measures    []string
	)
	for _, m := range mapping {
		switch {
		case m.IsMeasure():
			measures = append(measures, m.Column)
		case m.Role == models.RoleTime:
			if timeColumn == "" {
				timeColumn = m.Column
			}
		case m.Role == models.RoleDimension:
			dims = append(dims, m.Column)
		}
	}

	if timeColumn != "" {
		if expr, alias, ok := timeBucket(timeColumn, string(spec.Grain)); ok {
			selectParts = append(selectParts, fmt.Sprintf("%s AS [%s]", expr, alias))
			groupParts = append(groupParts, expr)
		} else {
			selectParts = append(selectParts, fmt.Sprintf("%s AS [%s]", timeColumn, columnAlias(timeColumn)))
			groupParts = append(groupParts, timeColumn)
		}
	}
	for _, d := range dims {
		selectParts = append(selectParts, fmt.Sprintf("%s AS [%s]", d, columnAlias(d)))
		groupParts = append(groupParts, d)
	}
	if len(measures) == 0 {
		selectParts = append(selectParts, "COUNT(1) AS [RowCount]")
	}
	for _, m := range measures {
		selectParts = append(selectParts, fmt.Sprintf("SUM(%s) AS [%s]", m, columnAlias(m)))
	}

	var (
		where  []string
		params = []SQLParam{}
	)
	for _, f := range spec.Filters {
		field := f.Field
		if field == "" {
			field = "1"
		}
		raw := f.Param
		if raw == "" {
			raw = field
		}
		paramName := "@" + strings.NewReplacer(".", "", "[", "", "]", "", "@", "").Replace(raw)

		op := f.EffectiveOp()
		if strings.EqualFold(op, "in") {
			where = append(where, fmt.Sprintf("%s IN (%s)", field, paramName))
		} else {
			where = append(where, fmt.Sprintf("%s %s %s", field, op, paramName))
		}

		var value any
		if f.Value != "" {
			value = f.Value
		}
		params = append(params, SQLParam{Name: paramName, RDLType: InferParamType(field), Value: value})
	}

	from := spec.From
	if from == "" {
		from = resolveFromTable(mapping)
	}

	lines := []string{"SELECT", "    " + strings.Join(selectParts, ",\n    "), "FROM " + from}
	if len(where) > 0 {
		lines = append(lines, "WHERE "+strings.Join(where, " AND "))
	}
	if len(groupParts) > 0 {
		lines = append(lines, "GROUP BY "+strings.Join(groupParts, ", "))
	}
	if len(spec.Sort) > 0 {
		order := make([]string, len(spec.Sort))
		for i, item := range spec.Sort {
			dir := item.Dir
			if dir == "" {
				dir = "asc"
			}
			order[i] = item.Field + " " + strings.ToUpper(dir)
		}
		lines = append(lines, "ORDER BY "+strings.Join(order, ", "))
	}

	return strings.Join(lines, "\n"), params
}

func timeBucket(column, grain string) (expr, alias string, ok bool) {
	tmpl, ok := timeBuckets[grain]
	if !ok {
		return "", "", false
	}
	return fmt.Sprintf(tmpl, column), strings.ToUpper(grain[:1]) + grain[1:] + "Bucket", true
}

// columnAlias returns the last part of a dotted name without brackets.
func columnAlias(column string) string {
	if idx := strings.LastIndex(column, "."); idx >= 0 {
		column = column[idx+1:]
	}
	return strings.Trim(column, "[]")
}

// tableOf returns a dotted column name without its last part.
func tableOf(column string) (string, bool) {
	idx := strings.LastIndex(column, ".")
	if idx <= 0 {
		return "", false
	}
	return column[:idx], true
}

func resolveFromTable(mapping []models.Mapping) string {
	for _, m := range mapping {
		if table, ok := tableOf(m.Column); ok {
			return table
		}
	}
	return DefaultFromTable
}

// ColumnsForSQL describes the projection of generated SQL as dataset
// columns. Names come from the heuristic SELECT-list parser; roles and
// types come from the mapping when an alias matches a mapped column.
func ColumnsForSQL(sqlText string, mapping []models.Mapping) []models.ColumnDef {
	parsed, err := sqlutil.ParseSelectColumns(sqlText)
	if err != nil {
		return []models.ColumnDef{}
	}

	byAlias := make(map[string]models.Mapping, len(mapping))
	for _, m := range mapping {
		byAlias[strings.ToLower(columnAlias(m.Column))] = m
	}

	names := make([]string, len(parsed))
	for i, p := range parsed {
		names[i] = sqlutil.SanitizeFieldName(p.Name)
	}
	names = sqlutil.UniqueFieldNames(names)

	columns := make([]models.ColumnDef, len(parsed))
	for i, p := range parsed {
		col := models.ColumnDef{
			Name:        names[i],
			Source:      p.Expr,
			RDLType:     models.ParamTypeString,
			Role:        models.RoleDimension,
			DisplayName: p.Name,
		}

		switch m, ok := byAlias[strings.ToLower(p.Name)]; {
		case strings.HasSuffix(p.Name, "Bucket"):
			col.Role = models.RoleTime
			col.RDLType = models.ParamTypeDateTime
		case p.Name == "RowCount":
			col.Role = models.RoleMeasure
			col.RDLType = models.ParamTypeInteger
			col.Agg = "COUNT"
		case ok && m.IsMeasure():
			col.Source = m.Column
			col.Role = models.RoleMeasure
			col.RDLType = models.ParamTypeFloat
			col.Agg = "SUM"
		case ok && m.Role == models.RoleTime:
			col.Source = m.Column
			col.Role = models.RoleTime
			col.RDLType = models.ParamTypeDateTime
		case ok:
			col.Source = m.Column
		}
		columns[i] = col
	}
	return columns
}
