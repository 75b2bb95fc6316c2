package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reports/pkg/llm"
	"github.com/ekaya-inc/ekaya-reports/pkg/models"
)

// DefaultReportTitle is used when a request has no title.
const DefaultReportTitle = "Untitled Report"

var (
	metricKeywords    = []string{"revenue", "sales", "amount", "profit", "count", "orders"}
	dimensionKeywords = []string{"region", "country", "product", "category", "channel", "segment", "customer"}
	grainCandidates   = []string{models.GrainDay, models.GrainWeek, models.GrainMonth, models.GrainQuarter, models.GrainYear}

	isoDatePattern = regexp.MustCompile(`(20\d{2}-\d{2}-\d{2})`)
	lastNPattern   = regexp.MustCompile(`last (\d{1,2}) (day|week|month|quarter|year)s?`)
	inListPattern  = regexp.MustCompile(`\bin ([A-Za-z ]+)`)
	grainPatterns  = func() map[string]*regexp.Regexp {
		m := make(map[string]*regexp.Regexp, len(grainCandidates))
		for _, g := range grainCandidates {
			m[g] = regexp.MustCompile(`(?:per|by) ` + g)
		}
		return m
	}()
)

const intentSystemMessage = "You convert a business reporting request into a structured spec. " +
	"Return ONLY minified JSON matching the provided schema. Do not add prose."

const intentSchema = `{"title":"string","metrics":["string"],"dimensions":["string"],` +
	`"filters":[{"field":"string","operator":"string","value":"string"}],` +
	`"grain":"day|week|month|quarter|year|none",` +
	`"chart":{"type":"table|line|bar|pie","x":"string","y":"string","series":["string"]}}`

// InferResult is the response of inferFromNaturalLanguage.
type InferResult struct {
	Spec             *models.ReportSpec            `json:"spec"`
	SuggestedMapping []models.SuggestedMappingItem `json:"suggestedMapping"`
	AvailableColumns []models.ColumnMetadata       `json:"availableColumns"`
	SchemaInsights   models.SchemaInsights         `json:"schemaInsights"`
}

// IntentService turns natural-language report requests into specs.
type IntentService interface {
	// ParseIntent extracts a spec from text, using the LLM when one is
	// configured and keyword rules otherwise or when the LLM fails.
	ParseIntent(ctx context.Context, text, title string) (*models.NLSpec, error)

	// Infer parses the request, maps its terms to the database catalog and
	// reports coverage. Preset trigger texts short-circuit to a canned result.
	Infer(ctx context.Context, database, text, title string) (*InferResult, error)
}

type intentService struct {
	llmClient llm.LLMClient
	catalog   CatalogService
	mapping   MappingService
	presets   *PresetCatalog
	logger    *zap.Logger
}

// NewIntentService creates an intent service. A nil llmClient selects the
// rule-based parser only.
func NewIntentService(
	llmClient llm.LLMClient,
	catalog CatalogService,
	mapping MappingService,
	presets *PresetCatalog,
	logger *zap.Logger,
) IntentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &intentService{
		llmClient: llmClient,
		catalog:   catalog,
		mapping:   mapping,
		presets:   presets,
		logger:    logger.Named("intent"),
	}
}

func (s *intentService) Infer(ctx context.Context, database, text, title string) (*InferResult, error) {
	if preset, ok := s.presets.MatchText(text); ok {
		s.logger.Info("Returning static preset", zap.String("preset", preset.ID()), zap.String("database", database))
		return preset.InferResult(), nil
	}

	spec, err := s.ParseIntent(ctx, text, title)
	if err != nil {
		return nil, err
	}

	columns := s.catalog.ListColumns(ctx, database)
	suggested := s.mapping.MapTerms(ctx, spec, columns)
	insights := s.mapping.ComputeSchemaInsights(spec, suggested, columns)

	s.logger.Info("Inferred report intent",
		zap.String("database", database),
		zap.String("title", spec.Title),
		zap.Int("coverage_percent", insights.CoveragePercent))

	return &InferResult{
		Spec:             SpecToPayload(spec),
		SuggestedMapping: suggested,
		AvailableColumns: columns,
		SchemaInsights:   insights,
	}, nil
}

func (s *intentService) ParseIntent(ctx context.Context, text, title string) (*models.NLSpec, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultReportTitle
	}
	text = strings.TrimSpace(text)

	if text != "" && s.llmClient != nil {
		spec, err := s.parseWithLLM(ctx, text, title)
		if err == nil {
			return spec, nil
		}
		s.logger.Warn("LLM intent parsing failed, using rules", zap.Error(err))
	}
	return ParseIntentRules(text, title), nil
}

func (s *intentService) parseWithLLM(ctx context.Context, text, title string) (*models.NLSpec, error) {
	prompt := fmt.Sprintf("TITLE: %s\nTEXT: %s\nJSON_SCHEMA: %s\nReturn valid JSON.", title, text, intentSchema)

	result, err := s.llmClient.GenerateResponse(llm.WithPurpose(ctx, llm.PurposeIntent), prompt, intentSystemMessage, 0, true)
	if err != nil {
		return nil, err
	}

	spec, err := llm.ParseJSONResponse[models.NLSpec](result.Content)
	if err != nil {
		return nil, fmt.Errorf("parse intent response: %w", err)
	}
	if err := validateSpec(&spec); err != nil {
		return nil, err
	}
	if spec.Title == "" {
		spec.Title = title
	}
	return &spec, nil
}

func validateSpec(spec *models.NLSpec) error {
	switch spec.Grain {
	case "":
		spec.Grain = models.GrainNone
	case models.GrainDay, models.GrainWeek, models.GrainMonth, models.GrainQuarter, models.GrainYear, models.GrainNone:
	default:
		return fmt.Errorf("invalid grain %q", spec.Grain)
	}
	if spec.Chart != nil {
		switch spec.Chart.Type {
		case "table", "line", "bar", "pie":
		default:
			return fmt.Errorf("invalid chart type %q", spec.Chart.Type)
		}
	}
	for i, f := range spec.Filters {
		if f.Field == "" || f.Operator == "" {
			return fmt.Errorf("filter %d: field and operator are required", i)
		}
	}
	if spec.Metrics == nil {
		spec.Metrics = []string{}
	}
	if spec.Dimensions == nil {
		spec.Dimensions = []string{}
	}
	if spec.Filters == nil {
		spec.Filters = []models.IntentFilter{}
	}
	return nil
}

// ParseIntentRules is the keyword-based intent parser.
func ParseIntentRules(text, title string) *models.NLSpec {
	lowered := strings.ToLower(text)

	metrics := containedKeywords(lowered, metricKeywords)
	if len(metrics) == 0 {
		metrics = []string{"count"}
	}
	dimensions := containedKeywords(lowered, dimensionKeywords)
	grain := detectGrain(lowered)

	filters := []models.IntentFilter{}
	if dates := isoDatePattern.FindAllString(text, -1); len(dates) >= 2 {
		filters = append(filters,
			models.IntentFilter{Field: "date", Operator: ">=", Value: dates[0]},
			models.IntentFilter{Field: "date", Operator: "<=", Value: dates[1]},
		)
	}
	if m := lastNPattern.FindStringSubmatch(lowered); m != nil {
		filters = append(filters, models.IntentFilter{
			Field:    "date",
			Operator: ">=",
			Value:    fmt.Sprintf("last_%s_%s", m[2], m[1]),
		})
	}
	if m := inListPattern.FindStringSubmatch(text); m != nil {
		parts := strings.Split(m[1], " and ")
		values := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				values = append(values, p)
			}
		}
		if len(values) > 0 {
			filters = append(filters, models.IntentFilter{Field: "region", Operator: "in", Value: strings.Join(values, ",")})
		}
	}

	var chart *models.ChartIntent
	if strings.Contains(lowered, "trend") || grain == models.GrainMonth || grain == models.GrainQuarter || grain == models.GrainYear {
		x := grain
		if x == models.GrainNone {
			x = "date"
		}
		chart = &models.ChartIntent{Type: "line", X: x, Y: metrics[0]}
		for _, d := range dimensions {
			if d == "region" {
				chart.Series = []string{"region"}
			}
		}
	}

	return &models.NLSpec{
		Title:      title,
		Metrics:    metrics,
		Dimensions: dimensions,
		Filters:    filters,
		Grain:      grain,
		Chart:      chart,
	}
}

func containedKeywords(text string, keywords []string) []string {
	found := []string{}
	for _, k := range keywords {
		if strings.Contains(text, k) {
			found = append(found, k)
		}
	}
	return found
}

func detectGrain(lowered string) string {
	for _, g := range grainCandidates {
		if grainPatterns[g].MatchString(lowered) {
			return g
		}
	}
	if strings.Contains(lowered, "monthly") {
		return models.GrainMonth
	}
	return models.GrainNone
}

// SpecToPayload converts a parsed spec to the API-facing spec. Filters carry
// both operator keys, grain "none" becomes null, and the default sort is the
// grain ascending or else the first metric descending.
func SpecToPayload(spec *models.NLSpec) *models.ReportSpec {
	payload := &models.ReportSpec{
		Title:      spec.Title,
		Metrics:    spec.Metrics,
		Dimensions: spec.Dimensions,
		Filters:    make([]models.SpecFilter, 0, len(spec.Filters)),
		Grain:      models.Grain(spec.Grain),
		Chart:      spec.Chart,
	}
	for _, f := range spec.Filters {
		payload.Filters = append(payload.Filters, models.SpecFilter{
			Field:    f.Field,
			Operator: f.Operator,
			Op:       f.Operator,
			Value:    f.Value,
		})
	}

	switch {
	case spec.Grain != "" && spec.Grain != models.GrainNone:
		payload.Sort = []models.SortItem{{Field: spec.Grain, Dir: "asc"}}
	case len(spec.Metrics) > 0:
		payload.Sort = []models.SortItem{{Field: spec.Metrics[0], Dir: "desc"}}
	}
	return payload
}
