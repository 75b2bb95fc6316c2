package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reports/pkg/llm"
	"github.com/ekaya-inc/ekaya-reports/pkg/models"
)

const (
	// minMappingConfidence is the score below which a term stays unmapped.
	minMappingConfidence = 0.4
	rerankCandidates     = 3
	maxSuggestions       = 3

	reasonNoMatch = "No confident match found"
)

// Substrings that make a dimension term temporal.
var timeTerms = []string{"date", "day", "week", "month", "quarter", "year", "time"}

const rerankSystemMessage = "Pick the best matching column index. Respond with minified JSON only."

// MappingService matches spec terms to catalog columns.
type MappingService interface {
	// MapTerms maps each metric, then each dimension, to its best column.
	MapTerms(ctx context.Context, spec *models.NLSpec, columns []models.ColumnMetadata) []models.SuggestedMappingItem

	// ComputeSchemaInsights reports coverage and suggests columns for unmapped terms.
	ComputeSchemaInsights(spec *models.NLSpec, mappings []models.SuggestedMappingItem, columns []models.ColumnMetadata) models.SchemaInsights
}

type mappingService struct {
	llmClient llm.LLMClient
	logger    *zap.Logger
}

// NewMappingService creates a mapping service. A nil llmClient disables reranking.
func NewMappingService(llmClient llm.LLMClient, logger *zap.Logger) MappingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &mappingService{llmClient: llmClient, logger: logger.Named("mapping")}
}

type scoredColumn struct {
	column models.ColumnMetadata
	score  float64 // 0..1
}

func (s *mappingService) MapTerms(ctx context.Context, spec *models.NLSpec, columns []models.ColumnMetadata) []models.SuggestedMappingItem {
	if spec == nil {
		return []models.SuggestedMappingItem{}
	}
	mappings := make([]models.SuggestedMappingItem, 0, len(spec.Metrics)+len(spec.Dimensions))
	for _, term := range spec.Metrics {
		mappings = append(mappings, s.mapTerm(ctx, term, models.RoleMetric, columns))
	}
	for _, term := range spec.Dimensions {
		mappings = append(mappings, s.mapTerm(ctx, term, models.RoleDimension, columns))
	}
	return mappings
}

func (s *mappingService) mapTerm(ctx context.Context, term, role string, columns []models.ColumnMetadata) models.SuggestedMappingItem {
	normalized := normalizeTerm(term)
	scored := rankColumns(normalized, candidatePool(role, normalized, columns))

	var best *scoredColumn
	if len(scored) > 0 {
		best = &scored[0]
		if s.llmClient != nil && len(scored) > 1 {
			if picked, ok := s.rerank(ctx, term, scored[:min(rerankCandidates, len(scored))]); ok {
				best = &picked
			}
		}
	}

	if best == nil || best.score < minMappingConfidence {
		confidence := 0.0
		if best != nil {
			confidence = roundConfidence(best.score)
		}
		return models.SuggestedMappingItem{
			Term:       term,
			Role:       role,
			Confidence: confidence,
			Reason:     reasonNoMatch,
		}
	}

	reason := fmt.Sprintf("Matched column name '%s'", best.column.Column)
	if role == models.RoleMetric && !best.column.IsNumeric {
		reason = fmt.Sprintf("Best available non-numeric column '%s'", best.column.Column)
	}
	return models.SuggestedMappingItem{
		Term:       term,
		Role:       role,
		Column:     best.column.QualifiedName(),
		Confidence: roundConfidence(best.score),
		Reason:     reason,
	}
}

// candidatePool narrows columns by role: metrics prefer numeric columns,
// temporal dimensions prefer date-like columns and other dimensions prefer
// non-numeric ones. An empty preference falls back to every column.
func candidatePool(role, normalizedTerm string, columns []models.ColumnMetadata) []models.ColumnMetadata {
	var keep func(models.ColumnMetadata) bool
	switch {
	case role == models.RoleMetric:
		keep = func(c models.ColumnMetadata) bool { return c.IsNumeric }
	case isTimeTerm(normalizedTerm):
		keep = func(c models.ColumnMetadata) bool { return c.IsDateLike }
	default:
		keep = func(c models.ColumnMetadata) bool { return !c.IsNumeric }
	}

	pool := make([]models.ColumnMetadata, 0, len(columns))
	for _, c := range columns {
		if keep(c) {
			pool = append(pool, c)
		}
	}
	if len(pool) == 0 {
		return columns
	}
	return pool
}

func isTimeTerm(normalizedTerm string) bool {
	for _, t := range timeTerms {
		if strings.Contains(normalizedTerm, t) {
			return true
		}
	}
	return false
}

// scoreColumn compares a normalized term against the qualified column name,
// the space-separated "schema table column" label and the bare column name.
func scoreColumn(normalizedTerm string, column models.ColumnMetadata) float64 {
	labels := []string{
		normalizeTerm(column.QualifiedName()),
		normalizeTerm(column.Schema + " " + column.Table + " " + column.Column),
		normalizeTerm(column.Column),
	}
	best := 0.0
	for _, label := range labels {
		best = max(best, tokenSetRatio(normalizedTerm, label))
	}
	return best / 100
}

// rankColumns scores columns and sorts them best first; ties keep catalog order.
func rankColumns(normalizedTerm string, columns []models.ColumnMetadata) []scoredColumn {
	scored := make([]scoredColumn, len(columns))
	for i, c := range columns {
		scored[i] = scoredColumn{column: c, score: scoreColumn(normalizedTerm, c)}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})
	return scored
}

type rerankOption struct {
	Index int     `json:"index"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

type rerankResponse struct {
	Index *int `json:"index"`
}

// rerank asks the LLM to pick among the top candidates. Any failure keeps
// the fuzzy ranking.
func (s *mappingService) rerank(ctx context.Context, term string, candidates []scoredColumn) (scoredColumn, bool) {
	options := make([]rerankOption, len(candidates))
	for i, c := range candidates {
		options[i] = rerankOption{Index: i, Name: c.column.DisplayName(), Score: roundConfidence(c.score)}
	}
	encoded, err := json.Marshal(options)
	if err != nil {
		return scoredColumn{}, false
	}
	prompt := fmt.Sprintf("Term: %s\nCandidates:\n%s\nReturn JSON like {\"index\":0}.", term, encoded)

	result, err := s.llmClient.GenerateResponse(llm.WithPurpose(ctx, llm.PurposeRerank), prompt, rerankSystemMessage, 0, true)
	if err != nil {
		s.logger.Debug("Rerank failed", zap.String("term", term), zap.Error(err))
		return scoredColumn{}, false
	}

	resp, err := llm.ParseJSONResponse[rerankResponse](result.Content)
	if err != nil || resp.Index == nil || *resp.Index < 0 || *resp.Index >= len(candidates) {
		s.logger.Debug("Rerank returned no usable index", zap.String("term", term), zap.Error(err))
		return scoredColumn{}, false
	}
	return candidates[*resp.Index], true
}

func (s *mappingService) ComputeSchemaInsights(spec *models.NLSpec, mappings []models.SuggestedMappingItem, columns []models.ColumnMetadata) models.SchemaInsights {
	insights := models.SchemaInsights{
		MatchedFields: []string{},
		MissingFields: []models.MissingFieldSuggestion{},
	}

	for _, m := range mappings {
		if m.Column != "" {
			insights.MatchedFields = append(insights.MatchedFields, m.Term)
			continue
		}
		insights.MissingFields = append(insights.MissingFields, models.MissingFieldSuggestion{
			Name:        m.Term,
			Suggestions: topSuggestions(m.Term, columns),
		})
	}

	total := 0
	if spec != nil {
		total = len(spec.Metrics) + len(spec.Dimensions)
	}
	if total > 0 {
		insights.CoveragePercent = int(math.Round(100 * float64(len(insights.MatchedFields)) / float64(total)))
	}
	return insights
}

func topSuggestions(term string, columns []models.ColumnMetadata) []string {
	scored := rankColumns(normalizeTerm(term), columns)
	suggestions := []string{}
	for _, c := range scored[:min(maxSuggestions, len(scored))] {
		if c.score > 0 {
			suggestions = append(suggestions, c.column.QualifiedName())
		}
	}
	return suggestions
}

func roundConfidence(score float64) float64 {
	return math.Round(score*100) / 100
}
