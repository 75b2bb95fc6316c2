package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-reports/pkg/llm"
	"github.com/ekaya-inc/ekaya-reports/pkg/models"
)

func TestParseIntentRules(t *testing.T) {
	tests := []struct {
		name string
		text string
		want *models.NLSpec
	}{
		{
			name: "monthly trend with region list",
			text: "Monthly revenue by region in North and South",
			want: &models.NLSpec{
				Title:      "T",
				Metrics:    []string{"revenue"},
				Dimensions: []string{"region"},
				Filters:    []models.IntentFilter{{Field: "region", Operator: "in", Value: "North,South"}},
				Grain:      models.GrainMonth,
				Chart:      &models.ChartIntent{Type: "line", X: "month", Y: "revenue", Series: []string{"region"}},
			},
		},
		{
			name: "relative window",
			text: "Sales per day last 3 months",
			want: &models.NLSpec{
				Title:      "T",
				Metrics:    []string{"sales"},
				Dimensions: []string{},
				Filters:    []models.IntentFilter{{Field: "date", Operator: ">=", Value: "last_month_3"}},
				Grain:      models.GrainDay,
			},
		},
		{
			name: "date range",
			text: "orders by product between 2024-01-01 and 2024-03-31",
			want: &models.NLSpec{
				Title:      "T",
				Metrics:    []string{"orders"},
				Dimensions: []string{"product"},
				Filters: []models.IntentFilter{
					{Field: "date", Operator: ">=", Value: "2024-01-01"},
					{Field: "date", Operator: "<=", Value: "2024-03-31"},
				},
				Grain: models.GrainNone,
			},
		},
		{
			name: "trend without grain charts by date",
			text: "profit trend",
			want: &models.NLSpec{
				Title:      "T",
				Metrics:    []string{"profit"},
				Dimensions: []string{},
				Filters:    []models.IntentFilter{},
				Grain:      models.GrainNone,
				Chart:      &models.ChartIntent{Type: "line", X: "date", Y: "profit"},
			},
		},
		{
			name: "empty text counts rows",
			text: "",
			want: &models.NLSpec{
				Title:      "T",
				Metrics:    []string{"count"},
				Dimensions: []string{},
				Filters:    []models.IntentFilter{},
				Grain:      models.GrainNone,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseIntentRules(tt.text, "T")
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("spec mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func newTestIntentService(t *testing.T, client llm.LLMClient) IntentService {
	t.Helper()
	presets, err := LoadPresets()
	require.NoError(t, err)
	logger := zaptest.NewLogger(t)
	return NewIntentService(
		client,
		NewCatalogService(&fakeFactory{disabled: true}, logger),
		NewMappingService(nil, logger),
		presets,
		logger,
	)
}

func TestParseIntent_UsesLLM(t *testing.T) {
	mock := llm.NewMockLLMClient(`{"metrics":["revenue"],"dimensions":["country"],"filters":[],"grain":"quarter","chart":{"type":"bar","x":"quarter","y":"revenue"}}`)
	svc := newTestIntentService(t, mock)

	spec, err := svc.ParseIntent(context.Background(), "quarterly revenue by country", "  ")
	require.NoError(t, err)

	assert.Equal(t, DefaultReportTitle, spec.Title)
	assert.Equal(t, []string{"revenue"}, spec.Metrics)
	assert.Equal(t, []string{"country"}, spec.Dimensions)
	assert.Equal(t, models.GrainQuarter, spec.Grain)
	assert.Equal(t, "bar", spec.Chart.Type)

	require.Equal(t, 1, mock.Calls())
	assert.Contains(t, mock.Prompts()[0], "TEXT: quarterly revenue by country")
	assert.Contains(t, mock.Prompts()[0], "JSON_SCHEMA:")
}

func TestParseIntent_LLMFilterValues(t *testing.T) {
	mock := llm.NewMockLLMClient(`{"metrics":["sales"],"dimensions":["region"],"filters":[` +
		`{"field":"year","operator":"=","value":2024},` +
		`{"field":"region","operator":"in","value":["West","South"]}],"grain":"month"}`)
	svc := newTestIntentService(t, mock)

	spec, err := svc.ParseIntent(context.Background(), "monthly sales by region for 2024 in West and South", "Sales")
	require.NoError(t, err)

	assert.Equal(t, []models.IntentFilter{
		{Field: "year", Operator: "=", Value: "2024"},
		{Field: "region", Operator: "in", Value: "West,South"},
	}, spec.Filters)
}

func TestParseIntent_FallsBackToRules(t *testing.T) {
	tests := []struct {
		name   string
		client *llm.MockLLMClient
	}{
		{name: "invalid grain", client: llm.NewMockLLMClient(`{"metrics":["sales"],"grain":"hourly"}`)},
		{name: "invalid chart", client: llm.NewMockLLMClient(`{"metrics":["sales"],"chart":{"type":"radar"}}`)},
		{name: "filter without operator", client: llm.NewMockLLMClient(`{"metrics":["sales"],"filters":[{"field":"date"}]}`)},
		{name: "not json", client: llm.NewMockLLMClient(`I cannot help with that`)},
		{
			name: "provider error",
			client: &llm.MockLLMClient{GenerateResponseFunc: func(context.Context, string, string, float64, bool) (*llm.GenerateResponseResult, error) {
				return nil, errors.New("rate limited")
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestIntentService(t, tt.client)

			spec, err := svc.ParseIntent(context.Background(), "revenue by region", "Regional")
			require.NoError(t, err)
			assert.Equal(t, ParseIntentRules("revenue by region", "Regional"), spec)
		})
	}
}

func TestParseIntent_CanceledContext(t *testing.T) {
	svc := newTestIntentService(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.ParseIntent(ctx, "revenue", "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSpecToPayload(t *testing.T) {
	t.Run("grain sorts ascending", func(t *testing.T) {
		spec := ParseIntentRules("Monthly revenue by region in North", "T")
		payload := SpecToPayload(spec)

		assert.Equal(t, []models.SortItem{{Field: "month", Dir: "asc"}}, payload.Sort)
		require.Len(t, payload.Filters, 1)
		assert.Equal(t, "in", payload.Filters[0].Operator)
		assert.Equal(t, "in", payload.Filters[0].Op)
	})

	t.Run("no grain sorts first metric descending and serialises null grain", func(t *testing.T) {
		payload := SpecToPayload(ParseIntentRules("sales by product", "T"))
		assert.Equal(t, []models.SortItem{{Field: "sales", Dir: "desc"}}, payload.Sort)

		data, err := json.Marshal(payload)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"grain":null`)
	})
}

func TestInfer_StaticPreset(t *testing.T) {
	mock := llm.NewMockLLMClient()
	svc := newTestIntentService(t, mock)

	trigger := "  RETURNS SUMMED QUANTITY1/2/3 PER ITEM AND INVENTORY COUNT (NON-DELETED, APPROVED COUNTS AFTER 2025‑10‑04) "
	result, err := svc.Infer(context.Background(), "Inventory", trigger, "")
	require.NoError(t, err)

	assert.Equal(t, "static-summed-Quantity-v1", result.Spec.StaticPresetID)
	assert.Equal(t, 100, result.SchemaInsights.CoveragePercent)
	assert.Len(t, result.SuggestedMapping, 6)
	assert.Equal(t, 0, mock.Calls())
}

func TestInfer_MapsAgainstDemoCatalog(t *testing.T) {
	svc := newTestIntentService(t, nil)

	result, err := svc.Infer(context.Background(), DemoDatabase, "Monthly revenue by region", "Regional revenue")
	require.NoError(t, err)

	assert.Equal(t, "Regional revenue", result.Spec.Title)
	assert.Equal(t, models.Grain(models.GrainMonth), result.Spec.Grain)
	assert.Len(t, result.AvailableColumns, len(DemoColumns()))

	require.Len(t, result.SuggestedMapping, 2)
	assert.Equal(t, "revenue", result.SuggestedMapping[0].Term)
	assert.Empty(t, result.SuggestedMapping[0].Column)
	assert.Equal(t, "[dbo].[FactSales].[Region]", result.SuggestedMapping[1].Column)
	assert.Equal(t, 1.0, result.SuggestedMapping[1].Confidence)

	assert.Equal(t, 50, result.SchemaInsights.CoveragePercent)
	assert.Equal(t, []string{"region"}, result.SchemaInsights.MatchedFields)
	require.Len(t, result.SchemaInsights.MissingFields, 1)
	assert.Equal(t, "revenue", result.SchemaInsights.MissingFields[0].Name)
}
