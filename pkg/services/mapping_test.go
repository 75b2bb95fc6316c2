package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-reports/pkg/llm"
	"github.com/ekaya-inc/ekaya-reports/pkg/models"
)

func TestNormalizeTerm(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Order Dates", "order date"},
		{"[dbo].[Orders].[Order_Date]", "dbo order order date"},
		{"categories", "category"},
		{"  Revenue!! ", "revenue"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeTerm(tt.in))
		})
	}
}

func TestTokenSetRatio(t *testing.T) {
	assert.Equal(t, 100.0, tokenSetRatio("order date", "dbo order order date"))
	assert.Equal(t, 100.0, tokenSetRatio("region", "region"))
	assert.Equal(t, 0.0, tokenSetRatio("", "region"))
	assert.InDelta(t, 100*(1-3.0/7), tokenSetRatio("kitten", "sitting"), 0.001)
	assert.Less(t, tokenSetRatio("revenue", "quantity"), 40.0)
}

func TestCandidatePool(t *testing.T) {
	columns := DemoColumns()
	names := func(cols []models.ColumnMetadata) []string {
		out := make([]string, len(cols))
		for i, c := range cols {
			out[i] = c.Column
		}
		return out
	}

	assert.Equal(t, []string{"Quantity", "SalesAmount"}, names(candidatePool(models.RoleMetric, "revenue", columns)))
	assert.Equal(t, []string{"OrderDate"}, names(candidatePool(models.RoleDimension, "order date", columns)))
	assert.Equal(t, []string{"OrderDate", "Region", "Product"}, names(candidatePool(models.RoleDimension, "region", columns)))

	textOnly := []models.ColumnMetadata{models.NewColumnMetadata("dbo", "T", "Name", "nvarchar")}
	assert.Equal(t, []string{"Name"}, names(candidatePool(models.RoleMetric, "revenue", textOnly)), "empty pool falls back to all columns")
}

func TestMapTerms_FuzzyMatch(t *testing.T) {
	svc := NewMappingService(nil, zaptest.NewLogger(t))
	spec := &models.NLSpec{Metrics: []string{"quantity", "zzz"}, Dimensions: []string{"products"}}

	got := svc.MapTerms(context.Background(), spec, DemoColumns())
	require.Len(t, got, 3)

	assert.Equal(t, models.SuggestedMappingItem{
		Term:       "quantity",
		Role:       models.RoleMetric,
		Column:     "[dbo].[FactSales].[Quantity]",
		Confidence: 1,
		Reason:     "Matched column name 'Quantity'",
	}, got[0])

	assert.Equal(t, "zzz", got[1].Term)
	assert.Empty(t, got[1].Column)
	assert.Equal(t, reasonNoMatch, got[1].Reason)

	assert.Equal(t, models.RoleDimension, got[2].Role)
	assert.Equal(t, "[dbo].[FactSales].[Product]", got[2].Column)
}

func TestMapTerms_NonNumericMetricReason(t *testing.T) {
	svc := NewMappingService(nil, zaptest.NewLogger(t))
	columns := []models.ColumnMetadata{models.NewColumnMetadata("dbo", "Orders", "Status", "varchar")}

	got := svc.MapTerms(context.Background(), &models.NLSpec{Metrics: []string{"status"}}, columns)
	require.Len(t, got, 1)
	assert.Equal(t, "Best available non-numeric column 'Status'", got[0].Reason)
}

func TestMapTerms_Rerank(t *testing.T) {
	columns := []models.ColumnMetadata{
		models.NewColumnMetadata("dbo", "Sales", "Amount", "decimal"),
		models.NewColumnMetadata("dbo", "Orders", "Amount", "decimal"),
	}
	spec := &models.NLSpec{Metrics: []string{"amount"}}

	t.Run("picks the index the model returns", func(t *testing.T) {
		mock := llm.NewMockLLMClient(`{"index":1}`)
		svc := NewMappingService(mock, zaptest.NewLogger(t))

		got := svc.MapTerms(context.Background(), spec, columns)
		require.Len(t, got, 1)
		assert.Equal(t, "[dbo].[Orders].[Amount]", got[0].Column)
		require.Equal(t, 1, mock.Calls())
		assert.Contains(t, mock.Prompts()[0], "Term: amount")
		assert.Contains(t, mock.Prompts()[0], "dbo.Orders.Amount")
	})

	t.Run("out of range index keeps fuzzy ranking", func(t *testing.T) {
		svc := NewMappingService(llm.NewMockLLMClient(`{"index":7}`), zaptest.NewLogger(t))

		got := svc.MapTerms(context.Background(), spec, columns)
		assert.Equal(t, "[dbo].[Sales].[Amount]", got[0].Column)
	})

	t.Run("single candidate skips the model", func(t *testing.T) {
		mock := llm.NewMockLLMClient(`{"index":0}`)
		svc := NewMappingService(mock, zaptest.NewLogger(t))

		svc.MapTerms(context.Background(), spec, columns[:1])
		assert.Equal(t, 0, mock.Calls())
	})
}

func TestMapTerms_NilSpec(t *testing.T) {
	svc := NewMappingService(nil, nil)
	assert.Empty(t, svc.MapTerms(context.Background(), nil, DemoColumns()))
}

func TestComputeSchemaInsights(t *testing.T) {
	svc := NewMappingService(nil, zaptest.NewLogger(t))
	spec := &models.NLSpec{Metrics: []string{"revenue", "quantity"}, Dimensions: []string{"region"}}
	columns := DemoColumns()

	insights := svc.ComputeSchemaInsights(spec, svc.MapTerms(context.Background(), spec, columns), columns)

	assert.Equal(t, 67, insights.CoveragePercent)
	assert.Equal(t, []string{"quantity", "region"}, insights.MatchedFields)
	require.Len(t, insights.MissingFields, 1)
	assert.Equal(t, "revenue", insights.MissingFields[0].Name)
	assert.NotEmpty(t, insights.MissingFields[0].Suggestions)
	assert.LessOrEqual(t, len(insights.MissingFields[0].Suggestions), maxSuggestions)
}

func TestComputeSchemaInsights_EmptySpec(t *testing.T) {
	svc := NewMappingService(nil, nil)
	insights := svc.ComputeSchemaInsights(&models.NLSpec{}, nil, nil)

	assert.Equal(t, 0, insights.CoveragePercent)
	assert.Empty(t, insights.MatchedFields)
	assert.NotNil(t, insights.MissingFields)
}
