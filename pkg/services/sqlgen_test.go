package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-reports/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-reports/pkg/llm"
	"github.com/ekaya-inc/ekaya-reports/pkg/models"
)

var salesMapping = []models.Mapping{
	{Term: "date", Column: "dbo.FactSales.OrderDate", Role: models.RoleTime},
	{Term: "region", Column: "dbo.FactSales.Region", Role: models.RoleDimension},
	{Term: "revenue", Column: "dbo.FactSales.SalesAmount", Role: models.RoleMetric},
}

func TestBuildSQL_MonthlyByRegion(t *testing.T) {
	spec := &models.ReportSpec{
		Grain:   models.GrainMonth,
		Filters: []models.SpecFilter{{Field: "dbo.FactSales.Region", Op: "=", Value: "North"}},
		Sort:    []models.SortItem{{Field: "MonthBucket", Dir: "asc"}},
	}

	sqlText, params := BuildSQL(spec, salesMapping)

	want := strings.Join([]string{
		"SELECT",
		"    DATEFROMPARTS(YEAR(dbo.FactSales.OrderDate), MONTH(dbo.FactSales.OrderDate), 1) AS [MonthBucket],",
		"    dbo.FactSales.Region AS [Region],",
		"    SUM(dbo.FactSales.SalesAmount) AS [SalesAmount]",
		"FROM dbo.FactSales",
		"WHERE dbo.FactSales.Region = @dboFactSalesRegion",
		"GROUP BY DATEFROMPARTS(YEAR(dbo.FactSales.OrderDate), MONTH(dbo.FactSales.OrderDate), 1), dbo.FactSales.Region",
		"ORDER BY MonthBucket ASC",
	}, "\n")
	assert.Equal(t, want, sqlText)
	assert.Equal(t, []SQLParam{{Name: "@dboFactSalesRegion", RDLType: models.ParamTypeString, Value: "North"}}, params)
}

func TestBuildSQL_TimeBuckets(t *testing.T) {
	tests := []struct {
		grain models.Grain
		want  string
	}{
		{models.GrainDay, "CAST(d AS DATE) AS [DayBucket]"},
		{models.GrainWeek, "DATEADD(day, -DATEPART(weekday, d) + 1, CAST(d AS DATE)) AS [WeekBucket]"},
		{models.GrainQuarter, "DATEFROMPARTS(YEAR(d), ((DATEPART(quarter, d)-1)*3)+1, 1) AS [QuarterBucket]"},
		{models.GrainYear, "DATEFROMPARTS(YEAR(d), 1, 1) AS [YearBucket]"},
		{"", "d AS [d]"},
	}
	for _, tt := range tests {
		t.Run(string(tt.grain), func(t *testing.T) {
			sqlText, _ := BuildSQL(&models.ReportSpec{Grain: tt.grain}, []models.Mapping{{Term: "date", Column: "d", Role: models.RoleTime}})
			assert.Contains(t, sqlText, tt.want)
		})
	}
}

func TestBuildSQL_RowCountAndInFilter(t *testing.T) {
	spec := &models.ReportSpec{
		Filters: []models.SpecFilter{
			{Field: "region", Operator: "in", Value: "North,South"},
			{Field: "OrderDate", Operator: ">=", Param: "@StartDate"},
		},
	}
	mapping := []models.Mapping{{Term: "region", Column: "[dbo].[Orders].[Region]", Role: models.RoleDimension}}

	sqlText, params := BuildSQL(spec, mapping)

	assert.Equal(t, strings.Join([]string{
		"SELECT",
		"    [dbo].[Orders].[Region] AS [Region],",
		"    COUNT(1) AS [RowCount]",
		"FROM [dbo].[Orders]",
		"WHERE region IN (@region) AND OrderDate >= @StartDate",
		"GROUP BY [dbo].[Orders].[Region]",
	}, "\n"), sqlText)
	assert.Equal(t, []SQLParam{
		{Name: "@region", RDLType: models.ParamTypeString, Value: "North,South"},
		{Name: "@StartDate", RDLType: models.ParamTypeDateTime},
	}, params)
}

func TestBuildSQL_DefaultsFromTable(t *testing.T) {
	sqlText, params := BuildSQL(&models.ReportSpec{}, []models.Mapping{{Term: "qty", Column: "Quantity", Role: models.RoleMeasure}})

	assert.Equal(t, "SELECT\n    SUM(Quantity) AS [Quantity]\nFROM dbo.FactSales", sqlText)
	assert.Empty(t, params)
	assert.NotNil(t, params)
}

func TestInferParamType(t *testing.T) {
	tests := map[string]string{
		"OrderDate":   models.ParamTypeDateTime,
		"CreatedTime": models.ParamTypeDateTime,
		"SalesAmount": models.ParamTypeFloat,
		"MinQty":      models.ParamTypeFloat,
		"RowCount":    models.ParamTypeFloat,
		"GrandTotal":  models.ParamTypeFloat,
		"Region":      models.ParamTypeString,
	}
	for name, want := range tests {
		assert.Equal(t, want, InferParamType(name), name)
	}
}

func TestColumnsForSQL(t *testing.T) {
	sqlText, _ := BuildSQL(&models.ReportSpec{Grain: models.GrainMonth}, salesMapping)

	columns := ColumnsForSQL(sqlText, salesMapping)
	require.Len(t, columns, 3)

	assert.Equal(t, "MonthBucket", columns[0].Name)
	assert.Equal(t, models.RoleTime, columns[0].Role)
	assert.Equal(t, models.ParamTypeDateTime, columns[0].RDLType)

	assert.Equal(t, "Region", columns[1].Name)
	assert.Equal(t, "dbo.FactSales.Region", columns[1].Source)
	assert.Equal(t, models.RoleDimension, columns[1].Role)

	assert.Equal(t, "SalesAmount", columns[2].Name)
	assert.Equal(t, models.RoleMeasure, columns[2].Role)
	assert.Equal(t, models.ParamTypeFloat, columns[2].RDLType)
	assert.Equal(t, "SUM", columns[2].Agg)

	assert.Empty(t, ColumnsForSQL("EXEC dbo.Report", nil))
}

func TestGenerateSQL_RequiresMappedColumn(t *testing.T) {
	svc := NewSQLGenerationService(nil, nil, zaptest.NewLogger(t))

	_, err := svc.GenerateSQL(context.Background(), &GenerateSQLRequest{
		DB:      "Sales",
		Mapping: []models.Mapping{{Term: "revenue", Role: models.RoleMetric}},
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidMapping)
}

func TestGenerateSQL_StaticPreset(t *testing.T) {
	presets, err := LoadPresets()
	require.NoError(t, err)
	mock := llm.NewMockLLMClient()
	svc := NewSQLGenerationService(mock, presets, zaptest.NewLogger(t))

	result, err := svc.GenerateSQL(context.Background(), &GenerateSQLRequest{
		DB:   "Inventory",
		Spec: models.ReportSpec{StaticPresetID: staticPresetID},
	})
	require.NoError(t, err)

	preset, _ := presets.ByID(staticPresetID)
	assert.Equal(t, preset.SQL(), result.SQL)
	assert.Empty(t, result.Params)
	assert.NotNil(t, result.Params)

	names := make([]string, len(result.Columns))
	for i, c := range result.Columns {
		names[i] = c.Name
	}
	assert.Equal(t, []string{"ItemId", "Quantity1", "Quantity2", "Quantity3", "Date", "InventoryCountId"}, names)
	assert.Equal(t, 0, mock.Calls())
}

func TestGenerateSQL_WithoutLLMUsesBuilder(t *testing.T) {
	svc := NewSQLGenerationService(nil, nil, zaptest.NewLogger(t))
	req := &GenerateSQLRequest{DB: "Sales", Mapping: salesMapping, Spec: models.ReportSpec{Grain: models.GrainMonth}}

	result, err := svc.GenerateSQL(context.Background(), req)
	require.NoError(t, err)

	want, _ := BuildSQL(&req.Spec, salesMapping)
	assert.Equal(t, want, result.SQL)
	assert.Len(t, result.Columns, 3)
}

func TestGenerateSQL_LLM(t *testing.T) {
	mock := llm.NewMockLLMClient(`{
		"sql": "SELECT Region, SUM(SalesAmount) AS Total FROM dbo.FactSales WHERE OrderDate >= @StartDate GROUP BY Region",
		"params": [{"name": "StartDate"}, {"name": "@MinAmount", "rdlType": "Float", "value": 10}, {"rdlType": "String"}]
	}`)
	svc := NewSQLGenerationService(mock, nil, zaptest.NewLogger(t))

	result, err := svc.GenerateSQL(context.Background(), &GenerateSQLRequest{DB: "Sales", Mapping: salesMapping})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(result.SQL, "SELECT Region, SUM(SalesAmount) AS Total"))
	assert.Equal(t, []SQLParam{
		{Name: "@StartDate", RDLType: models.ParamTypeDateTime},
		{Name: "@MinAmount", RDLType: models.ParamTypeFloat, Value: float64(10)},
	}, result.Params)

	require.Len(t, result.Columns, 2)
	assert.Equal(t, "Region", result.Columns[0].Name)
	assert.Equal(t, "dbo.FactSales.Region", result.Columns[0].Source)
	assert.Equal(t, "Total", result.Columns[1].Name)

	require.Equal(t, 1, mock.Calls())
	prompt := mock.Prompts()[0]
	assert.Contains(t, prompt, `"database": "Sales"`)
	assert.Contains(t, prompt, `"dialect": "SQL Server"`)
	assert.Contains(t, prompt, `"column": "dbo.FactSales.SalesAmount"`)
}

func TestGenerateSQL_LLMFailureFallsBackToBuilder(t *testing.T) {
	tests := []struct {
		name   string
		client *llm.MockLLMClient
	}{
		{name: "empty sql", client: llm.NewMockLLMClient(`{"sql": "  ", "params": []}`)},
		{name: "not json", client: llm.NewMockLLMClient(`SELECT 1`)},
		{
			name: "provider error",
			client: &llm.MockLLMClient{GenerateResponseFunc: func(context.Context, string, string, float64, bool) (*llm.GenerateResponseResult, error) {
				return nil, errors.New("circuit open")
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewSQLGenerationService(tt.client, nil, zaptest.NewLogger(t))
			req := &GenerateSQLRequest{DB: "Sales", Mapping: salesMapping}

			result, err := svc.GenerateSQL(context.Background(), req)
			require.NoError(t, err)

			want, _ := BuildSQL(&req.Spec, salesMapping)
			assert.Equal(t, want, result.SQL)
		})
	}
}
