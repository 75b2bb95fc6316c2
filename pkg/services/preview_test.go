package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/ekaya-reports/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-reports/pkg/apperrors"
)

func TestClampPreviewLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, DefaultPreviewLimit},
		{-5, 1},
		{1, 1},
		{42, 42},
		{500, 500},
		{5000, datasource.MaxPreviewLimit},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampPreviewLimit(tt.in), "limit %d", tt.in)
	}
}

func TestPreview_Unconfigured(t *testing.T) {
	svc := NewPreviewService(nil, zaptest.NewLogger(t))

	result, err := svc.Preview(context.Background(), &PreviewRequest{DB: "Sales", SQL: "SELECT 1"})
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"message": "Preview unavailable in this environment"}}, result.Rows)
	assert.Equal(t, 1, result.RowCount)
}

func TestPreview_RunsQuery(t *testing.T) {
	var (
		gotQuery  string
		gotParams map[string]any
		gotLimit  int
	)
	session := &fakeSession{
		previewFunc: func(query string, params map[string]any, limit int) (*datasource.QueryExecutionResult, error) {
			gotQuery, gotParams, gotLimit = query, params, limit
			return &datasource.QueryExecutionResult{
				Rows: []map[string]any{{"Region": "North", "Total": 10.5}, {"Region": "South", "Total": 7.0}},
			}, nil
		},
	}
	factory := &fakeFactory{session: session}
	svc := NewPreviewService(factory, zaptest.NewLogger(t))

	result, err := svc.Preview(context.Background(), &PreviewRequest{
		DB:     "Sales",
		SQL:    "SELECT Region, SUM(Amount) AS Total FROM dbo.Orders WHERE Region = @Region GROUP BY Region ORDER BY Total DESC",
		Params: map[string]any{"@Region": "North", "Year": 2024},
		Limit:  5000,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.RowCount)
	assert.Equal(t, "North", result.Rows[0]["Region"])
	assert.Contains(t, gotQuery, "ORDER BY Total DESC", "ORDER BY handling is left to the session")
	assert.Equal(t, map[string]any{"Region": "North", "Year": 2024}, gotParams)
	assert.Equal(t, datasource.MaxPreviewLimit, gotLimit)
	assert.Equal(t, []string{"Sales"}, factory.opened)
	assert.True(t, session.closed)
}

func TestPreview_Errors(t *testing.T) {
	tests := []struct {
		name    string
		factory *fakeFactory
		sql     string
	}{
		{
			name:    "empty sql",
			factory: &fakeFactory{session: &fakeSession{}},
			sql:     "   ",
		},
		{
			name:    "open fails",
			factory: &fakeFactory{openErr: errors.New("login timeout")},
			sql:     "SELECT 1",
		},
		{
			name: "query fails",
			factory: &fakeFactory{session: &fakeSession{
				previewFunc: func(string, map[string]any, int) (*datasource.QueryExecutionResult, error) {
					return nil, errors.New("Invalid column name 'Foo'")
				},
			}},
			sql: "SELECT Foo FROM dbo.Orders",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewPreviewService(tt.factory, zaptest.NewLogger(t))
			_, err := svc.Preview(context.Background(), &PreviewRequest{DB: "Sales", SQL: tt.sql})
			assert.ErrorIs(t, err, apperrors.ErrPreview)
		})
	}
}

func TestPreview_FlagsSuspiciousParameter(t *testing.T) {
	var bound map[string]any
	session := &fakeSession{
		previewFunc: func(_ string, params map[string]any, _ int) (*datasource.QueryExecutionResult, error) {
			bound = params
			return &datasource.QueryExecutionResult{Rows: []map[string]any{}}, nil
		},
	}
	core, logs := observer.New(zapcore.InfoLevel)
	svc := NewPreviewService(&fakeFactory{session: session}, zap.New(core))

	result, err := svc.Preview(context.Background(), &PreviewRequest{
		DB:     "Sales",
		SQL:    "SELECT Region FROM dbo.Orders WHERE Region = @Region",
		Params: map[string]any{"@Region": "' OR '1'='1", "Year": 2024},
	})

	require.NoError(t, err)
	assert.Equal(t, 0, result.RowCount)
	assert.Equal(t, "' OR '1'='1", bound["Region"])

	entries := logs.FilterMessage("SQL injection attempt detected").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Region", entries[0].ContextMap()["param_name"])
	assert.Equal(t, "Sales", entries[0].ContextMap()["database"])
}

func TestPreview_AuditsExecution(t *testing.T) {
	session := &fakeSession{
		previewFunc: func(string, map[string]any, int) (*datasource.QueryExecutionResult, error) {
			return &datasource.QueryExecutionResult{Rows: []map[string]any{{"Region": "West"}}}, nil
		},
	}
	core, logs := observer.New(zapcore.InfoLevel)
	svc := NewPreviewService(&fakeFactory{session: session}, zap.New(core))

	_, err := svc.Preview(context.Background(), &PreviewRequest{
		DB:     "Sales",
		SQL:    "SELECT Region FROM dbo.Orders WHERE Region = @Region",
		Params: map[string]any{"@Region": "West"},
		Limit:  10,
	})
	require.NoError(t, err)

	entries := logs.FilterMessage("Preview executed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(10), entries[0].ContextMap()["limit"])
	assert.NotContains(t, entries[0].ContextMap()["event_json"], "West")
}
