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
	"github.com/ekaya-inc/ekaya-reports/pkg/models"
	"github.com/ekaya-inc/ekaya-reports/pkg/rdl"
	"github.com/ekaya-inc/ekaya-reports/pkg/ssrs"
)

type fakePublisher struct {
	createErr error
	bindErr   error
	restOK    bool

	folder     string
	name       string
	definition []byte
	boundPath  string
	boundName  string
	boundRef   string
	restID     string
	restRefs   []ssrs.DataSourceRef
}

func (f *fakePublisher) CreateCatalogItem(ctx context.Context, folder, name string, definition []byte) (*ssrs.CatalogItem, error) {
	f.folder, f.name, f.definition = folder, name, definition
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &ssrs.CatalogItem{ID: "item-1", Name: name, Path: strings.TrimRight(folder, "/") + "/" + name}, nil
}

func (f *fakePublisher) SetItemDataSources(ctx context.Context, itemPath, dataSourceName, reference string) error {
	f.boundPath, f.boundName, f.boundRef = itemPath, dataSourceName, reference
	return f.bindErr
}

func (f *fakePublisher) SetReportDataSources(ctx context.Context, id, itemPath string, refs []ssrs.DataSourceRef) bool {
	f.restID, f.restRefs = id, refs
	return f.restOK
}

func (f *fakePublisher) SystemInfo(ctx context.Context) map[string]any {
	return map[string]any{"ProductVersion": "15.0"}
}

func (f *fakePublisher) RenderBase() string {
	return "http://ssrs.local/ReportServer"
}

func boolPtr(b bool) *bool { return &b }

func samplePublishRequest() *models.PublishRequest {
	return &models.PublishRequest{
		DB: models.DBRef{Name: "Sales"},
		Report: models.ReportTarget{
			Title:                "Sales By Region",
			SharedDataSourcePath: "/_Shared/MainDS",
		},
		Columns: []models.ColumnDef{
			{Name: "Region", Source: "dbo.FactSales.Region", RDLType: "String", Role: "dimension", DisplayName: "Sales Region"},
			{Name: "Total Sales", Source: "SUM(dbo.FactSales.SalesAmount)", RDLType: "Float", Role: "measure", DisplayName: "Total"},
			{Name: "Internal", Source: "dbo.FactSales.RowGuid", RDLType: "String", Role: "dimension", Include: boolPtr(false)},
		},
		Parameters: []models.ParamDef{
			{Name: "StartDate", RDLType: "DateTime", Default: "2024-01-01", Prompt: "Start date"},
			{Name: "@Region", RDLType: "String"},
		},
		Filters: []models.FilterDef{
			{Field: "dbo.FactSales.OrderDate", Op: ">=", Param: "StartDate"},
			{Field: "dbo.FactSales.Region", Op: "in", Param: "@Region"},
		},
		Sort: []models.SortDef{{Field: "Region", Dir: "asc"}},
	}
}

func TestBuildPublishSQL(t *testing.T) {
	req := samplePublishRequest()

	got := BuildPublishSQL(includedColumns(req.Columns), req.Filters, req.Sort)

	assert.Equal(t, strings.Join([]string{
		"SELECT",
		"    dbo.FactSales.Region AS [Region], SUM(dbo.FactSales.SalesAmount) AS [Total Sales]",
		"FROM dbo.FactSales",
		"WHERE dbo.FactSales.OrderDate >= @StartDate AND dbo.FactSales.Region IN (@Region)",
		"ORDER BY Region ASC",
	}, "\n"), got)
}

func TestBuildPublishSQL_Placeholder(t *testing.T) {
	assert.Equal(t, "SELECT 1 AS Placeholder", BuildPublishSQL(nil, nil, nil))
	assert.Equal(t, "SELECT 1 AS Placeholder", BuildPublishSQL([]models.ColumnDef{{Name: "x"}}, nil, nil))
}

func TestPublish(t *testing.T) {
	publisher := &fakePublisher{restOK: true}
	builder := rdl.NewBuilder().WithIDFunc(func() string { return "fixed-id" })
	svc := NewPublishService(publisher, builder, PublishConfig{DefaultFolder: "/AutoReports"}, zaptest.NewLogger(t))

	req := samplePublishRequest()
	result, err := svc.Publish(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "/AutoReports", publisher.folder)
	assert.Equal(t, "Sales By Region", publisher.name)
	assert.Equal(t, "/AutoReports/Sales By Region", result.Path)

	definition := string(publisher.definition)
	assert.Contains(t, definition, "<DataSource Name=\"MainDataSource\">")
	assert.Contains(t, definition, "<DataSourceReference>/_Shared/MainDS</DataSourceReference>")
	assert.Contains(t, definition, "<DataSet Name=\"SalesByRegion\">")
	assert.Contains(t, definition, "<Field Name=\"Total_Sales\">\n\t\t\t\t\t<DataField>Total Sales</DataField>\n\t\t\t\t\t<rd:TypeName>System.Double</rd:TypeName>")
	assert.NotContains(t, definition, "RowGuid")
	assert.Contains(t, definition, "<ReportParameter Name=\"StartDate\">\n\t\t\t<DataType>DateTime</DataType>\n\t\t\t<Nullable>true</Nullable>\n\t\t\t<Prompt>Start date</Prompt>")
	assert.Contains(t, definition, "<QueryParameter Name=\"@Region\">")
	assert.Contains(t, definition, "<Value>Sales Region</Value>")

	assert.Equal(t, "/AutoReports/Sales By Region", publisher.boundPath)
	assert.Equal(t, "MainDataSource", publisher.boundName)
	assert.Equal(t, "/_Shared/MainDS", publisher.boundRef)
	assert.Equal(t, "item-1", publisher.restID)
	require.Len(t, publisher.restRefs, 1)
	assert.Equal(t, "/_Shared/MainDS", publisher.restRefs[0].DataSourceID)

	assert.Equal(t,
		"http://ssrs.local/ReportServer?/AutoReports/Sales%20By%20Region&rs:Command=Render&rs:Format=PDF&StartDate=2024-01-01&Region=",
		result.RenderURLPDF)
	assert.Equal(t, map[string]any{"ProductVersion": "15.0"}, result.Server)
	assert.Len(t, result.DatasetFields, 3)
	assert.Same(t, req, result.Echo)
}

func TestPublish_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.PublishRequest)
	}{
		{name: "missing title", mutate: func(r *models.PublishRequest) { r.Report.Title = " " }},
		{name: "missing data source", mutate: func(r *models.PublishRequest) { r.Report.SharedDataSourcePath = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			publisher := &fakePublisher{}
			svc := NewPublishService(publisher, nil, PublishConfig{}, zaptest.NewLogger(t))
			req := samplePublishRequest()
			tt.mutate(req)

			_, err := svc.Publish(context.Background(), req)
			assert.ErrorIs(t, err, apperrors.ErrValidation)
			assert.Nil(t, publisher.definition, "nothing uploaded")
		})
	}
}

func TestPublish_Failures(t *testing.T) {
	tests := []struct {
		name      string
		publisher *fakePublisher
	}{
		{name: "upload fails", publisher: &fakePublisher{createErr: &ssrs.FaultError{Code: "soap:Server", Message: "access denied"}}},
		{name: "binding fails", publisher: &fakePublisher{bindErr: errors.New("rsItemNotFound")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewPublishService(tt.publisher, nil, PublishConfig{DefaultFolder: "/AutoReports"}, zaptest.NewLogger(t))
			_, err := svc.Publish(context.Background(), samplePublishRequest())
			assert.ErrorIs(t, err, apperrors.ErrPublish)
		})
	}
}

func TestPublish_NotConfigured(t *testing.T) {
	svc := NewPublishService(nil, nil, PublishConfig{}, zaptest.NewLogger(t))

	_, err := svc.Publish(context.Background(), samplePublishRequest())
	assert.ErrorIs(t, err, apperrors.ErrPublish)
	assert.ErrorIs(t, err, apperrors.ErrNotConfigured)
}

func TestPublish_NoColumnsUsesPlaceholder(t *testing.T) {
	publisher := &fakePublisher{}
	svc := NewPublishService(publisher, nil, PublishConfig{DefaultFolder: "/AutoReports"}, zaptest.NewLogger(t))
	req := samplePublishRequest()
	req.Columns = nil
	req.Filters = nil
	req.Sort = nil

	result, err := svc.Publish(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, string(publisher.definition), "<CommandText>SELECT 1 AS Placeholder</CommandText>")
	assert.Contains(t, string(publisher.definition), "<Field Name=\"Placeholder\">")
	assert.NotNil(t, result.DatasetFields)
}
