//go:build integration

package mssql

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-reports/pkg/testhelpers"
)

func newIntegrationAdapter(t *testing.T) *Adapter {
	t.Helper()
	server := testhelpers.GetTestSQLServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	adapter, err := NewAdapter(ctx, &Config{
		Host:              server.Host,
		Port:              server.Port,
		Database:          server.Database,
		Username:          server.User,
		Password:          server.Password,
		ConnectionTimeout: DefaultConnectionTimeout,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = adapter.Close() })
	return adapter
}

func TestIntegration_DescribeFirstResultSet(t *testing.T) {
	adapter := newIntegrationAdapter(t)

	cols, err := adapter.DescribeFirstResultSet(context.Background(),
		"SELECT TOP 5 Id, CreatedAt, CustomerName FROM dbo.Customers WHERE CreatedAt BETWEEN @From AND @To")
	require.NoError(t, err)
	require.Len(t, cols, 3)

	assert.Equal(t, "Id", cols[0].Name)
	assert.Equal(t, "int", cols[0].SQLType)
	assert.Equal(t, "datetime2(7)", cols[1].SQLType)
	assert.Equal(t, "nvarchar(200)", cols[2].SQLType)
}

func TestIntegration_DescribeSchemaOnly(t *testing.T) {
	adapter := newIntegrationAdapter(t)

	cols, err := adapter.DescribeSchemaOnly(context.Background(),
		"SELECT Id, Balance FROM dbo.Customers WHERE Region = @Region")
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, "int", cols[0].SQLType)
	assert.Equal(t, "decimal", cols[1].SQLType)

	// FMTONLY must be off again for the next query on the pool.
	result, err := adapter.Preview(context.Background(), "SELECT Id FROM dbo.Customers", nil, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, result.RowCount)
}

func TestIntegration_PreviewWithParameter(t *testing.T) {
	adapter := newIntegrationAdapter(t)

	result, err := adapter.Preview(context.Background(),
		"SELECT CustomerName FROM dbo.Customers WHERE Region = @Region ORDER BY CustomerName",
		map[string]any{"Region": "West"}, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, result.RowCount)
}

func TestIntegration_Catalog(t *testing.T) {
	adapter := newIntegrationAdapter(t)
	ctx := context.Background()

	dbs, err := adapter.ListDatabases(ctx)
	require.NoError(t, err)
	assert.Contains(t, dbs, "ReportsTest")

	cols, err := adapter.ListColumns(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, cols)

	values, err := adapter.SampleValues(ctx, "dbo", "Customers", "Region", 5)
	require.NoError(t, err)
	assert.NotEmpty(t, values)
}
