package services

import (
	"context"
	"errors"

	"github.com/ekaya-inc/ekaya-reports/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-reports/pkg/models"
)

// fakeSession is an in-memory datasource.Session.
type fakeSession struct {
	describeFirst []datasource.DescribedColumn
	describeErr   error
	schemaOnly    []datasource.DescribedColumn
	schemaOnlyErr error

	previewFunc func(query string, params map[string]any, limit int) (*datasource.QueryExecutionResult, error)

	databases  []string
	columns    []models.ColumnMetadata
	catalogErr error
	samples    map[string][]string

	describeCalls   int
	schemaOnlyCalls int
	closed          bool
}

func (f *fakeSession) DescribeFirstResultSet(ctx context.Context, query string) ([]datasource.DescribedColumn, error) {
	f.describeCalls++
	return f.describeFirst, f.describeErr
}

func (f *fakeSession) DescribeSchemaOnly(ctx context.Context, query string) ([]datasource.DescribedColumn, error) {
	f.schemaOnlyCalls++
	return f.schemaOnly, f.schemaOnlyErr
}

func (f *fakeSession) Preview(ctx context.Context, query string, params map[string]any, limit int) (*datasource.QueryExecutionResult, error) {
	if f.previewFunc == nil {
		return &datasource.QueryExecutionResult{Rows: []map[string]any{}}, nil
	}
	return f.previewFunc(query, params, limit)
}

func (f *fakeSession) ListDatabases(ctx context.Context) ([]string, error) {
	return f.databases, f.catalogErr
}

func (f *fakeSession) ListColumns(ctx context.Context) ([]models.ColumnMetadata, error) {
	return f.columns, f.catalogErr
}

func (f *fakeSession) SampleValues(ctx context.Context, schema, table, column string, limit int) ([]string, error) {
	values := f.samples[schema+"."+table+"."+column]
	if len(values) > limit {
		values = values[:limit]
	}
	return values, f.catalogErr
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

// fakeFactory hands out one session and records the requested databases.
type fakeFactory struct {
	session  *fakeSession
	openErr  error
	opened   []string
	disabled bool
}

func (f *fakeFactory) Open(ctx context.Context, database string) (datasource.Session, error) {
	f.opened = append(f.opened, database)
	if f.openErr != nil {
		return nil, f.openErr
	}
	if f.session == nil {
		return nil, errors.New("no session")
	}
	return f.session, nil
}

func (f *fakeFactory) Available() bool {
	return !f.disabled
}
