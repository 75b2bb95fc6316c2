package datasource

import (
	"context"

	"github.com/ekaya-inc/ekaya-reports/pkg/models"
)

// DescribedColumn is one output column reported by the database engine.
type DescribedColumn struct {
	Name    string `json:"name"`
	SQLType string `json:"sql_type"` // e.g. "nvarchar(50)", "int"
	Hidden  bool   `json:"hidden,omitempty"`
}

// SchemaDescriber asks the database engine for a query's result shape
// without materializing rows.
type SchemaDescriber interface {
	// DescribeFirstResultSet uses the engine's metadata function
	// (sys.dm_exec_describe_first_result_set).
	DescribeFirstResultSet(ctx context.Context, query string) ([]DescribedColumn, error)

	// DescribeSchemaOnly runs the query with schema-only execution
	// (SET FMTONLY ON) and reads the result column types.
	DescribeSchemaOnly(ctx context.Context, query string) ([]DescribedColumn, error)
}

// MaxPreviewLimit is the hard cap on rows returned by Preview.
const MaxPreviewLimit = 500

// QueryExecutor runs bounded read queries.
type QueryExecutor interface {
	// Preview runs query wrapped in SELECT TOP (limit). Each entry of params
	// is declared as an NVARCHAR(4000) variable named after its key, so the
	// query can reference it as @key.
	Preview(ctx context.Context, query string, params map[string]any, limit int) (*QueryExecutionResult, error)
}

// CatalogReader lists databases and columns for term mapping.
type CatalogReader interface {
	// ListDatabases returns user databases on the server.
	ListDatabases(ctx context.Context) ([]string, error)

	// ListColumns returns every column of the session's database ordered by
	// schema, table and ordinal position.
	ListColumns(ctx context.Context) ([]models.ColumnMetadata, error)

	// SampleValues returns up to limit non-null values of one column as strings.
	SampleValues(ctx context.Context, schema, table, column string, limit int) ([]string, error)
}

// Session is a connection scoped to one database.
// Each session owns its connection and must be closed when done.
type Session interface {
	SchemaDescriber
	QueryExecutor
	CatalogReader

	// Close releases the database connection.
	Close() error
}

// ColumnInfo describes a result column.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"` // Database type name (e.g., "NVARCHAR", "INT")
}

// QueryExecutionResult holds the results from executing a query.
type QueryExecutionResult struct {
	Columns  []ColumnInfo     `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}
