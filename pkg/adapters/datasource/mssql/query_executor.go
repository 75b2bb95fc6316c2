package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reports/pkg/adapters/datasource"
	sqlutil "github.com/ekaya-inc/ekaya-reports/pkg/sql"
)

// DefaultPreviewLimit is used when Preview is called with limit <= 0.
const DefaultPreviewLimit = 100

// previewArgPrefix names the driver-side arguments that carry parameter
// values into the batch. The driver's own positional names (@p1..@pN) are
// left free for report parameters.
const previewArgPrefix = "__v"

// buildPreviewBatch wraps query in SELECT TOP (limit) and prefixes one
// DECLARE per parameter, bound as the named arguments @__v1..@__vN. A
// top-level ORDER BY is dropped because it is not allowed inside a derived
// table.
func buildPreviewBatch(query string, params map[string]any, limit int) (string, []any, error) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	args := make([]any, 0, len(keys))
	for i, key := range keys {
		name, err := variableName(key)
		if err != nil {
			return "", nil, err
		}
		// T-SQL variable names are case-insensitive.
		if strings.HasPrefix(strings.ToLower(name), previewArgPrefix) {
			return "", nil, fmt.Errorf("parameter name %q uses the reserved prefix %q", key, previewArgPrefix)
		}
		arg := previewArgPrefix + strconv.Itoa(i+1)
		fmt.Fprintf(&b, "DECLARE @%s NVARCHAR(4000) = @%s;\n", name, arg)
		args = append(args, sql.Named(arg, params[key]))
	}

	base, _, _ := sqlutil.SplitOrderBy(sqlutil.NormalizeQuery(query))
	fmt.Fprintf(&b, "SELECT TOP (%d) * FROM (\n%s\n) AS src", limit, base)
	return b.String(), args, nil
}

// Preview runs a bounded read of query. Byte slices in the result are
// decoded to strings.
func (a *Adapter) Preview(ctx context.Context, query string, params map[string]any, limit int) (*datasource.QueryExecutionResult, error) {
	if limit <= 0 {
		limit = DefaultPreviewLimit
	}
	if limit > datasource.MaxPreviewLimit {
		limit = datasource.MaxPreviewLimit
	}

	batch, args, err := buildPreviewBatch(query, params, limit)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("Running preview", zap.Int("limit", limit), zap.Int("params", len(args)))

	rows, err := a.db.QueryContext(ctx, batch, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columnNames, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}

	columns := make([]datasource.ColumnInfo, len(columnNames))
	for i, colName := range columnNames {
		columns[i] = datasource.ColumnInfo{
			Name: colName,
			Type: columnTypes[i].DatabaseTypeName(),
		}
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columnNames))
		valuePtrs := make([]any, len(columnNames))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		rowMap := make(map[string]any, len(columnNames))
		for i, col := range columnNames {
			val := values[i]
			if b, ok := val.([]byte); ok {
				val = string(b)
			}
			rowMap[col] = val
		}
		resultRows = append(resultRows, rowMap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return &datasource.QueryExecutionResult{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}
