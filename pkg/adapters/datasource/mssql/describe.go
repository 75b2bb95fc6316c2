package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reports/pkg/adapters/datasource"
	sqlutil "github.com/ekaya-inc/ekaya-reports/pkg/sql"
)

// The table-valued form of sp_describe_first_result_set. Errors come back
// as a row with error_number set rather than as a raised exception.
const describeFirstResultSetQuery = `
SELECT name, system_type_name, is_hidden, error_number, error_message
FROM sys.dm_exec_describe_first_result_set(@tsql, @params, 0)
ORDER BY column_ordinal`

// DescribeFirstResultSet asks the engine for the query's first result set.
// Detected @parameters are declared as nvarchar(4000) so parameterized
// queries can be described.
func (a *Adapter) DescribeFirstResultSet(ctx context.Context, query string) ([]datasource.DescribedColumn, error) {
	var params any
	if names := sqlutil.DetectParameterNames(query); len(names) > 0 {
		params = paramDeclarations(names)
	}

	rows, err := a.db.QueryContext(ctx, describeFirstResultSetQuery,
		sql.Named("tsql", query),
		sql.Named("params", params),
	)
	if err != nil {
		return nil, fmt.Errorf("describe first result set: %w", err)
	}
	defer rows.Close()

	var columns []datasource.DescribedColumn
	for rows.Next() {
		var (
			name, typeName, errMessage sql.NullString
			hidden                     sql.NullBool
			errNumber                  sql.NullInt32
		)
		if err := rows.Scan(&name, &typeName, &hidden, &errNumber, &errMessage); err != nil {
			return nil, fmt.Errorf("scan described column: %w", err)
		}
		if errNumber.Valid {
			return nil, fmt.Errorf("describe first result set: error %d: %s", errNumber.Int32, errMessage.String)
		}
		columns = append(columns, datasource.DescribedColumn{
			Name:    name.String,
			SQLType: typeName.String,
			Hidden:  hidden.Valid && hidden.Bool,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate described columns: %w", err)
	}

	return columns, nil
}

// DescribeSchemaOnly runs the query under SET FMTONLY ON on a single pinned
// connection and reads the result column types. FMTONLY is switched off
// again before the connection returns to the pool.
func (a *Adapter) DescribeSchemaOnly(ctx context.Context, query string) ([]datasource.DescribedColumn, error) {
	conn, err := a.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SET FMTONLY ON"); err != nil {
		return nil, fmt.Errorf("enable FMTONLY: %w", err)
	}
	defer func() {
		if _, err := conn.ExecContext(context.WithoutCancel(ctx), "SET FMTONLY OFF"); err != nil {
			a.logger.Warn("Failed to reset FMTONLY", zap.Error(err))
		}
	}()

	batch := declareBlock(sqlutil.DetectParameterNames(query)) + query
	rows, err := conn.QueryContext(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("schema-only execution: %w", err)
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("read column types: %w", err)
	}

	columns := make([]datasource.DescribedColumn, len(types))
	for i, t := range types {
		columns[i] = datasource.DescribedColumn{
			Name:    t.Name(),
			SQLType: strings.ToLower(t.DatabaseTypeName()),
		}
	}
	return columns, nil
}
