package mssql

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/ekaya-reports/pkg/models"
)

// ListDatabases returns user databases, skipping master, tempdb, model and msdb.
func (a *Adapter) ListDatabases(ctx context.Context) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT name FROM sys.databases WHERE database_id > 4 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query databases: %w", err)
	}
	defer rows.Close()

	databases := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan database: %w", err)
		}
		databases = append(databases, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate databases: %w", err)
	}
	return databases, nil
}

// ListColumns returns every column of the current database.
func (a *Adapter) ListColumns(ctx context.Context) ([]models.ColumnMetadata, error) {
	query := `
	SELECT TABLE_SCHEMA, TABLE_NAME, COLUMN_NAME, DATA_TYPE
	FROM INFORMATION_SCHEMA.COLUMNS
	ORDER BY TABLE_SCHEMA, TABLE_NAME, ORDINAL_POSITION
	`

	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	columns := []models.ColumnMetadata{}
	for rows.Next() {
		var schema, table, column, dataType string
		if err := rows.Scan(&schema, &table, &column, &dataType); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns = append(columns, models.NewColumnMetadata(schema, table, column, dataType))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return columns, nil
}

// SampleValues returns up to limit non-null values of schema.table.column.
func (a *Adapter) SampleValues(ctx context.Context, schema, table, column string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 5
	}
	col := quoteName(column)
	query := fmt.Sprintf("SELECT TOP (%d) CAST(%s AS NVARCHAR(4000)) FROM %s WHERE %s IS NOT NULL",
		limit, col, buildFullyQualifiedName(schema, table), col)

	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query sample values: %w", err)
	}
	defer rows.Close()

	values := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan sample value: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sample values: %w", err)
	}
	return values, nil
}
