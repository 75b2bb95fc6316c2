package models

import (
	"fmt"
	"strings"
)

// ColumnMetadata describes one catalog column available for term mapping.
type ColumnMetadata struct {
	Schema        string   `json:"schema"`
	Table         string   `json:"table"`
	Column        string   `json:"column"`
	DataType      string   `json:"dataType"`
	IsNumeric     bool     `json:"isNumeric"`
	IsDateLike    bool     `json:"isDateLike"`
	SampleValues  []string `json:"sampleValues,omitempty"`
	Name          string   `json:"name,omitempty"`
	BracketedName string   `json:"bracketedName,omitempty"`
}

// NewColumnMetadata builds catalog metadata for schema.table.column and derives
// the numeric/date flags from the SQL Server data type.
func NewColumnMetadata(schema, table, column, dataType string) ColumnMetadata {
	base := BaseSQLType(dataType)
	mapped := MapSQLType(base)
	return ColumnMetadata{
		Schema:        schema,
		Table:         table,
		Column:        column,
		DataType:      base,
		IsNumeric:     mapped == RDLTypeInt32 || mapped == RDLTypeInt64 || mapped == RDLTypeDecimal || mapped == RDLTypeDouble,
		IsDateLike:    mapped == RDLTypeDateTime,
		Name:          fmt.Sprintf("%s.%s.%s", schema, table, column),
		BracketedName: fmt.Sprintf("[%s].[%s].[%s]", schema, table, column),
	}
}

// QualifiedName returns the bracketed three-part name used in generated SQL.
func (c ColumnMetadata) QualifiedName() string {
	if c.BracketedName != "" {
		return c.BracketedName
	}
	if strings.HasPrefix(c.Name, "[") {
		return c.Name
	}
	return fmt.Sprintf("[%s].[%s].[%s]", c.Schema, c.Table, c.Column)
}

// DisplayName returns the dotted name, falling back to the qualified name.
func (c ColumnMetadata) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.QualifiedName()
}

// Mapping roles.
const (
	RoleMetric    = "metric"
	RoleMeasure   = "measure"
	RoleDimension = "dimension"
	RoleTime      = "time"
)

// Mapping binds a spec term to a catalog column.
type Mapping struct {
	Term   string `json:"term"`
	Column string `json:"column,omitempty"`
	Role   string `json:"role"`
	Grain  string `json:"grain,omitempty"`
}

// IsMeasure reports whether the mapping is aggregated in generated SQL.
func (m Mapping) IsMeasure() bool {
	return m.Role == RoleMeasure || m.Role == RoleMetric
}

// SuggestedMappingItem is a mapping proposed by term matching.
type SuggestedMappingItem struct {
	Term       string  `json:"term"`
	Role       string  `json:"role"`
	Column     string  `json:"column,omitempty"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
	Grain      string  `json:"grain,omitempty"`
}

// MissingFieldSuggestion lists near matches for an unmapped term.
type MissingFieldSuggestion struct {
	Name        string   `json:"name"`
	Suggestions []string `json:"suggestions"`
}

// SchemaInsights summarises how much of a spec the catalog covers.
type SchemaInsights struct {
	CoveragePercent int                      `json:"coveragePercent"`
	MatchedFields   []string                 `json:"matchedFields"`
	MissingFields   []MissingFieldSuggestion `json:"missingFields"`
}
