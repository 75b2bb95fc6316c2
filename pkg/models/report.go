package models

import "strings"

// RDLType is the .NET type name written to a dataset field's rd:TypeName.
type RDLType string

const (
	RDLTypeString   RDLType = "System.String"
	RDLTypeInt32    RDLType = "System.Int32"
	RDLTypeInt64    RDLType = "System.Int64"
	RDLTypeBoolean  RDLType = "System.Boolean"
	RDLTypeDecimal  RDLType = "System.Decimal"
	RDLTypeDouble   RDLType = "System.Double"
	RDLTypeDateTime RDLType = "System.DateTime"
)

// ParameterTypeString is the only data type assigned to detected query parameters.
const ParameterTypeString = "String"

// Parameter is a query parameter detected from an @Name marker.
type Parameter struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Field is one output column of a query's first result set.
type Field struct {
	RawName       string  `json:"rawName"`
	SanitizedName string  `json:"name"`
	SQLType       string  `json:"sqlType,omitempty"`
	MappedType    RDLType `json:"rdlType"`
}

// DiscoveryTier identifies which strategy produced a SchemaResult.
type DiscoveryTier string

const (
	TierDescribeFirstResultSet DiscoveryTier = "describe_first_result_set"
	TierFMTOnly                DiscoveryTier = "fmtonly"
	TierHeuristic              DiscoveryTier = "heuristic"
)

// SchemaResult is the outcome of schema discovery for one query.
type SchemaResult struct {
	Fields []Field       `json:"fields"`
	Notes  []string      `json:"notes"`
	Tier   DiscoveryTier `json:"tier"`
}

// FieldNames returns the sanitized field names in projection order.
func (r *SchemaResult) FieldNames() []string {
	names := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		names[i] = f.SanitizedName
	}
	return names
}

var sqlTypeToRDL = map[string]RDLType{
	"int":            RDLTypeInt32,
	"smallint":       RDLTypeInt32,
	"tinyint":        RDLTypeInt32,
	"bigint":         RDLTypeInt64,
	"bit":            RDLTypeBoolean,
	"decimal":        RDLTypeDecimal,
	"numeric":        RDLTypeDecimal,
	"money":          RDLTypeDecimal,
	"smallmoney":     RDLTypeDecimal,
	"float":          RDLTypeDouble,
	"real":           RDLTypeDouble,
	"date":           RDLTypeDateTime,
	"datetime":       RDLTypeDateTime,
	"datetime2":      RDLTypeDateTime,
	"smalldatetime":  RDLTypeDateTime,
	"time":           RDLTypeDateTime,
	"datetimeoffset": RDLTypeDateTime,
}

// BaseSQLType lowercases a SQL Server type name and strips any precision
// suffix, e.g. "DECIMAL(18, 2)" -> "decimal".
func BaseSQLType(sqlType string) string {
	base := strings.ToLower(strings.TrimSpace(sqlType))
	if idx := strings.IndexByte(base, '('); idx >= 0 {
		base = strings.TrimSpace(base[:idx])
	}
	return base
}

// MapSQLType maps a SQL Server type name to its RDL field type.
// Unknown and textual types map to System.String.
func MapSQLType(sqlType string) RDLType {
	if t, ok := sqlTypeToRDL[BaseSQLType(sqlType)]; ok {
		return t
	}
	return RDLTypeString
}
