package models

// Report parameter data types accepted by the reporting server.
const (
	ParamTypeString   = "String"
	ParamTypeInteger  = "Integer"
	ParamTypeFloat    = "Float"
	ParamTypeDateTime = "DateTime"
	ParamTypeBoolean  = "Boolean"
)

// FieldTypeForParamType maps a report data type to the dataset field type.
func FieldTypeForParamType(dataType string) RDLType {
	switch dataType {
	case ParamTypeInteger:
		return RDLTypeInt32
	case ParamTypeFloat:
		return RDLTypeDouble
	case ParamTypeDateTime:
		return RDLTypeDateTime
	case ParamTypeBoolean:
		return RDLTypeBoolean
	default:
		return RDLTypeString
	}
}

// ColumnDef is a dataset column in a publish request.
type ColumnDef struct {
	Name           string   `json:"name"`
	Source         string   `json:"source"`
	SystemTypeName string   `json:"system_type_name,omitempty"`
	RDLType        string   `json:"rdlType"`
	Role           string   `json:"role"`
	DisplayName    string   `json:"display_name"`
	Description    string   `json:"description,omitempty"`
	Include        *bool    `json:"include,omitempty"`
	Agg            string   `json:"agg,omitempty"`
	Format         string   `json:"format,omitempty"`
	Samples        []string `json:"samples,omitempty"`
	NullPct        *float64 `json:"null_pct,omitempty"`
}

// Included reports whether the column should appear in the dataset.
func (c ColumnDef) Included() bool {
	return c.Include == nil || *c.Include
}

// ParamDef is a report parameter in a publish request.
type ParamDef struct {
	Name    string `json:"name"`
	RDLType string `json:"rdlType"`
	Default any    `json:"default,omitempty"`
	Multi   bool   `json:"multi,omitempty"`
	Prompt  string `json:"prompt,omitempty"`
}

// FilterDef binds a column predicate to a report parameter.
type FilterDef struct {
	Field string `json:"field"`
	Op    string `json:"op"`
	Param string `json:"param"`
}

// SortDef orders the published dataset.
type SortDef struct {
	Field string `json:"field"`
	Dir   string `json:"dir"`
}

// ChartSpec is accepted and echoed back; charts are not rendered.
type ChartSpec struct {
	Type     string   `json:"type"`
	Category string   `json:"category"`
	Series   []string `json:"series,omitempty"`
	Values   []string `json:"values"`
}

// ReportTarget is where a published report lands on the reporting server.
type ReportTarget struct {
	Title                string `json:"title"`
	Folder               string `json:"folder"`
	SharedDataSourcePath string `json:"shared_data_source_path"`
}

// DBRef names the customer database.
type DBRef struct {
	Name string `json:"name"`
}

// PublishRequest is the body of POST /report/publishReport.
type PublishRequest struct {
	DB         DBRef        `json:"db"`
	Report     ReportTarget `json:"report"`
	Mapping    []Mapping    `json:"mapping"`
	Columns    []ColumnDef  `json:"columns"`
	Parameters []ParamDef   `json:"parameters"`
	Filters    []FilterDef  `json:"filters"`
	Sort       []SortDef    `json:"sort,omitempty"`
	Chart      *ChartSpec   `json:"chart,omitempty"`
}
