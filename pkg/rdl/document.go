// Package rdl assembles SQL Server Reporting Services report definitions.
package rdl

import (
	"github.com/ekaya-inc/ekaya-reports/pkg/models"
)

const (
	DefaultReportName     = "AutoReport"
	DefaultDataSourceName = "AutoDataSource"
	DefaultDataSetName    = "AutoDataSet"
)

// Options names the containers of a report definition.
type Options struct {
	ReportName          string // echoed in results, not written into the XML
	DataSourceName      string
	DataSetName         string
	DataSourceReference string // shared data source path on the report server
}

// Field is one dataset field and its table column.
type Field struct {
	Name      string         // report field name, a valid identifier
	DataField string         // column name returned by the query
	Header    string         // header cell text
	Type      models.RDLType // written to rd:TypeName
}

// Parameter is a query parameter bound to a report parameter of the same name.
type Parameter struct {
	Name     string
	DataType string
	Prompt   string
}

// Document is a finalized report definition ready to render.
type Document struct {
	Options
	Query      string
	Parameters []Parameter
	Fields     []Field
}

// NewDocument builds a document from discovered fields and detected parameters.
// Header cells show the raw column names; detail cells bind the sanitized names.
func NewDocument(opts Options, query string, params []models.Parameter, fields []models.Field) *Document {
	doc := &Document{
		Options:    opts.withDefaults(),
		Query:      query,
		Parameters: make([]Parameter, 0, len(params)),
		Fields:     make([]Field, 0, len(fields)),
	}

	for _, p := range params {
		dataType := p.Type
		if dataType == "" {
			dataType = models.ParameterTypeString
		}
		doc.Parameters = append(doc.Parameters, Parameter{Name: p.Name, DataType: dataType, Prompt: p.Name})
	}

	for _, f := range fields {
		fieldType := f.MappedType
		if fieldType == "" {
			fieldType = models.RDLTypeString
		}
		doc.Fields = append(doc.Fields, Field{
			Name:      f.SanitizedName,
			DataField: f.RawName,
			Header:    f.RawName,
			Type:      fieldType,
		})
	}

	return doc
}

func (o Options) withDefaults() Options {
	if o.ReportName == "" {
		o.ReportName = DefaultReportName
	}
	if o.DataSourceName == "" {
		o.DataSourceName = DefaultDataSourceName
	}
	if o.DataSetName == "" {
		o.DataSetName = DefaultDataSetName
	}
	return o
}
