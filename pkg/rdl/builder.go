package rdl

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/google/uuid"
)

//go:embed templates/*
var templateFS embed.FS

// ErrNoFields is returned for a document without dataset fields; the table
// layout needs at least one column.
var ErrNoFields = errors.New("report definition has no fields")

var xmlReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

type cellData struct {
	Name  string
	Value string
}

var reportTemplate = template.Must(
	template.New("report.rdl.tmpl").
		Funcs(template.FuncMap{
			"xml": xmlReplacer.Replace,
			"cell": func(prefix string, index int, value string) cellData {
				return cellData{Name: prefix + "_" + strconv.Itoa(index+1), Value: value}
			},
		}).
		ParseFS(templateFS, "templates/report.rdl.tmpl"),
)

type templateData struct {
	DataSourceName      string
	DataSourceReference string
	DataSetName         string
	Query               string
	Parameters          []Parameter
	Fields              []templateField
	Width               string
	ReportID            string
}

type templateField struct {
	Field
	TypeName string
}

// Builder renders documents to XML. The zero value is not usable; use NewBuilder.
type Builder struct {
	newID func() string
}

// NewBuilder returns a Builder that stamps each document with a random UUID.
func NewBuilder() *Builder {
	return &Builder{newID: uuid.NewString}
}

// WithIDFunc replaces the report ID source. Used by tests for byte-stable output.
func (b *Builder) WithIDFunc(fn func() string) *Builder {
	return &Builder{newID: fn}
}

// Build renders the document. Identical documents render to identical bytes
// apart from the rd:ReportID value.
func (b *Builder) Build(doc *Document) ([]byte, error) {
	if doc == nil || len(doc.Fields) == 0 {
		return nil, ErrNoFields
	}

	opts := doc.Options.withDefaults()
	data := templateData{
		DataSourceName:      opts.DataSourceName,
		DataSourceReference: opts.DataSourceReference,
		DataSetName:         opts.DataSetName,
		Query:               doc.Query,
		Parameters:          doc.Parameters,
		Fields:              make([]templateField, len(doc.Fields)),
		Width:               strconv.Itoa(len(doc.Fields)) + "in",
		ReportID:            b.newID(),
	}
	for i, f := range doc.Fields {
		if f.DataField == "" {
			f.DataField = f.Name
		}
		data.Fields[i] = templateField{Field: f, TypeName: string(f.Type)}
	}

	var out bytes.Buffer
	if err := reportTemplate.Execute(&out, data); err != nil {
		return nil, fmt.Errorf("render report definition: %w", err)
	}
	return out.Bytes(), nil
}

var defaultBuilder = NewBuilder()

// Build renders the document with a fresh report ID.
func Build(doc *Document) ([]byte, error) {
	return defaultBuilder.Build(doc)
}
