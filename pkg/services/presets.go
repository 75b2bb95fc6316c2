package services

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-reports/pkg/models"
)

//go:embed presets.yaml
var presetsYAML []byte

const presetMappingReason = "Static preset mapping"

type presetFile struct {
	Presets []presetEntry `yaml:"presets"`
}

type presetEntry struct {
	ID      string          `yaml:"id"`
	Trigger string          `yaml:"trigger"`
	Spec    presetSpec      `yaml:"spec"`
	Mapping []presetMapping `yaml:"mapping"`
	Columns []presetColumn  `yaml:"columns"`
	SQL     string          `yaml:"sql"`
}

type presetSpec struct {
	Title      string         `yaml:"title"`
	Metrics    []string       `yaml:"metrics"`
	Dimensions []string       `yaml:"dimensions"`
	Filters    []presetFilter `yaml:"filters"`
	Grain      string         `yaml:"grain"`
	Chart      *presetChart   `yaml:"chart"`
}

type presetFilter struct {
	Field    string `yaml:"field"`
	Operator string `yaml:"operator"`
	Value    string `yaml:"value"`
}

type presetChart struct {
	Type string `yaml:"type"`
	X    string `yaml:"x"`
	Y    string `yaml:"y"`
}

type presetMapping struct {
	Term   string `yaml:"term"`
	Role   string `yaml:"role"`
	Column string `yaml:"column"`
}

type presetColumn struct {
	Schema   string   `yaml:"schema"`
	Table    string   `yaml:"table"`
	Column   string   `yaml:"column"`
	DataType string   `yaml:"data_type"`
	Samples  []string `yaml:"samples"`
}

// Preset is a canned infer/generate response selected by trigger text or ID.
type Preset struct {
	entry presetEntry
}

// ID returns the value carried in a spec's _staticPresetId.
func (p *Preset) ID() string { return p.entry.ID }

// SQL returns the preset's canned query.
func (p *Preset) SQL() string { return strings.TrimSpace(p.entry.SQL) }

// InferResult builds a fresh copy of the preset's infer response.
func (p *Preset) InferResult() *InferResult {
	e := p.entry

	spec := &models.ReportSpec{
		Title:          e.Spec.Title,
		Metrics:        append([]string{}, e.Spec.Metrics...),
		Dimensions:     append([]string{}, e.Spec.Dimensions...),
		Filters:        make([]models.SpecFilter, 0, len(e.Spec.Filters)),
		Grain:          models.Grain(e.Spec.Grain),
		StaticPresetID: e.ID,
	}
	for _, f := range e.Spec.Filters {
		spec.Filters = append(spec.Filters, models.SpecFilter{Field: f.Field, Operator: f.Operator, Value: f.Value})
	}
	if e.Spec.Chart != nil {
		spec.Chart = &models.ChartIntent{Type: e.Spec.Chart.Type, X: e.Spec.Chart.X, Y: e.Spec.Chart.Y}
	}

	mapping := make([]models.SuggestedMappingItem, 0, len(e.Mapping))
	matched := make([]string, 0, len(e.Mapping))
	for _, m := range e.Mapping {
		mapping = append(mapping, models.SuggestedMappingItem{
			Term:       m.Term,
			Role:       m.Role,
			Column:     m.Column,
			Confidence: 1.0,
			Reason:     presetMappingReason,
		})
		matched = append(matched, m.Term)
	}

	columns := make([]models.ColumnMetadata, 0, len(e.Columns))
	for _, c := range e.Columns {
		col := models.NewColumnMetadata(c.Schema, c.Table, c.Column, c.DataType)
		col.SampleValues = append([]string{}, c.Samples...)
		columns = append(columns, col)
	}

	return &InferResult{
		Spec:             spec,
		SuggestedMapping: mapping,
		AvailableColumns: columns,
		SchemaInsights: models.SchemaInsights{
			CoveragePercent: 100,
			MatchedFields:   matched,
			MissingFields:   []models.MissingFieldSuggestion{},
		},
	}
}

// PresetCatalog holds the static presets. A nil catalog matches nothing.
type PresetCatalog struct {
	presets []presetEntry
}

// LoadPresets parses the embedded preset catalogue.
func LoadPresets() (*PresetCatalog, error) {
	return ParsePresets(presetsYAML)
}

// ParsePresets parses a preset catalogue. Every preset needs an id, a
// trigger and SQL, and ids must be unique.
func ParsePresets(data []byte) (*PresetCatalog, error) {
	var file presetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse presets: %w", err)
	}

	seen := make(map[string]bool, len(file.Presets))
	for i, p := range file.Presets {
		switch {
		case p.ID == "":
			return nil, fmt.Errorf("preset %d: id is required", i)
		case strings.TrimSpace(p.Trigger) == "":
			return nil, fmt.Errorf("preset %q: trigger is required", p.ID)
		case strings.TrimSpace(p.SQL) == "":
			return nil, fmt.Errorf("preset %q: sql is required", p.ID)
		case seen[p.ID]:
			return nil, fmt.Errorf("preset %q: duplicate id", p.ID)
		}
		seen[p.ID] = true
	}

	return &PresetCatalog{presets: file.Presets}, nil
}

// MatchText returns the preset whose trigger equals text, ignoring case and
// surrounding whitespace.
func (c *PresetCatalog) MatchText(text string) (*Preset, bool) {
	if c == nil {
		return nil, false
	}
	text = strings.TrimSpace(text)
	for _, p := range c.presets {
		if strings.EqualFold(strings.TrimSpace(p.Trigger), text) {
			return &Preset{entry: p}, true
		}
	}
	return nil, false
}

// ByID returns the preset with the given id.
func (c *PresetCatalog) ByID(id string) (*Preset, bool) {
	if c == nil || id == "" {
		return nil, false
	}
	for _, p := range c.presets {
		if p.ID == id {
			return &Preset{entry: p}, true
		}
	}
	return nil, false
}
