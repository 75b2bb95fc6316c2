package models

import (
	"bytes"
	"encoding/json"

	"github.com/ekaya-inc/ekaya-reports/pkg/jsonutil"
)

// Grains understood by intent parsing and SQL generation.
const (
	GrainDay     = "day"
	GrainWeek    = "week"
	GrainMonth   = "month"
	GrainQuarter = "quarter"
	GrainYear    = "year"
	GrainNone    = "none"
)

// IntentFilter is a filter extracted from a natural-language request.
type IntentFilter struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// UnmarshalJSON accepts numeric, boolean and list values from LLM output.
func (f *IntentFilter) UnmarshalJSON(data []byte) error {
	var raw struct {
		Field    string                  `json:"field"`
		Operator string                  `json:"operator"`
		Value    jsonutil.FlexibleString `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = IntentFilter{Field: raw.Field, Operator: raw.Operator, Value: string(raw.Value)}
	return nil
}

// ChartIntent describes the visualisation the user asked for.
type ChartIntent struct {
	Type   string   `json:"type"`
	X      string   `json:"x"`
	Y      string   `json:"y"`
	Series []string `json:"series,omitempty"`
}

// NLSpec is the structured form of a reporting request.
type NLSpec struct {
	Title      string         `json:"title"`
	Metrics    []string       `json:"metrics"`
	Dimensions []string       `json:"dimensions"`
	Filters    []IntentFilter `json:"filters"`
	Grain      string         `json:"grain"`
	Chart      *ChartIntent   `json:"chart,omitempty"`
}

// Grain is a time grain that serialises "none" and "" as JSON null.
type Grain string

func (g Grain) MarshalJSON() ([]byte, error) {
	if g == "" || g == GrainNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(g))
}

func (g *Grain) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*g = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == GrainNone {
		s = ""
	}
	*g = Grain(s)
	return nil
}

// SpecFilter is a filter in the API-facing report spec. Op mirrors Operator
// for clients that use the short key.
type SpecFilter struct {
	Field    string `json:"field"`
	Operator string `json:"operator,omitempty"`
	Op       string `json:"op,omitempty"`
	Value    string `json:"value,omitempty"`
	Param    string `json:"param,omitempty"`
}

// EffectiveOp returns the comparison operator, defaulting to "=".
func (f SpecFilter) EffectiveOp() string {
	if f.Op != "" {
		return f.Op
	}
	if f.Operator != "" {
		return f.Operator
	}
	return "="
}

// SortItem orders report output by one field.
type SortItem struct {
	Field string `json:"field"`
	Dir   string `json:"dir"`
}

// ReportSpec is the spec exchanged between inferFromNaturalLanguage and generateSQL.
type ReportSpec struct {
	Title          string       `json:"title"`
	Metrics        []string     `json:"metrics"`
	Dimensions     []string     `json:"dimensions"`
	Filters        []SpecFilter `json:"filters"`
	Grain          Grain        `json:"grain"`
	Chart          *ChartIntent `json:"chart,omitempty"`
	Sort           []SortItem   `json:"sort,omitempty"`
	From           string       `json:"from,omitempty"`
	StaticPresetID string       `json:"_staticPresetId,omitempty"`
}
