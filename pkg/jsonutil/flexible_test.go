package jsonutil

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexibleStringValue(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "string", input: `"West"`, want: "West"},
		{name: "integer", input: `2024`, want: "2024"},
		{name: "float", input: `3.14`, want: "3.14"},
		{name: "boolean", input: `true`, want: "true"},
		{name: "null", input: `null`, want: ""},
		{name: "empty", input: ``, want: ""},
		{name: "string array", input: `["West", "South"]`, want: "West,South"},
		{name: "mixed array", input: `[2023, "2024", null]`, want: "2023,2024"},
		{name: "empty array", input: `[]`, want: ""},
		{name: "object", input: `{"a":1}`, want: `{"a":1}`},
		{name: "nested array", input: `[["a"]]`, want: `[["a"]]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FlexibleStringValue(json.RawMessage(tt.input)))
		})
	}
}

func TestFlexibleString_Unmarshal(t *testing.T) {
	var v struct {
		Value FlexibleString `json:"value"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"value": 2024}`), &v))
	assert.Equal(t, FlexibleString("2024"), v.Value)

	require.NoError(t, json.Unmarshal([]byte(`{"value": ["West", "South"]}`), &v))
	assert.Equal(t, FlexibleString("West,South"), v.Value)
}
