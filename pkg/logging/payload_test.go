package logging

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizePayload(t *testing.T) {
	tests := []struct {
		name     string
		payload  any
		expected string
	}{
		{
			name:     "nil",
			payload:  nil,
			expected: "",
		},
		{
			name: "struct is JSON encoded",
			payload: struct {
				DB string `json:"db"`
			}{DB: "Sales"},
			expected: `{"db":"Sales"}`,
		},
		{
			name:     "map with password redacted",
			payload:  map[string]any{"password": "hunter2", "user": "sa"},
			expected: `{"password":"[REDACTED]","user":"sa"}`,
		},
		{
			name:     "raw bytes kept",
			payload:  []byte(`{"sql":"SELECT 1"}`),
			expected: `{"sql":"SELECT 1"}`,
		},
		{
			name:     "connection string in text",
			payload:  "server=db;password=abc;database=x",
			expected: "server=db;password=[REDACTED];database=x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizePayload(tt.payload))
		})
	}
}

func TestSanitizePayload_Truncates(t *testing.T) {
	long := strings.Repeat("x", MaxPayloadLogLength+50)

	got := SanitizePayload(long)

	assert.Len(t, got, MaxPayloadLogLength+len("...<truncated>"))
	assert.True(t, strings.HasSuffix(got, "...<truncated>"))
}

func TestSanitizePayload_ExactLimitNotTruncated(t *testing.T) {
	exact := strings.Repeat("y", MaxPayloadLogLength)
	assert.Equal(t, exact, SanitizePayload(exact))
}
