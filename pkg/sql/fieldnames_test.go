package sql

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFieldName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"CustomerName", "CustomerName"},
		{"Total Sales", "Total_Sales"},
		{"Order-Id", "Order_Id"},
		{"dbo.Orders.Total", "dbo_Orders_Total"},
		{"2024Revenue", "Revenue"},
		{"_private", "private"},
		{"__9lives", "lives"},
		{"Café", "Caf_"},
		{"", "Field"},
		{"123", "Field"},
		{"%%%", "Field"},
		{"a%", "a_"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeFieldName(tt.input))
		})
	}
}

func TestSanitizeFieldName_AlwaysIdentifier(t *testing.T) {
	ident := regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
	inputs := []string{"", " ", "a b", "[x]", "Σύνολο", "1_2_3", "x--y", "Amount ($)"}

	for _, in := range inputs {
		assert.Regexp(t, ident, SanitizeFieldName(in), "input %q", in)
	}
}

func TestUniqueFieldNames(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "no duplicates",
			input:    []string{"Id", "Name"},
			expected: []string{"Id", "Name"},
		},
		{
			name:     "repeated name",
			input:    []string{"A", "A", "A"},
			expected: []string{"A", "A_2", "A_3"},
		},
		{
			name:     "suffix already taken by a later column",
			input:    []string{"Total", "Total", "Total_2"},
			expected: []string{"Total", "Total_3", "Total_2"},
		},
		{
			name:     "default names collide",
			input:    []string{"Field", "Field", "Id"},
			expected: []string{"Field", "Field_2", "Id"},
		},
		{
			name:     "empty",
			input:    []string{},
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UniqueFieldNames(tt.input)
			assert.Equal(t, tt.expected, got)

			seen := make(map[string]bool)
			for _, n := range got {
				assert.False(t, seen[n], "duplicate %q", n)
				seen[n] = true
			}
		})
	}
}
